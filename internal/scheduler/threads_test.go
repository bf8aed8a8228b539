package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveThreads(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		env     string
		cpus    int
		want    int
		wantErr bool
	}{
		{name: "fixed", spec: "3", cpus: 8, want: 3},
		{name: "auto uses cpus", spec: "auto", cpus: 8, want: 8},
		{name: "empty is auto", spec: "", cpus: 4, want: 4},
		{name: "zero is auto", spec: "0", cpus: 4, want: 4},
		{name: "env overrides auto", spec: "auto", env: "6", cpus: 8, want: 6},
		{name: "env ignored for fixed", spec: "2", env: "6", cpus: 8, want: 2},
		{name: "multiplier", spec: "x0.5", cpus: 8, want: 4},
		{name: "multiplier at least one", spec: "x0.1", cpus: 2, want: 1},
		{name: "uppercase", spec: "AUTO", cpus: 2, want: 2},
		{name: "bad env", spec: "auto", env: "lots", cpus: 2, wantErr: true},
		{name: "bad multiplier", spec: "x-1", cpus: 2, wantErr: true},
		{name: "garbage", spec: "many", cpus: 2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveThreads(tt.spec, tt.env, tt.cpus)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
