package planner

import (
	"sort"
	"testing"

	"rigor/internal/config"
	"rigor/internal/descriptor"
	"rigor/internal/modes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHint(t *testing.T) {
	rules, err := CompileRules([]config.OrderRule{
		{Hint: -10, ForGroups: "smoke"},
		{Hint: 5, ForModes: "Mysql.*"},
		{Hint: 1000, ForGroups: "perf", ForModes: "Mysql"},
		{Hint: 0.5},
	})
	require.NoError(t, err)

	mysql := modes.NewMode("MysqlFast")
	pg := modes.NewMode("Postgres")

	tests := []struct {
		name      string
		desc      *descriptor.TestDescriptor
		mode      *modes.ModeSpec
		modeIndex int
		expected  float64
	}{
		{
			name:     "defaults to zero plus catch-all",
			desc:     &descriptor.TestDescriptor{},
			expected: 0.5,
		},
		{
			name:     "directory hint",
			desc:     &descriptor.TestDescriptor{DirectoryHint: hintPtr(20)},
			expected: 20.5,
		},
		{
			name:     "descriptor hint beats directory hint",
			desc:     &descriptor.TestDescriptor{ExecutionOrderHint: hintPtr(-3), DirectoryHint: hintPtr(20)},
			expected: -2.5,
		},
		{
			name:     "group rule",
			desc:     &descriptor.TestDescriptor{Groups: []string{"core", "smoke"}},
			expected: -9.5,
		},
		{
			name:     "group pattern is a full match",
			desc:     &descriptor.TestDescriptor{Groups: []string{"smoke-extra"}},
			expected: 0.5,
		},
		{
			name:     "mode rule",
			desc:     &descriptor.TestDescriptor{},
			mode:     &mysql,
			expected: 5.5,
		},
		{
			name:     "both patterns required",
			desc:     &descriptor.TestDescriptor{Groups: []string{"perf"}},
			mode:     &pg,
			expected: 0.5,
		},
		{
			name:      "secondary delta",
			desc:      &descriptor.TestDescriptor{Groups: []string{"smoke"}},
			mode:      &pg,
			modeIndex: 2,
			expected:  -9.5 + 2*100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeHint(tt.desc, tt.mode, tt.modeIndex, rules, 100)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestComputeHint_RulesSum(t *testing.T) {
	rules, err := CompileRules([]config.OrderRule{
		{Hint: 1, ForGroups: "a"},
		{Hint: 2, ForGroups: "b"},
		{Hint: 4, ForGroups: "a|b"},
	})
	require.NoError(t, err)

	d := &descriptor.TestDescriptor{Groups: []string{"a", "b"}}
	assert.Equal(t, 7.0, ComputeHint(d, nil, 0, rules, 0))
}

func TestCompileRules_LiteralWithMetacharacters(t *testing.T) {
	rules, err := CompileRules([]config.OrderRule{{Hint: 3, ForGroups: "c.d"}})
	require.NoError(t, err)

	assert.Equal(t, 3.0, ComputeHint(&descriptor.TestDescriptor{Groups: []string{"c.d"}}, nil, 0, rules, 0))
	// "." is still a regex wildcard
	assert.Equal(t, 3.0, ComputeHint(&descriptor.TestDescriptor{Groups: []string{"cxd"}}, nil, 0, rules, 0))
}

func TestCompileRules_Invalid(t *testing.T) {
	_, err := CompileRules([]config.OrderRule{{ForModes: "("}})
	assert.Error(t, err)
}

func TestModeIndices(t *testing.T) {
	list := []modes.ModeSpec{
		modes.NewMode("P1").WithPrimary(true),
		modes.NewMode("S1"),
		modes.NewMode("P2").WithPrimary(true),
		modes.NewMode("S2"),
	}
	resolved, err := modes.Resolve("T", modes.Config{Static: list}, nil, modes.Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 2}, ModeIndices(resolved))
}

func TestSortCandidates_StableAndIdempotent(t *testing.T) {
	files := []string{"/t/c", "/t/a", "/t/b", "/t/a", "/t/d"}
	hints := []float64{1, 0, 1, -2, 0}

	var cs []candidate
	for i := range files {
		cs = append(cs, candidate{
			desc: &descriptor.TestDescriptor{ID: files[i], File: files[i]},
			hint: hints[i],
			mode: &modes.ModeSpec{Name: string(rune('A' + i))},
		})
	}

	sortCandidates(cs)
	first := append([]candidate(nil), cs...)
	require.True(t, sort.SliceIsSorted(cs, func(i, j int) bool {
		if cs[i].hint != cs[j].hint {
			return cs[i].hint < cs[j].hint
		}
		return cs[i].desc.File < cs[j].desc.File
	}))

	sortCandidates(cs)
	assert.Equal(t, first, cs)

	var order []string
	for _, c := range cs {
		order = append(order, c.mode.Name)
	}
	assert.Equal(t, []string{"D", "B", "E", "C", "A"}, order)
}
