package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"rigor/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, min, max int, wait time.Duration) *Pool {
	t.Helper()
	p, err := NewPool(min, max, wait)
	require.NoError(t, err)
	p.probe = func(int) bool { return true }
	return p
}

func TestAllocate_UniqueUnderConcurrency(t *testing.T) {
	p := newTestPool(t, 40000, 40049, time.Second)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ports = map[int]string{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := fmt.Sprintf("T%d#1", i)
			port, err := p.Allocate(context.Background(), owner)
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			_, dup := ports[port]
			assert.False(t, dup, "port %d handed out twice", port)
			ports[port] = owner
		}(i)
	}
	wg.Wait()

	assert.Len(t, ports, 50)
	assert.Equal(t, 50, p.Reserved())
}

func TestAllocate_SkipsPortsBusyAtOSLevel(t *testing.T) {
	p := newTestPool(t, 41000, 41002, 0)
	p.probe = func(port int) bool { return port == 41002 }

	port, err := p.Allocate(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, 41002, port)
}

func TestAllocate_RealProbe(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port

	p, err := NewPool(busy, busy, 0)
	require.NoError(t, err)

	_, err = p.Allocate(context.Background(), "owner")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestAllocate_ExhaustedAfterTimeout(t *testing.T) {
	p := newTestPool(t, 42000, 42000, 120*time.Millisecond)

	_, err := p.Allocate(context.Background(), "first")
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Allocate(context.Background(), "second")
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestAllocate_WaitsForRelease(t *testing.T) {
	p := newTestPool(t, 43000, 43000, 5*time.Second)

	port, err := p.Allocate(context.Background(), "first")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		p.Release(port, "first")
	}()

	got, err := p.Allocate(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, port, got)
}

func TestAllocate_ContextCancelled(t *testing.T) {
	p := newTestPool(t, 44000, 44000, time.Minute)
	_, err := p.Allocate(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Allocate(ctx, "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelease(t *testing.T) {
	p := newTestPool(t, 45000, 45009, 0)

	a1, _ := p.Allocate(context.Background(), "a")
	a2, _ := p.Allocate(context.Background(), "a")
	b1, _ := p.Allocate(context.Background(), "b")
	require.Equal(t, 3, p.Reserved())

	p.Release(b1, "a") // wrong owner
	assert.Equal(t, 3, p.Reserved())

	p.Release(b1, "b")
	assert.Equal(t, 2, p.Reserved())

	assert.Equal(t, 2, p.ReleaseOwner("a"))
	assert.Equal(t, 0, p.Reserved())
	assert.NotEqual(t, a1, a2)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		input   string
		min     int
		max     int
		wantErr bool
	}{
		{"20000-20100", 20000, 20100, false},
		{" 1 - 2 ", 1, 2, false},
		{"5", 0, 0, true},
		{"a-b", 0, 0, true},
		{"300-200", 0, 0, true},
		{"0-10", 0, 0, true},
		{"10-70000", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			min, max, err := ParseRange(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.min, min)
			assert.Equal(t, tt.max, max)
		})
	}
}

func TestFromEnv(t *testing.T) {
	def := config.PortsConfig{Min: 1000, Max: 2000, WaitTimeout: time.Second}

	t.Setenv(EnvPorts, "")
	got, err := FromEnv(def)
	require.NoError(t, err)
	assert.Equal(t, def, got)

	t.Setenv(EnvPorts, "3000-3010")
	got, err = FromEnv(def)
	require.NoError(t, err)
	assert.Equal(t, 3000, got.Min)
	assert.Equal(t, 3010, got.Max)
	assert.Equal(t, time.Second, got.WaitTimeout)

	p, err := NewPoolFromConfig(def)
	require.NoError(t, err)
	assert.Equal(t, 11, p.Size())

	t.Setenv(EnvPorts, "junk")
	_, err = FromEnv(def)
	assert.Error(t, err)
}
