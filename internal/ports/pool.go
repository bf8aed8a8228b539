// Package ports hands out TCP ports to concurrently running test instances.
//
// A port is only returned once it is both unreserved in the pool and free
// at the OS level, since processes outside rigor may hold ports in range.
package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"rigor/internal/config"
	"rigor/pkg/logging"
)

// EnvPorts overrides the configured port range, as "MIN-MAX".
const EnvPorts = "RIGOR_PORTS"

// ErrExhausted is returned when no port became free within the wait timeout.
var ErrExhausted = errors.New("no free TCP port in pool")

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = time.Second
)

// Pool is a shared range of TCP ports.
type Pool struct {
	min, max    int
	waitTimeout time.Duration

	mu       sync.Mutex
	next     int            // next port to probe, round-robin over the range
	reserved map[int]string // port -> owner
	released chan struct{}  // closed and replaced whenever a port is released

	// probe reports whether the OS lets us bind port; replaced in tests.
	probe func(port int) bool
}

// NewPool creates a pool over [min, max].
func NewPool(min, max int, waitTimeout time.Duration) (*Pool, error) {
	if min < 1 || max > 65535 || min > max {
		return nil, fmt.Errorf("invalid port range %d-%d", min, max)
	}
	return &Pool{
		min:         min,
		max:         max,
		waitTimeout: waitTimeout,
		next:        min,
		reserved:    make(map[int]string),
		released:    make(chan struct{}),
		probe:       listenProbe,
	}, nil
}

// NewPoolFromConfig applies the RIGOR_PORTS override to cfg and builds the pool.
func NewPoolFromConfig(cfg config.PortsConfig) (*Pool, error) {
	cfg, err := FromEnv(cfg)
	if err != nil {
		return nil, err
	}
	return NewPool(cfg.Min, cfg.Max, cfg.WaitTimeout)
}

// FromEnv returns def with its range replaced by RIGOR_PORTS, when set.
func FromEnv(def config.PortsConfig) (config.PortsConfig, error) {
	value := strings.TrimSpace(os.Getenv(EnvPorts))
	if value == "" {
		return def, nil
	}
	min, max, err := ParseRange(value)
	if err != nil {
		return def, fmt.Errorf("%s: %w", EnvPorts, err)
	}
	def.Min, def.Max = min, max
	return def, nil
}

// ParseRange parses "MIN-MAX".
func ParseRange(s string) (int, int, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("expected MIN-MAX, got %q", s)
	}
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minimum port %q", lo)
	}
	max, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid maximum port %q", hi)
	}
	if min < 1 || max > 65535 || min > max {
		return 0, 0, fmt.Errorf("invalid port range %d-%d", min, max)
	}
	return min, max, nil
}

// Size is the number of ports in the range.
func (p *Pool) Size() int {
	return p.max - p.min + 1
}

// Allocate reserves a free port for owner. When the pool is exhausted it
// retries with backoff until a port is released, the wait timeout elapses
// (ErrExhausted) or ctx is done.
func (p *Pool) Allocate(ctx context.Context, owner string) (int, error) {
	deadline := time.Now().Add(p.waitTimeout)
	backoff := initialBackoff

	for {
		port, released := p.tryAllocate(owner)
		if port != 0 {
			return port, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, fmt.Errorf("%w (%d-%d, waited %s for %s)", ErrExhausted, p.min, p.max, p.waitTimeout, owner)
		}
		wait := min(backoff, remaining)
		logging.Debug("Ports", "Pool exhausted for %s, retrying in %s", owner, wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-released:
			timer.Stop()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// tryAllocate scans the range once under the lock. It returns 0 and the
// current release signal when nothing is free.
func (p *Pool) tryAllocate(owner string) (int, <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.Size(); i++ {
		port := p.next
		p.next++
		if p.next > p.max {
			p.next = p.min
		}

		if existing, reserved := p.reserved[port]; reserved {
			logging.Debug("Ports", "Port %d already reserved by %s, skipping", port, existing)
			continue
		}
		if !p.probe(port) {
			logging.Debug("Ports", "Port %d in use outside the pool, skipping", port)
			continue
		}

		p.reserved[port] = owner
		logging.Debug("Ports", "Reserved port %d for %s", port, owner)
		return port, nil
	}
	return 0, p.released
}

// Release returns port to the pool if owner holds it.
func (p *Pool) Release(port int, owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, reserved := p.reserved[port]
	if !reserved {
		return
	}
	if existing != owner {
		logging.Debug("Ports", "Port %d is reserved by %s, not releasing for %s", port, existing, owner)
		return
	}
	delete(p.reserved, port)
	p.signalLocked()
}

// ReleaseOwner returns every port held by owner and reports how many.
func (p *Pool) ReleaseOwner(owner string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for port, existing := range p.reserved {
		if existing == owner {
			delete(p.reserved, port)
			n++
		}
	}
	if n > 0 {
		p.signalLocked()
	}
	return n
}

// Reserved reports how many ports are currently handed out.
func (p *Pool) Reserved() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reserved)
}

func (p *Pool) signalLocked() {
	close(p.released)
	p.released = make(chan struct{})
}

func listenProbe(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
