package scheduler

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// EnvThreads overrides CPU auto-detection when the thread spec is "auto".
const EnvThreads = "RIGOR_THREADS"

// ResolveThreads turns a thread specification into a worker count.
//
//	N      exactly N workers (0 or less means auto)
//	auto   RIGOR_THREADS if set, else the number of CPUs
//	xMULT  MULT times the number of CPUs, at least 1
func ResolveThreads(spec, envValue string, cpus int) (int, error) {
	if cpus < 1 {
		cpus = 1
	}
	spec = strings.TrimSpace(strings.ToLower(spec))

	switch {
	case spec == "" || spec == "auto":
		return autoThreads(envValue, cpus)
	case strings.HasPrefix(spec, "x"):
		mult, err := strconv.ParseFloat(spec[1:], 64)
		if err != nil || mult <= 0 {
			return 0, fmt.Errorf("invalid thread multiplier %q", spec)
		}
		return max(1, int(math.Round(mult*float64(cpus)))), nil
	default:
		n, err := strconv.Atoi(spec)
		if err != nil {
			return 0, fmt.Errorf("invalid thread count %q: use N, auto or xMULT", spec)
		}
		if n <= 0 {
			return autoThreads(envValue, cpus)
		}
		return n, nil
	}
}

func autoThreads(envValue string, cpus int) (int, error) {
	envValue = strings.TrimSpace(envValue)
	if envValue == "" {
		return cpus, nil
	}
	n, err := strconv.Atoi(envValue)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", EnvThreads, envValue)
	}
	return n, nil
}

// Threads resolves spec against the current environment and host.
func Threads(spec string) (int, error) {
	return ResolveThreads(spec, os.Getenv(EnvThreads), runtime.NumCPU())
}
