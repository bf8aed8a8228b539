package process

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"rigor/pkg/logging"
)

// CleanupStale terminates processes whose command line matches pattern, as
// understood by "pgrep -f". It is used to remove leftovers of an earlier,
// interrupted run before a new one starts. The current process is never
// touched. Best effort: failures are logged, and the number of processes
// signalled is returned.
func CleanupStale(pattern string, logger logging.TestLogger) int {
	currentPID := os.Getpid()

	cmd := exec.Command("pgrep", "-f", pattern)
	output, err := cmd.Output()
	if err != nil {
		// pgrep returns exit code 1 when no processes found, which is fine
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			logger.Debug("No stale processes match %q", pattern)
			return 0
		}
		logger.Debug("Could not check for stale processes: %v", err)
		return 0
	}

	killed := 0
	for _, pid := range parsePIDs(string(output)) {
		if pid == currentPID {
			continue
		}

		process, err := os.FindProcess(pid)
		if err != nil {
			continue
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			// Process might already be gone, that's fine
			logger.Debug("Could not send SIGTERM to PID %d: %v", pid, err)
			continue
		}

		killed++
		logger.Debug("Terminated stale process PID %d", pid)
	}

	if killed > 0 {
		logger.Info("Cleaned up %d stale process(es)", killed)
	}
	return killed
}

func parsePIDs(output string) []int {
	var pids []int
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}
