//go:build !windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func shellCommand(line string) []string {
	return []string{"/bin/sh", "-c", line}
}

// configureProcAttr configures the process attributes for creating a new process group
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Create new process group with this process as leader
	}
}

func terminate(pid int) error {
	return killProcessGroup(pid, syscall.SIGTERM)
}

func forceKill(pid int) error {
	return killProcessGroup(pid, syscall.SIGKILL)
}

// killProcessGroup sends a signal to an entire process group to terminate parent and all children
func killProcessGroup(pid int, sig syscall.Signal) error {
	// Negative PID addresses the whole group
	if err := syscall.Kill(-pid, sig); err != nil {
		if err2 := syscall.Kill(pid, sig); err2 != nil {
			return fmt.Errorf("failed to signal process group -%d: %v, also failed to signal process %d: %v", pid, err, pid, err2)
		}
	}
	return nil
}

func coreDumped(state *os.ProcessState) bool {
	if state == nil {
		return false
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled() && ws.CoreDump()
}
