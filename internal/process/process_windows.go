//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Windows API constants
const (
	PROCESS_TERMINATE         = 0x0001
	PROCESS_QUERY_INFORMATION = 0x0400
)

// Windows API functions
var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

func shellCommand(line string) []string {
	return []string{"cmd", "/C", line}
}

// configureProcAttr configures the process attributes for Windows
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// Windows has no polite equivalent of SIGTERM for console-less children.
func terminate(pid int) error {
	return terminateProcess(pid)
}

func forceKill(pid int) error {
	return terminateProcess(pid)
}

func terminateProcess(pid int) error {
	handle, _, err := procOpenProcess.Call(
		uintptr(PROCESS_TERMINATE|PROCESS_QUERY_INFORMATION),
		uintptr(0), // bInheritHandle = FALSE
		uintptr(pid),
	)
	if handle == 0 {
		return fmt.Errorf("failed to open process %d: %v", pid, err)
	}
	defer procCloseHandle.Call(handle)

	success, _, err := procTerminateProcess.Call(handle, uintptr(1))
	if success == 0 {
		return fmt.Errorf("failed to terminate process %d: %v", pid, err)
	}
	return nil
}

func coreDumped(*os.ProcessState) bool { return false }
