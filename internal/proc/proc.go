// Package proc probes and signals processes tracked in the registry.
package proc

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// Alive probes pid with signal 0. A process that exists but belongs to
// another user (EPERM) counts as alive so that it is never reported as
// interrupted by mistake.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// AnyAlive reports whether at least one of pids is alive.
func AnyAlive(pids ...int) bool {
	for _, pid := range pids {
		if Alive(pid) {
			return true
		}
	}
	return false
}

// Terminate sends SIGTERM to pid's process group and then to pid itself.
// Errors (usually ESRCH for an already dead process) are ignored; it
// reports whether either signal was delivered.
func Terminate(pid int) bool {
	if pid <= 0 || pid == os.Getpid() {
		return false
	}
	groupErr := syscall.Kill(-pid, syscall.SIGTERM)
	pidErr := syscall.Kill(pid, syscall.SIGTERM)
	return groupErr == nil || pidErr == nil
}

// Detach puts cmd in its own session so it survives the parent's exit and
// is not hit by signals aimed at the parent's terminal or process group.
func Detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
}

// Group puts cmd in a new process group and makes context cancellation
// signal the whole group.
func Group(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
}

// ExitCode extracts the exit status from an *exec.ExitError. A nil err
// yields 0; any other error is returned unchanged with code -1.
func ExitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Signal returns the name of the signal that ended the process, if any.
func Signal(state *os.ProcessState) string {
	if state == nil {
		return ""
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return ws.Signal().String()
}
