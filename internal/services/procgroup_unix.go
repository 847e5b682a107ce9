//go:build unix

package services

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/bobarin/voicebox/internal/jobs"
)

// setProcessGroup starts cmd as the leader of its own process group so a kill reaches
// every process a wrapper script spawned, not only the direct child. Context
// cancellation kills the whole group too.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.Cancel = func() error {
		return killGroup(cmd.Process.Pid)
	}
}

// processHandle returns what the registry kills on cancel. Call after Start.
func processHandle(cmd *exec.Cmd) jobs.Process {
	return groupProcess{pid: cmd.Process.Pid}
}

type groupProcess struct {
	pid int
}

func (p groupProcess) Kill() error {
	return killGroup(p.pid)
}

func killGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
