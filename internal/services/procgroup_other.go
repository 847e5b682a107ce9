//go:build !unix

package services

import (
	"os/exec"

	"github.com/bobarin/voicebox/internal/jobs"
)

func setProcessGroup(*exec.Cmd) {}

func processHandle(cmd *exec.Cmd) jobs.Process {
	return cmd.Process
}
