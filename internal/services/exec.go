package services

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
)

// commandResult captures one finished external command.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// runCommand executes name with args and captures stdout, stderr and the exit code.
func runCommand(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeDrainDelay
	setProcessGroup(cmd)

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// isToolMissing reports whether err means the binary could not be found or executed,
// as opposed to the binary running and failing.
func isToolMissing(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}

// ToolAvailable reports whether binary resolves in the current environment.
func ToolAvailable(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
