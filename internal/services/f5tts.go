package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/bobarin/voicebox/internal/jobs"
	"github.com/bobarin/voicebox/internal/models"
)

const (
	DefaultF5Binary = "f5-tts_infer-cli"
	DefaultF5Model  = "F5TTS_v1_Base"

	// pipeDrainDelay bounds how long Wait keeps reading stdout/stderr after the
	// process is gone, in case a grandchild still holds the pipes open.
	pipeDrainDelay = 5 * time.Second
)

// ErrNoOutput means the inference tool exited 0 without writing the declared file.
var ErrNoOutput = errors.New("tool exited successfully but produced no output file")

// ---------------------------------------------------------------------------
// F5TTSService
// ---------------------------------------------------------------------------

// F5TTSService runs the F5-TTS command line tool, one child process per request.
type F5TTSService struct {
	binary   string
	model    string
	registry *jobs.Registry
}

func NewF5TTSService(binary, model string, registry *jobs.Registry) *F5TTSService {
	if binary == "" {
		binary = DefaultF5Binary
	}
	if model == "" {
		model = DefaultF5Model
	}
	return &F5TTSService{
		binary:   binary,
		model:    model,
		registry: registry,
	}
}

func (s *F5TTSService) Binary() string {
	return s.binary
}

// Invocation describes a finished inference run.
type Invocation struct {
	OutputPath string
	Args       []string
	ExitCode   int
	Stdout     string
	Stderr     string
	Duration   time.Duration
}

// Invoke starts the tool for spec, registers the process under spec.RequestID and waits
// for it. The returned error is a *models.Error of kind ToolUnavailable, SynthesisFailed,
// Cancelled or Validation (request id already running).
func (s *F5TTSService) Invoke(ctx context.Context, spec models.ResolvedSynthesisSpec) (*Invocation, error) {
	if err := os.MkdirAll(spec.OutputDir, 0o755); err != nil {
		return nil, models.NewSynthesisFailed("failed to create output directory", "", err)
	}

	args := BuildF5Args(s.model, spec)
	inv := &Invocation{OutputPath: spec.OutputPath(), Args: args}

	cmd := exec.CommandContext(ctx, s.binary, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeDrainDelay
	setProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if isToolMissing(err) {
			return nil, models.NewToolUnavailable(s.binary, err)
		}
		return nil, models.NewSynthesisFailed("failed to start TTS generation", "", err)
	}

	handle := processHandle(cmd)
	job := jobs.NewJob(spec.RequestID, handle, cmd.Process.Pid, spec.Timestamp)
	if err := s.registry.Register(job); err != nil {
		_ = handle.Kill()
		_ = cmd.Wait()
		job.Exited()
		return nil, &models.Error{
			Kind:    models.KindValidation,
			Message: fmt.Sprintf("request_id %s is already running", spec.RequestID),
			Err:     err,
		}
	}
	log.Printf("[F5TTS] Started %s (pid %d, model=%s, output=%s)", spec.RequestID, cmd.Process.Pid, s.model, inv.OutputPath)

	waitErr := cmd.Wait()
	job.Exited()

	inv.Duration = time.Since(start)
	inv.Stdout = stdout.String()
	inv.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		inv.ExitCode = cmd.ProcessState.ExitCode()
	}

	outcome := models.JobStateCompleted
	switch {
	case ctx.Err() != nil:
		// The caller went away; exec killed the process group on its behalf.
		outcome = models.JobStateCancelled
	case waitErr != nil:
		outcome = models.JobStateFailed
	}

	switch s.registry.Finish(job, outcome) {
	case models.JobStateCancelled:
		log.Printf("[F5TTS] %s cancelled after %v", spec.RequestID, inv.Duration.Round(time.Millisecond))
		return inv, models.NewCancelled(spec.RequestID)
	case models.JobStateFailed:
		log.Printf("[F5TTS] %s failed after %v (exit=%d)", spec.RequestID, inv.Duration.Round(time.Millisecond), inv.ExitCode)
		return inv, models.NewSynthesisFailed("Error during TTS generation", inv.Stderr, waitErr)
	}

	if _, err := os.Stat(inv.OutputPath); err != nil {
		log.Printf("[F5TTS] %s exited 0 but %s is missing", spec.RequestID, inv.OutputPath)
		return inv, models.NewSynthesisFailed(
			"Generated audio file not found. The TTS command may have failed silently.",
			inv.Stderr,
			ErrNoOutput,
		)
	}

	log.Printf("[F5TTS] %s completed in %v", spec.RequestID, inv.Duration.Round(time.Millisecond))
	return inv, nil
}

// BuildF5Args builds the inference command line:
// --model <id> --ref_audio <path> --gen_text <text> -o <dir> -w <file>
// [--ref_text <text>] [--remove_silence] --nfe_step <n> --cross_fade_duration <s> --seed <n>
func BuildF5Args(model string, spec models.ResolvedSynthesisSpec) []string {
	args := []string{
		"--model", model,
		"--ref_audio", spec.ReferenceAudioPath,
		"--gen_text", spec.Text,
		"-o", spec.OutputDir,
		"-w", spec.OutputFilename,
	}
	if spec.ReferenceText != "" {
		args = append(args, "--ref_text", spec.ReferenceText)
	}
	if spec.RemoveSilence {
		args = append(args, "--remove_silence")
	}
	args = append(args,
		"--nfe_step", strconv.Itoa(spec.NFESteps),
		"--cross_fade_duration", strconv.FormatFloat(spec.CrossfadeDuration, 'f', -1, 64),
		"--seed", strconv.FormatUint(uint64(spec.Seed), 10),
	)
	return args
}
