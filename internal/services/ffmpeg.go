package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobarin/voicebox/internal/models"
)

const DefaultFFmpegBinary = "ffmpeg"

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	binary string
}

func NewFFmpegService(binary string) *FFmpegService {
	if binary == "" {
		binary = DefaultFFmpegBinary
	}
	return &FFmpegService{binary: binary}
}

func (s *FFmpegService) Binary() string {
	return s.binary
}

// ChangeTempo resamples inputPath by speed without changing pitch:
// ffmpeg -i <in> -filter:a atempo=<speed> -y <out>
func (s *FFmpegService) ChangeTempo(ctx context.Context, inputPath, outputPath string, speed float64) error {
	args := []string{
		"-i", inputPath,
		"-filter:a", "atempo=" + formatSpeed(speed),
		"-y",
		outputPath,
	}
	return s.run(ctx, "change tempo", outputPath, args)
}

// ToMono16k converts any audio file to 16 kHz mono PCM WAV, the input whisper.cpp expects.
func (s *FFmpegService) ToMono16k(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
	return s.run(ctx, "convert to 16k mono", outputPath, args)
}

// run executes ffmpeg and checks that outputPath exists afterwards; a zero exit code
// alone does not prove ffmpeg wrote anything.
func (s *FFmpegService) run(ctx context.Context, op, outputPath string, args []string) error {
	result, err := runCommand(ctx, s.binary, args...)
	if err != nil {
		if isToolMissing(err) {
			return models.NewToolUnavailable(s.binary, err)
		}
		return models.NewSynthesisFailed(
			fmt.Sprintf("ffmpeg %s failed (exit=%d)", op, result.ExitCode),
			lastLines(result.Stderr, 5),
			err,
		)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return models.NewSynthesisFailed(fmt.Sprintf("ffmpeg %s produced no output", op), lastLines(result.Stderr, 5), err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Post-processing
// ---------------------------------------------------------------------------

// PostResult is the outcome of post-processing. A degraded result is still a success:
// Path points at the unmodified artifact and Err says why the transform was skipped.
type PostResult struct {
	Path     string
	Applied  bool
	Degraded bool
	Err      error
}

// PostProcessor applies optional transforms to a synthesized artifact.
type PostProcessor struct {
	ffmpeg *FFmpegService
}

func NewPostProcessor(ffmpeg *FFmpegService) *PostProcessor {
	return &PostProcessor{ffmpeg: ffmpeg}
}

// Apply adjusts the tempo of inputPath by speed. speed == 1.0 is a no-op. Any failure
// falls back to inputPath.
func (p *PostProcessor) Apply(ctx context.Context, speed float64, inputPath string) PostResult {
	if speed == models.DefaultSpeed {
		return PostResult{Path: inputPath}
	}

	outputPath := SpeedArtifactPath(inputPath, speed)
	if err := p.ffmpeg.ChangeTempo(ctx, inputPath, outputPath, speed); err != nil {
		log.Printf("[FFmpeg] Speed %s not applied to %s, serving original: %v", formatSpeed(speed), filepath.Base(inputPath), err)
		return PostResult{Path: inputPath, Degraded: true, Err: err}
	}

	log.Printf("[FFmpeg] Applied speed %s to %s", formatSpeed(speed), filepath.Base(inputPath))
	return PostResult{Path: outputPath, Applied: true}
}

// SpeedArtifactPath names the tempo-adjusted sibling of inputPath.
func SpeedArtifactPath(inputPath string, speed float64) string {
	ext := filepath.Ext(inputPath)
	return fmt.Sprintf("%s_x%s%s", strings.TrimSuffix(inputPath, ext), formatSpeed(speed), ext)
}

func formatSpeed(speed float64) string {
	return strconv.FormatFloat(speed, 'f', -1, 64)
}

// lastLines keeps the tail of ffmpeg's stderr, which is where the actual error is.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
