package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const DefaultWhisperCPPBinary = "whisper-cli"

// WhisperCPPService transcribes reference samples with a local whisper.cpp binary.
// whisper.cpp only reads 16 kHz mono WAV, so every sample is converted with ffmpeg first.
type WhisperCPPService struct {
	binary    string
	modelPath string
	ffmpeg    *FFmpegService
}

func NewWhisperCPPService(binary, modelPath string, ffmpeg *FFmpegService) *WhisperCPPService {
	if binary == "" {
		binary = DefaultWhisperCPPBinary
	}
	return &WhisperCPPService{
		binary:    binary,
		modelPath: modelPath,
		ffmpeg:    ffmpeg,
	}
}

func (s *WhisperCPPService) Name() string {
	return "whisper.cpp"
}

// Transcribe converts the sample into a temporary workspace, runs whisper.cpp with
// txt export and returns the trimmed transcript.
func (s *WhisperCPPService) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	if strings.TrimSpace(s.modelPath) == "" {
		return nil, fmt.Errorf("whisper.cpp model path is not configured")
	}

	tempDir, err := os.MkdirTemp("", "voicebox-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary workspace: %w", err)
	}
	defer os.RemoveAll(tempDir)

	wavPath := filepath.Join(tempDir, "reference-16k-mono.wav")
	if err := s.ffmpeg.ToMono16k(ctx, audioPath, wavPath); err != nil {
		return nil, fmt.Errorf("failed to prepare audio for whisper.cpp: %w", err)
	}

	textBase := filepath.Join(tempDir, "transcript")
	args := buildWhisperArgs(s.modelPath, wavPath, textBase)

	result, err := runCommand(ctx, s.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp transcription failed (exit=%d): %s: %w", result.ExitCode, lastLines(result.Stderr, 3), err)
	}

	content, err := os.ReadFile(textBase + ".txt")
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp completed but transcript .txt file is missing: %w", err)
	}

	text := strings.Join(strings.Fields(string(content)), " ")
	if text == "" {
		return nil, fmt.Errorf("whisper.cpp returned an empty transcript for %s", audioPath)
	}

	log.Printf("[WhisperCPP] Transcribed %s (text: %q)", audioPath, truncateString(text, 80))
	return &Transcription{AudioPath: audioPath, Text: text}, nil
}

// buildWhisperArgs builds whisper.cpp args for txt transcript export.
func buildWhisperArgs(modelPath, audioPath, textBase string) []string {
	return []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
		"-nt",
	}
}
