package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIService transcribes reference samples with the hosted Whisper model.
type OpenAIService struct {
	client *openai.Client
}

func NewOpenAIService(apiKey string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
	}
}

func (s *OpenAIService) Name() string {
	return "openai-whisper"
}

// Transcribe uploads the sample at audioPath to Whisper and returns the plain transcript.
func (s *OpenAIService) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath, // the library opens and streams the file
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, fmt.Errorf("whisper returned an empty transcript for %s", audioPath)
	}

	log.Printf("[Whisper] Transcribed %s (text: %q)", audioPath, truncateString(text, 80))
	return &Transcription{AudioPath: audioPath, Text: text}, nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
