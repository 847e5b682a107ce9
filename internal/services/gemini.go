package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiTranscribeModel = "gemini-2.5-flash"

const geminiTranscribePrompt = "Transcribe the speech in this audio clip verbatim. " +
	"Respond with the transcript only, without timestamps, speaker labels or commentary."

// audioMimeTypes maps reference extensions to the MIME types Gemini accepts inline.
var audioMimeTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mp3",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/aac",
}

// GeminiService transcribes reference samples with a Gemini model.
type GeminiService struct {
	client *genai.Client
	model  string
}

// NewGeminiService creates the Gemini API client.
// model: empty string defaults to gemini-2.5-flash
func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	if model == "" {
		model = defaultGeminiTranscribeModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiService{client: client, model: model}, nil
}

func (s *GeminiService) Name() string {
	return "gemini"
}

// Transcribe sends the sample inline and returns the model's transcript.
// Reference samples are short (a few seconds), well under the inline request limit.
func (s *GeminiService) Transcribe(ctx context.Context, audioPath string) (*Transcription, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference audio: %w", err)
	}

	mimeType, ok := audioMimeTypes[strings.ToLower(filepath.Ext(audioPath))]
	if !ok {
		mimeType = "audio/wav"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(geminiTranscribePrompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini transcription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("gemini returned an empty transcript for %s", audioPath)
	}

	log.Printf("[Gemini] Transcribed %s with %s (text: %q)", audioPath, s.model, truncateString(text, 80))
	return &Transcription{AudioPath: audioPath, Text: text}, nil
}
