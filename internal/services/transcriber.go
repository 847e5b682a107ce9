package services

import "context"

// ---------------------------------------------------------------------------
// Transcriber — common interface for reference-audio transcription providers.
// OpenAI Whisper, Gemini and a local whisper.cpp binary implement it so the
// reference resolver can use whichever is configured.
// ---------------------------------------------------------------------------

// Transcription is the result of transcribing one reference sample.
type Transcription struct {
	// AudioPath is the sample the transcript belongs to. Providers that clip or
	// convert the input may return a different path than the one they were given.
	AudioPath string
	Text      string
}

// Transcriber turns a reference sample into its transcript.
type Transcriber interface {
	// Transcribe returns the transcript of the audio at audioPath.
	Transcribe(ctx context.Context, audioPath string) (*Transcription, error)

	// Name identifies the provider in logs.
	Name() string
}
