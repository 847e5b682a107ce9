package references

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/voicebox/internal/models"
	"github.com/bobarin/voicebox/internal/services"
)

type stubTranscriber struct {
	text      string
	audioPath string
	err       error
	calls     int
	gotPath   string
}

func (s *stubTranscriber) Name() string { return "stub" }

func (s *stubTranscriber) Transcribe(_ context.Context, audioPath string) (*services.Transcription, error) {
	s.calls++
	s.gotPath = audioPath
	if s.err != nil {
		return nil, s.err
	}
	out := s.audioPath
	if out == "" {
		out = audioPath
	}
	return &services.Transcription{AudioPath: out, Text: s.text}, nil
}

func storeWithReference(t *testing.T, sidecar string) *Store {
	t.Helper()
	store := newTestStore(t)
	putFile(t, store, "default/basic_ref_en.wav", "RIFF")
	if sidecar != "" {
		putFile(t, store, "default/basic_ref_en.txt", sidecar)
	}
	return store
}

func TestResolveExplicitWins(t *testing.T) {
	stub := &stubTranscriber{text: "transcribed"}
	r := NewResolver(storeWithReference(t, "World"), stub, false)

	res, err := r.Resolve(context.Background(), "default/basic_ref_en.wav", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.Equal(t, models.TextSourceExplicit, res.Source)
	assert.Equal(t, 0, stub.calls)
}

func TestResolveSidecar(t *testing.T) {
	stub := &stubTranscriber{text: "transcribed"}
	r := NewResolver(storeWithReference(t, "World\n"), stub, false)

	res, err := r.Resolve(context.Background(), "default/basic_ref_en.wav", "   ")
	require.NoError(t, err)
	assert.Equal(t, "World", res.Text)
	assert.Equal(t, models.TextSourceSidecar, res.Source)
	assert.False(t, res.Degraded)
	assert.Equal(t, 0, stub.calls)
}

func TestResolveNothingAvailable(t *testing.T) {
	r := NewResolver(storeWithReference(t, ""), nil, false)

	res, err := r.Resolve(context.Background(), "default/basic_ref_en.wav", "")
	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
	assert.Equal(t, models.TextSourceNone, res.Source)
	assert.Equal(t, res.Location.Path, res.AudioPath)
}

func TestResolveTranscribesAndCaches(t *testing.T) {
	store := newTestStore(t)
	putFile(t, store, "custom/my_voice.wav", "RIFF")
	stub := &stubTranscriber{text: " Some call me nature. "}
	r := NewResolver(store, stub, true)

	res, err := r.Resolve(context.Background(), "custom/my_voice.wav", "")
	require.NoError(t, err)
	assert.Equal(t, "Some call me nature.", res.Text)
	assert.Equal(t, models.TextSourceTranscribed, res.Source)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, res.Location.Path, stub.gotPath)

	// The cached sidecar answers the next request.
	res, err = r.Resolve(context.Background(), "custom/my_voice.wav", "")
	require.NoError(t, err)
	assert.Equal(t, models.TextSourceSidecar, res.Source)
	assert.Equal(t, 1, stub.calls)
}

func TestResolveNeverWritesDefaultCollection(t *testing.T) {
	store := storeWithReference(t, "")
	stub := &stubTranscriber{text: "Some call me nature."}
	r := NewResolver(store, stub, true)

	for i := 0; i < 2; i++ {
		res, err := r.Resolve(context.Background(), "default/basic_ref_en.wav", "")
		require.NoError(t, err)
		assert.Equal(t, models.TextSourceTranscribed, res.Source)
	}
	assert.Equal(t, 2, stub.calls)
	assert.NoFileExists(t, filepath.Join(store.Root(), "default", "basic_ref_en.txt"))
}

func TestResolveTranscriptionFailureIsAbsorbed(t *testing.T) {
	stub := &stubTranscriber{err: errors.New("quota exceeded")}
	r := NewResolver(storeWithReference(t, ""), stub, true)

	res, err := r.Resolve(context.Background(), "default/basic_ref_en.wav", "")
	require.NoError(t, err)
	assert.Equal(t, "", res.Text)
	assert.Equal(t, models.TextSourceNone, res.Source)
	assert.True(t, res.Degraded)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "quota exceeded")
}

func TestResolveUnreadableSidecarFallsThrough(t *testing.T) {
	store := storeWithReference(t, "\xff\xfe")
	stub := &stubTranscriber{text: "Recovered text"}
	r := NewResolver(store, stub, false)

	res, err := r.Resolve(context.Background(), "default/basic_ref_en.wav", "")
	require.NoError(t, err)
	assert.Equal(t, "Recovered text", res.Text)
	assert.Equal(t, models.TextSourceTranscribed, res.Source)
	assert.True(t, res.Degraded)
}

func TestResolveIgnoresRewrittenPathOutsideRoot(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "clipped.wav")
	require.NoError(t, os.WriteFile(outside, []byte("RIFF"), 0o644))
	stub := &stubTranscriber{text: "hi", audioPath: outside}
	r := NewResolver(storeWithReference(t, ""), stub, false)

	res, err := r.Resolve(context.Background(), "default/basic_ref_en.wav", "")
	require.NoError(t, err)
	assert.Equal(t, res.Location.Path, res.AudioPath)
}

func TestResolveRejectsTraversalBeforeReading(t *testing.T) {
	stub := &stubTranscriber{text: "never"}
	r := NewResolver(storeWithReference(t, ""), stub, false)

	_, err := r.Resolve(context.Background(), "../../etc/passwd", "")
	assert.Equal(t, models.KindAccessDenied, models.KindOf(err))
	assert.Equal(t, 0, stub.calls)
}

func TestResolveMissingAudio(t *testing.T) {
	r := NewResolver(newTestStore(t), nil, false)

	_, err := r.Resolve(context.Background(), "custom/nobody.wav", "Hello")
	assert.Equal(t, models.KindValidation, models.KindOf(err))
	assert.ErrorIs(t, err, ErrReferenceNotFound)
}
