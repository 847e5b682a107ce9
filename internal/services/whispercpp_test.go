package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWhisperScript writes a transcript to the -of base and records its argv.
const fakeWhisperScript = `printf '%s\n' "$@" > "$(dirname "$0")/whisper-args.txt"
base=""
while [ $# -gt 0 ]; do
  case "$1" in
    -of) base="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf '  Some call me\n nature.  \n' > "$base.txt"
`

func TestWhisperCPPTranscribe(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := NewFFmpegService(writeScript(t, dir, "ffmpeg", fakeFFmpegScript))
	whisper := writeScript(t, dir, "whisper-cli", fakeWhisperScript)
	svc := NewWhisperCPPService(whisper, "/models/ggml-base.en.bin", ffmpeg)

	audio := writeArtifact(t)
	res, err := svc.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "Some call me nature.", res.Text)
	assert.Equal(t, audio, res.AudioPath)

	args, err := os.ReadFile(filepath.Join(dir, "whisper-args.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "/models/ggml-base.en.bin")
	assert.Contains(t, string(args), "-otxt")
}

func TestWhisperCPPRequiresModel(t *testing.T) {
	svc := NewWhisperCPPService("", "", NewFFmpegService(""))
	_, err := svc.Transcribe(context.Background(), "ref.wav")
	assert.Error(t, err)
}

func TestWhisperCPPFailure(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := NewFFmpegService(writeScript(t, dir, "ffmpeg", fakeFFmpegScript))
	whisper := writeScript(t, dir, "whisper-cli", "echo 'failed to load model' >&2\nexit 2\n")
	svc := NewWhisperCPPService(whisper, "/models/missing.bin", ffmpeg)

	_, err := svc.Transcribe(context.Background(), writeArtifact(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load model")
}

func TestBuildWhisperArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"-m", "m.bin", "-f", "in.wav", "-of", "out", "-otxt", "-nt"},
		buildWhisperArgs("m.bin", "in.wav", "out"))
}
