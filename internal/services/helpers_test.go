package services

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeScript installs a POSIX shell script standing in for an external tool.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are POSIX shell scripts")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// fakeF5Script writes "<tool output>" into -o/-w and records its argv, one per line.
const fakeF5Script = `printf '%s\n' "$@" > "$(dirname "$0")/args.txt"
out=""
name=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    -w) name="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf 'RIFF-synthesized' > "$out/$name"
`

// fakeFFmpegScript copies its -i input to the last argument.
const fakeFFmpegScript = `in=""
last=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift 2 ;;
    *) last="$1"; shift ;;
  esac
done
cp "$in" "$last"
printf '%s' '-tempo' >> "$last"
`
