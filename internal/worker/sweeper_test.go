package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobarin/voicebox/internal/jobs"
)

type idleProcess struct{}

func (idleProcess) Kill() error { return nil }

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestSweepRemovesExpiredArtifacts(t *testing.T) {
	dir := t.TempDir()
	registry := jobs.NewRegistry(time.Second)

	old := writeAged(t, dir, "2024-01-01_00-00-00-000000_aaaa.wav", 48*time.Hour)
	oldSpeed := writeAged(t, dir, "2024-01-01_00-00-00-000000_aaaa_x1.5.wav", 48*time.Hour)
	fresh := writeAged(t, dir, "2024-01-02_00-00-00-000000_bbbb.wav", time.Minute)

	removed, err := NewSweeper(dir, 24*time.Hour, time.Minute, registry).Sweep(time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, removed)
	assert.NoFileExists(t, old)
	assert.NoFileExists(t, oldSpeed)
	assert.FileExists(t, fresh)
}

func TestSweepKeepsRunningJobArtifacts(t *testing.T) {
	dir := t.TempDir()
	registry := jobs.NewRegistry(time.Second)

	const ts = "2024-01-01_00-00-00-000000"
	require.NoError(t, registry.Register(jobs.NewJob("long-job", idleProcess{}, 1, ts)))
	partial := writeAged(t, dir, ts+"_cccc.wav", 48*time.Hour)

	removed, err := NewSweeper(dir, time.Hour, time.Minute, registry).Sweep(time.Now())
	require.NoError(t, err)

	assert.Equal(t, 0, removed)
	assert.FileExists(t, partial)
}

func TestSweepMissingDirectory(t *testing.T) {
	sweeper := NewSweeper(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Minute, jobs.NewRegistry(time.Second))
	removed, err := sweeper.Sweep(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSweeperDisabledReturnsImmediately(t *testing.T) {
	sweeper := NewSweeper(t.TempDir(), 0, time.Minute, jobs.NewRegistry(time.Second))
	done := make(chan error, 1)
	go func() { done <- sweeper.Start(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper kept running")
	}
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	sweeper := NewSweeper(t.TempDir(), time.Hour, 10*time.Millisecond, jobs.NewRegistry(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
