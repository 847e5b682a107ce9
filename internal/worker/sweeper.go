package worker

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobarin/voicebox/internal/jobs"
)

// Sweeper deletes synthesized artifacts once they are older than the retention period.
type Sweeper struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	registry  *jobs.Registry
}

func NewSweeper(dir string, retention, interval time.Duration, registry *jobs.Registry) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		dir:       dir,
		retention: retention,
		interval:  interval,
		registry:  registry,
	}
}

// Start sweeps every interval until ctx is done. A zero retention disables sweeping.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.retention <= 0 {
		log.Println("[Sweeper] Output retention disabled")
		return nil
	}
	log.Printf("[Sweeper] Removing artifacts in %s older than %v every %v", s.dir, s.retention, s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Sweeper] Shutting down...")
			return nil
		case now := <-ticker.C:
			removed, err := s.Sweep(now)
			if err != nil {
				log.Printf("[Sweeper] Sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("[Sweeper] Removed %d artifacts", removed)
			}
		}
	}
}

// Sweep removes artifacts last modified before now-retention. Files belonging to a
// running job (named after its timestamp) are kept regardless of age.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	running := s.registry.List()
	cutoff := now.Add(-s.retention)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if belongsToRunningJob(entry.Name(), running) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[Sweeper] Failed to remove %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

func belongsToRunningJob(name string, running []jobs.Snapshot) bool {
	for _, snap := range running {
		if snap.Timestamp != "" && strings.HasPrefix(name, snap.Timestamp) {
			return true
		}
	}
	return false
}
