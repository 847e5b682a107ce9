// Package jobs tracks in-flight synthesis processes.
//
// The Registry is the only place that can signal a child process. Callers that launch a
// process own waiting on it; they hand the registry a Job wrapping the process and report
// how the wait ended through Finish. Every state change happens under one mutex, so a
// cancel racing a normal exit resolves to exactly one terminal state.
package jobs

import (
	"errors"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/bobarin/voicebox/internal/models"
)

// DefaultGracePeriod bounds how long Cancel waits for a killed process to exit.
const DefaultGracePeriod = 5 * time.Second

var ErrDuplicateRequestID = errors.New("request id is already registered")

// Process is the part of a running child process the registry is allowed to touch.
// *os.Process satisfies it.
type Process interface {
	Kill() error
}

// CancelOutcome is the result of a cancellation request. Neither value is an error.
type CancelOutcome string

const (
	CancelOutcomeCancelled CancelOutcome = "cancelled"
	CancelOutcomeNotFound  CancelOutcome = "not_found"
)

// Job is one tracked process. Its state is owned by the Registry it is registered with.
type Job struct {
	requestID string
	proc      Process
	pid       int
	startedAt time.Time
	timestamp string

	done     chan struct{}
	exitOnce sync.Once

	state models.JobState
}

// NewJob wraps a started process. timestamp is the human-readable creation time that also
// names the job's artifacts.
func NewJob(requestID string, proc Process, pid int, timestamp string) *Job {
	return &Job{
		requestID: requestID,
		proc:      proc,
		pid:       pid,
		startedAt: time.Now(),
		timestamp: timestamp,
		done:      make(chan struct{}),
		state:     models.JobStateRunning,
	}
}

func (j *Job) RequestID() string {
	return j.requestID
}

// Exited must be called by the owner once its wait on the process returned.
func (j *Job) Exited() {
	j.exitOnce.Do(func() { close(j.done) })
}

// Done is closed after Exited.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Snapshot is a read-only view of a registered job.
type Snapshot struct {
	RequestID string
	PID       int
	StartedAt time.Time
	Timestamp string
	State     models.JobState
}

func (j *Job) snapshot() Snapshot {
	return Snapshot{
		RequestID: j.requestID,
		PID:       j.pid,
		StartedAt: j.startedAt,
		Timestamp: j.timestamp,
		State:     j.state,
	}
}

// Registry maps request ids to running jobs.
type Registry struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	grace time.Duration
}

func NewRegistry(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Registry{
		jobs:  make(map[string]*Job),
		grace: grace,
	}
}

// Register inserts job. It fails if the request id is already present.
func (r *Registry) Register(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.requestID]; exists {
		return ErrDuplicateRequestID
	}
	r.jobs[job.requestID] = job
	log.Printf("[Registry] Registered %s (pid %d, running: %d)", job.requestID, job.pid, len(r.jobs))
	return nil
}

// Contains reports whether requestID is currently registered.
func (r *Registry) Contains(requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[requestID]
	return ok
}

// Status returns a snapshot of the running job, if any. It has no side effects.
func (r *Registry) Status(requestID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[requestID]
	if !ok {
		return Snapshot{}, false
	}
	return job.snapshot(), true
}

// List returns snapshots of all running jobs, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	out := make([]Snapshot, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.snapshot())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Remove deletes the entry for requestID. Removing an absent id is a no-op.
func (r *Registry) Remove(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, requestID)
}

// Finish records how the owner's wait ended and removes job from the registry.
// If a cancel already moved the job to a terminal state, that state is returned
// unchanged and outcome is ignored.
func (r *Registry) Finish(job *Job, outcome models.JobState) models.JobState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.state.Terminal() {
		return job.state
	}
	job.state = outcome
	if current, ok := r.jobs[job.requestID]; ok && current == job {
		delete(r.jobs, job.requestID)
	}
	return outcome
}

// Cancel hard-kills the process registered under requestID and removes the entry.
// It then waits up to the grace period for the owner to observe the exit; the entry is
// gone whether or not the process exits in time.
func (r *Registry) Cancel(requestID string) CancelOutcome {
	r.mu.Lock()
	job, ok := r.jobs[requestID]
	if !ok {
		r.mu.Unlock()
		return CancelOutcomeNotFound
	}
	delete(r.jobs, requestID)
	job.state = models.JobStateCancelled
	// SIGKILL: the inference tool ignores SIGTERM while computing.
	killErr := job.proc.Kill()
	r.mu.Unlock()

	if killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		log.Printf("[Registry] Kill %s (pid %d) failed: %v", requestID, job.pid, killErr)
	}

	timer := time.NewTimer(r.grace)
	defer timer.Stop()
	select {
	case <-job.done:
		log.Printf("[Registry] Cancelled %s (pid %d)", requestID, job.pid)
	case <-timer.C:
		log.Printf("[Registry] Cancelled %s but pid %d did not exit within %v", requestID, job.pid, r.grace)
	}
	return CancelOutcomeCancelled
}
