package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/voicebox/internal/events"
	"github.com/bobarin/voicebox/internal/jobs"
	"github.com/bobarin/voicebox/internal/models"
	"github.com/bobarin/voicebox/internal/references"
	"github.com/bobarin/voicebox/internal/services"
)

// Worker runs synthesis requests end to end:
// resolve reference -> invoke (tracked in the registry) -> post-process.
type Worker struct {
	registry  *jobs.Registry
	resolver  *references.Resolver
	f5        *services.F5TTSService
	post      *services.PostProcessor
	events    events.Publisher
	outputDir string
}

func New(
	registry *jobs.Registry,
	resolver *references.Resolver,
	f5Svc *services.F5TTSService,
	post *services.PostProcessor,
	publisher events.Publisher,
	outputDir string,
) *Worker {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Worker{
		registry:  registry,
		resolver:  resolver,
		f5:        f5Svc,
		post:      post,
		events:    publisher,
		outputDir: outputDir,
	}
}

// Result describes a synthesis request. RequestID and Seed are filled in as soon as they
// are known, so a failed request still reports them.
type Result struct {
	RequestID  string
	Seed       uint32
	Path       string // artifact to stream
	Reference  references.Resolution
	Invocation *services.Invocation
	Post       services.PostResult
}

// Synthesize runs one request to completion. The error, if any, is a *models.Error.
func (w *Worker) Synthesize(ctx context.Context, req models.JobRequest) (*Result, error) {
	result := &Result{RequestID: req.RequestID}

	if err := req.Validate(); err != nil {
		return result, err
	}
	if result.RequestID == "" {
		result.RequestID = uuid.NewString()
	} else if w.registry.Contains(result.RequestID) {
		return result, models.NewValidationError("request_id %s is already running", result.RequestID)
	}
	result.Seed = req.Seed.Realize()

	resolution, err := w.resolver.Resolve(ctx, req.ReferenceAudioID, req.ReferenceText)
	if err != nil {
		return result, err
	}
	result.Reference = resolution

	now := time.Now()
	timestamp := models.FormatTimestamp(now)
	spec := models.ResolvedSynthesisSpec{
		RequestID:          result.RequestID,
		Text:               req.Text,
		ReferenceAudioPath: resolution.AudioPath,
		ReferenceText:      resolution.Text,
		OutputDir:          w.outputDir,
		OutputFilename:     fmt.Sprintf("%s_%s.wav", timestamp, uuid.NewString()[:8]),
		CreatedAt:          now,
		Timestamp:          timestamp,
		Seed:               result.Seed,
		NFESteps:           req.NFESteps,
		CrossfadeDuration:  req.CrossfadeDuration,
		RemoveSilence:      req.RemoveSilence,
	}

	log.Printf("[Worker] %s: reference=%s text_source=%s seed=%d speed=%v",
		spec.RequestID, resolution.Location.ID, resolution.Source, spec.Seed, req.Speed)
	w.publish(&events.Event{
		Type:      events.TypeStarted,
		RequestID: spec.RequestID,
		State:     models.JobStateRunning,
		Reference: resolution.Location.ID,
		Seed:      spec.Seed,
		Speed:     req.Speed,
		CreatedAt: now.UTC(),
	})

	inv, err := w.f5.Invoke(ctx, spec)
	result.Invocation = inv
	if err != nil {
		state := models.JobStateFailed
		if models.IsKind(err, models.KindCancelled) {
			state = models.JobStateCancelled
		}
		w.publish(&events.Event{
			Type:       events.TypeForState(state),
			RequestID:  spec.RequestID,
			State:      state,
			Reference:  resolution.Location.ID,
			Seed:       spec.Seed,
			ErrorCode:  models.KindOf(err),
			Error:      err.Error(),
			DurationMs: time.Since(now).Milliseconds(),
		})
		return result, err
	}

	result.Post = w.post.Apply(ctx, req.Speed, inv.OutputPath)
	result.Path = result.Post.Path

	w.publish(&events.Event{
		Type:       events.TypeCompleted,
		RequestID:  spec.RequestID,
		State:      models.JobStateCompleted,
		Reference:  resolution.Location.ID,
		Seed:       spec.Seed,
		Speed:      req.Speed,
		DurationMs: time.Since(now).Milliseconds(),
	})
	return result, nil
}

// Cancel force-kills the job registered under requestID.
func (w *Worker) Cancel(requestID string) jobs.CancelOutcome {
	outcome := w.registry.Cancel(requestID)
	log.Printf("[Worker] Cancel %s: %s", requestID, outcome)
	return outcome
}

// Status reports a running job. A finished or unknown id is not found.
func (w *Worker) Status(requestID string) (jobs.Snapshot, bool) {
	return w.registry.Status(requestID)
}

// Running lists all running jobs.
func (w *Worker) Running() []jobs.Snapshot {
	return w.registry.List()
}

func (w *Worker) publish(event *events.Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	// Publishers are wrapped in events.Async by main, so this does not block on the broker.
	if err := w.events.Publish(context.Background(), event); err != nil {
		log.Printf("[Worker] Event %s for %s not published: %v", event.Type, event.RequestID, err)
	}
}
