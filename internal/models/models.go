package models

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Enums
type JobState string

const (
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

type TextSource string

const (
	TextSourceExplicit    TextSource = "explicit"
	TextSourceSidecar     TextSource = "sidecar"
	TextSourceTranscribed TextSource = "transcribed"
	TextSourceNone        TextSource = "none"
)

// MaxSeed is the largest seed the inference tool accepts.
const MaxSeed = 1<<31 - 1

// DefaultSpeed leaves the synthesized artifact untouched.
const DefaultSpeed = 1.0

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SeedPolicy is either random or a fixed seed in [0, MaxSeed].
type SeedPolicy struct {
	fixed bool
	seed  uint32
}

func RandomSeed() SeedPolicy {
	return SeedPolicy{}
}

// FixedSeed returns a fixed policy for seed, or a random one when seed is out of range.
func FixedSeed(seed int64) SeedPolicy {
	if seed < 0 || seed > MaxSeed {
		return RandomSeed()
	}
	return SeedPolicy{fixed: true, seed: uint32(seed)}
}

// SeedFromNumber reads a seed off the wire. Absent, fractional and out-of-range values,
// including ones too large for int64, select a random seed.
func SeedFromNumber(n json.Number) SeedPolicy {
	if n == "" {
		return RandomSeed()
	}
	if v, err := n.Int64(); err == nil {
		return FixedSeed(v)
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < 0 || f > MaxSeed {
		return RandomSeed()
	}
	return FixedSeed(int64(f))
}

func (p SeedPolicy) IsFixed() bool {
	return p.fixed
}

// Realize returns the seed to hand to the inference tool.
func (p SeedPolicy) Realize() uint32 {
	if p.fixed {
		return p.seed
	}
	return rand.Uint32N(MaxSeed + 1)
}

// JobRequest is a normalized synthesis request.
type JobRequest struct {
	Text              string
	Speed             float64
	NFESteps          int
	CrossfadeDuration float64
	RemoveSilence     bool
	Seed              SeedPolicy
	ReferenceAudioID  string // "<collection>/<filename>"
	ReferenceText     string // empty means resolve automatically
	RequestID         string // empty means mint one
}

// Validate rejects requests that must never reach the inference tool.
func (r JobRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return NewValidationError("gen_text is required")
	}
	if math.IsNaN(r.Speed) || math.IsInf(r.Speed, 0) || r.Speed <= 0 {
		return NewValidationError("speed must be a positive number, got %v", r.Speed)
	}
	if r.NFESteps <= 0 {
		return NewValidationError("nfe_steps must be positive, got %d", r.NFESteps)
	}
	if math.IsNaN(r.CrossfadeDuration) || math.IsInf(r.CrossfadeDuration, 0) || r.CrossfadeDuration < 0 {
		return NewValidationError("cross_fade_duration must be a non-negative number, got %v", r.CrossfadeDuration)
	}
	if strings.TrimSpace(r.ReferenceAudioID) == "" {
		return NewValidationError("ref_audio is required")
	}
	if r.RequestID != "" && !requestIDPattern.MatchString(r.RequestID) {
		return NewValidationError("request_id must match %s", requestIDPattern.String())
	}
	return nil
}

// ResolvedSynthesisSpec is everything the inference tool is invoked with.
// It is built once per request and passed by value.
type ResolvedSynthesisSpec struct {
	RequestID          string
	Text               string
	ReferenceAudioPath string
	ReferenceText      string
	OutputDir          string
	OutputFilename     string
	CreatedAt          time.Time
	Timestamp          string
	Seed               uint32
	NFESteps           int
	CrossfadeDuration  float64
	RemoveSilence      bool
}

func (s ResolvedSynthesisSpec) OutputPath() string {
	return filepath.Join(s.OutputDir, s.OutputFilename)
}

// FormatTimestamp renders t as 2006-01-02_15-04-05-000000 (microseconds), the form used
// for job timestamps and artifact names.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s-%06d", t.Format("2006-01-02_15-04-05"), t.Nanosecond()/1000)
}

// API types

// TTSRequest is the JSON body of POST /tts. Pointer fields fall back to defaults.
type TTSRequest struct {
	GenText           string      `json:"gen_text"`
	Text              string      `json:"text,omitempty"` // alias of gen_text
	Speed             *float64    `json:"speed,omitempty"`
	NFESteps          *int        `json:"nfe_steps,omitempty"`
	CrossFadeDuration *float64    `json:"cross_fade_duration,omitempty"`
	RemoveSilence     bool        `json:"remove_silence"`
	Seed              json.Number `json:"seed,omitempty"` // any JSON number; see SeedFromNumber
	RefAudio          string      `json:"ref_audio,omitempty"`
	RefText           string      `json:"ref_text,omitempty"`
	RequestID         string      `json:"request_id,omitempty"`
}

// RequestDefaults fills fields a TTSRequest leaves unset.
type RequestDefaults struct {
	NFESteps          int
	CrossfadeDuration float64
	ReferenceAudioID  string
}

// ToJobRequest normalizes the wire request. It does not validate.
func (r TTSRequest) ToJobRequest(d RequestDefaults) JobRequest {
	req := JobRequest{
		Text:              r.GenText,
		Speed:             DefaultSpeed,
		NFESteps:          d.NFESteps,
		CrossfadeDuration: d.CrossfadeDuration,
		RemoveSilence:     r.RemoveSilence,
		Seed:              RandomSeed(),
		ReferenceAudioID:  strings.TrimSpace(r.RefAudio),
		ReferenceText:     r.RefText,
		RequestID:         strings.TrimSpace(r.RequestID),
	}
	if strings.TrimSpace(req.Text) == "" {
		req.Text = r.Text
	}
	if r.Speed != nil {
		req.Speed = *r.Speed
	}
	if r.NFESteps != nil {
		req.NFESteps = *r.NFESteps
	}
	if r.CrossFadeDuration != nil {
		req.CrossfadeDuration = *r.CrossFadeDuration
	}
	req.Seed = SeedFromNumber(r.Seed)
	if req.ReferenceAudioID == "" {
		req.ReferenceAudioID = d.ReferenceAudioID
	}
	return req
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      ErrorKind `json:"code,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// JobResponse describes one registry entry.
type JobResponse struct {
	RequestID string    `json:"request_id"`
	Status    string    `json:"status"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	ElapsedMs int64     `json:"elapsed_ms,omitempty"`
}

type ListJobsResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
}

type CancelJobResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"` // "cancelled" or "not_found"
	Message   string `json:"message"`
}

type ReferenceAudio struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	Filename   string    `json:"filename"`
	ByteSize   int64     `json:"byte_size"`
	HasText    bool      `json:"has_text"`
	ModifiedAt time.Time `json:"modified_at"`
}

type ListReferencesResponse struct {
	References []ReferenceAudio `json:"references"`
	Total      int              `json:"total"`
}

type HealthResponse struct {
	Status      string          `json:"status"`
	Tools       map[string]bool `json:"tools"`
	RunningJobs int             `json:"running_jobs"`
}
