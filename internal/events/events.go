// Package events publishes job lifecycle transitions to Redis pub/sub and NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bobarin/voicebox/internal/models"
)

const DefaultChannel = "tts:jobs"

type Type string

const (
	TypeStarted   Type = "job.started"
	TypeCompleted Type = "job.completed"
	TypeFailed    Type = "job.failed"
	TypeCancelled Type = "job.cancelled"
)

// TypeForState maps a terminal job state to its event type.
func TypeForState(state models.JobState) Type {
	switch state {
	case models.JobStateCompleted:
		return TypeCompleted
	case models.JobStateCancelled:
		return TypeCancelled
	case models.JobStateFailed:
		return TypeFailed
	default:
		return TypeStarted
	}
}

type Event struct {
	Type       Type             `json:"type"`
	RequestID  string           `json:"request_id"`
	State      models.JobState  `json:"state"`
	Reference  string           `json:"reference,omitempty"`
	Seed       uint32           `json:"seed"`
	Speed      float64          `json:"speed,omitempty"`
	ErrorCode  models.ErrorKind `json:"error_code,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Publisher delivers lifecycle events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Nop discards every event; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }
func (Nop) Close() error                          { return nil }

type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(redisURL, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func (p *RedisPublisher) Publish(ctx context.Context, event *Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}

// Encode stamps CreatedAt when unset and marshals the event.
func Encode(event *Event) ([]byte, error) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}
