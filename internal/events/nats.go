package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const DefaultSubject = "tts.jobs"

type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(natsURL, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("voicebox"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

func (p *NATSPublisher) Publish(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}

// Fanout delivers every event to each publisher in turn.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event *Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
