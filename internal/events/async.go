package events

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	DefaultQueueSize = 256
	deliveryTimeout  = 2 * time.Second
)

var (
	ErrQueueFull = errors.New("event queue is full")
	ErrClosed    = errors.New("event publisher is closed")
)

// Async queues events for a single delivery goroutine, so events reach the broker in
// the order they were published. Publish never blocks; when the queue is full the
// event is dropped.
type Async struct {
	next  Publisher
	queue chan *Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Publisher, size int) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &Async{
		next:  next,
		queue: make(chan *Event, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Publish(_ context.Context, event *Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- event:
		return nil
	default:
		log.Printf("[Events] Queue full, dropping %s for %s", event.Type, event.RequestID)
		return ErrQueueFull
	}
}

// Close delivers what is already queued, then closes the wrapped publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

func (a *Async) run() {
	defer close(a.done)
	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := a.next.Publish(ctx, event); err != nil {
			log.Printf("[Events] Failed to publish %s for %s: %v", event.Type, event.RequestID, err)
		}
		cancel()
	}
}
