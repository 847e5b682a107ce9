package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowRecorder records request ids, sleeping a little per event.
type slowRecorder struct {
	mu     sync.Mutex
	ids    []string
	delay  time.Duration
	block  chan struct{}
	closed bool
}

func (r *slowRecorder) Publish(_ context.Context, event *Event) error {
	if r.block != nil {
		<-r.block
	}
	time.Sleep(r.delay)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, event.RequestID)
	return nil
}

func (r *slowRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestAsyncPreservesOrder(t *testing.T) {
	rec := &slowRecorder{delay: time.Millisecond}
	p := NewAsync(rec, 64)

	var want []string
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("req-%02d", i)
		want = append(want, id)
		require.NoError(t, p.Publish(context.Background(), &Event{Type: TypeStarted, RequestID: id}))
	}
	require.NoError(t, p.Close())

	assert.Equal(t, want, rec.ids)
	assert.True(t, rec.closed)
}

func TestAsyncDropsWhenFull(t *testing.T) {
	rec := &slowRecorder{block: make(chan struct{})}
	p := NewAsync(rec, 1)

	// The first event is taken by the delivery goroutine and blocks there; the
	// second fills the queue.
	require.NoError(t, p.Publish(context.Background(), &Event{RequestID: "a"}))
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.Publish(context.Background(), &Event{RequestID: "b"}))
	assert.ErrorIs(t, p.Publish(context.Background(), &Event{RequestID: "c"}), ErrQueueFull)

	close(rec.block)
	require.NoError(t, p.Close())
	assert.Equal(t, []string{"a", "b"}, rec.ids)
}

func TestAsyncPublishAfterClose(t *testing.T) {
	p := NewAsync(Nop{}, 1)
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), &Event{}), ErrClosed)
}
