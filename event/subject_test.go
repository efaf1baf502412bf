package event

import (
	"context"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubject_ReplaysLatestValue(t *testing.T) {
	subject := NewSubject(1, nil, 4, time.Second)
	subject.Publish(2)

	stream := subject.Subscribe(context.Background())
	defer stream.Close()

	require.Equal(t, 2, receive(t, stream.Channel()))
	require.Equal(t, 2, subject.Value())

	subject.Publish(3)
	subject.Publish(3)
	require.Equal(t, 3, receive(t, stream.Channel()))
	require.Equal(t, 3, receive(t, stream.Channel()))
}

func TestSubject_ClonesPerSubscriber(t *testing.T) {
	clone := func(m map[string]struct{}) map[string]struct{} { return maps.Clone(m) }
	subject := NewSubject(map[string]struct{}{}, clone, 4, time.Second)

	a := subject.Subscribe(context.Background())
	b := subject.Subscribe(context.Background())

	first := receive(t, a.Channel())
	first["mutated"] = struct{}{}

	require.Empty(t, receive(t, b.Channel()))
	require.Empty(t, subject.Value())
}

func TestSubject_ContextEndsSubscription(t *testing.T) {
	subject := NewSubject("initial", nil, 4, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	stream := subject.Subscribe(ctx)
	require.Equal(t, "initial", receive(t, stream.Channel()))
	require.Equal(t, 1, subject.Subscribers())

	cancel()
	require.Eventually(t, func() bool {
		return subject.Subscribers() == 0
	}, time.Second, 5*time.Millisecond)

	_, ok := <-stream.Channel()
	require.False(t, ok)
}

func TestSubject_EvictsSlowConsumer(t *testing.T) {
	subject := NewSubject(0, nil, 1, 10*time.Millisecond)

	stream := subject.Subscribe(context.Background())

	// The replayed value fills the buffer, so the next publish times out.
	subject.Publish(1)
	require.Equal(t, 0, subject.Subscribers())

	require.Equal(t, 0, receive(t, stream.Channel()))
	_, ok := <-stream.Channel()
	require.False(t, ok)
}

func TestSubject_Close(t *testing.T) {
	subject := NewSubject(0, nil, 4, time.Second)
	stream := subject.Subscribe(context.Background())
	require.Equal(t, 0, receive(t, stream.Channel()))

	subject.Close()
	subject.Close()
	subject.Publish(1)

	_, ok := <-stream.Channel()
	require.False(t, ok)
	require.Equal(t, 0, subject.Value())

	late := subject.Subscribe(context.Background())
	_, ok = <-late.Channel()
	require.False(t, ok)
}

// countingContext is a never-ending context that schedules context.AfterFunc
// callbacks itself, so it can count how many are registered and stopped.
type countingContext struct {
	done chan struct{}

	mu         sync.Mutex
	registered int
	stopped    int
}

func newCountingContext() *countingContext {
	return &countingContext{done: make(chan struct{})}
}

func (c *countingContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (c *countingContext) Done() <-chan struct{}       { return c.done }
func (c *countingContext) Err() error                  { return nil }
func (c *countingContext) Value(any) any               { return nil }

func (c *countingContext) AfterFunc(f func()) func() bool {
	c.mu.Lock()
	c.registered++
	c.mu.Unlock()

	stop := make(chan struct{})
	go func() {
		select {
		case <-c.done:
			f()
		case <-stop:
		}
	}()

	var once sync.Once
	return func() bool {
		stopped := false
		once.Do(func() {
			close(stop)
			stopped = true

			c.mu.Lock()
			c.stopped++
			c.mu.Unlock()
		})
		return stopped
	}
}

func (c *countingContext) counts() (registered, stopped int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.registered, c.stopped
}

func TestSubject_ReleasesContextCallbacks(t *testing.T) {
	ctx := newCountingContext()
	subject := NewSubject(0, nil, 4, time.Second)

	closedByConsumer := subject.Subscribe(ctx)
	kept := subject.Subscribe(ctx)

	registered, stopped := ctx.counts()
	require.Equal(t, 2, registered)
	require.Zero(t, stopped)

	// A stream the consumer closed is dropped on the next publish.
	closedByConsumer.Close()
	subject.Publish(1)
	require.Equal(t, 1, subject.Subscribers())

	_, stopped = ctx.counts()
	require.Equal(t, 1, stopped)

	subject.Close()
	_, stopped = ctx.counts()
	require.Equal(t, 2, stopped)

	require.Equal(t, 0, receive(t, kept.Channel()))
	require.Equal(t, 1, receive(t, kept.Channel()))
	_, ok := <-kept.Channel()
	require.False(t, ok)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}

	var zero T
	return zero
}
