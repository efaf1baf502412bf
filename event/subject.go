package event

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBufferSize    = 16
	DefaultNotifyTimeout = time.Second
)

// Observable exposes the latest value of something along with a way to follow
// every later change.
type Observable[T any] interface {
	// Value returns a copy of the current value.
	Value() T

	// Subscribe returns a stream that first receives the current value and
	// then every published value, in publish order. The stream is closed when
	// ctx is done, when the consumer closes it, or when the consumer falls
	// behind by more than the notify timeout.
	Subscribe(ctx context.Context) *ChannelStream[T, T]
}

type subscription[T any] struct {
	stream *ChannelStream[T, T]

	// stop deregisters the context callback that ends the subscription.
	stop func() bool
}

func (s *subscription[T]) end() {
	s.stop()
	s.stream.Close()
}

// Subject is a replay-latest Observable with a single writer.
type Subject[T any] struct {
	mu sync.Mutex

	value   T
	clone   func(T) T
	closed  bool
	streams map[string]*subscription[T]

	bufferSize    int
	notifyTimeout time.Duration
}

// NewSubject creates a Subject holding initial. clone, if non-nil, is applied to
// every value handed out so subscribers never share the writer's copy.
func NewSubject[T any](initial T, clone func(T) T, bufferSize int, notifyTimeout time.Duration) *Subject[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	if notifyTimeout <= 0 {
		notifyTimeout = DefaultNotifyTimeout
	}

	return &Subject[T]{
		value:         clone(initial),
		clone:         clone,
		streams:       make(map[string]*subscription[T]),
		bufferSize:    bufferSize,
		notifyTimeout: notifyTimeout,
	}
}

func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clone(s.value)
}

// Publish replaces the current value and delivers it to every subscriber
// before returning. Publishing to a closed Subject is a no-op.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.value = s.clone(v)
	for id, sub := range s.streams {
		if err := sub.stream.Notify(s.value, s.notifyTimeout); err != nil {
			delete(s.streams, id)
			sub.end()
		}
	}
}

func (s *Subject[T]) Subscribe(ctx context.Context) *ChannelStream[T, T] {
	stream := NewChannelStream[T, T](uuid.NewString(), s.bufferSize, func(v T) (T, bool) {
		return s.clone(v), true
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stream.Close()
		return stream
	}

	defer s.mu.Unlock()

	// The buffer is empty, so replaying the current value cannot block.
	_ = stream.Notify(s.value, s.notifyTimeout)

	// The callback runs on its own goroutine, so it waits for mu rather than
	// finding the subscription missing.
	s.streams[stream.ID()] = &subscription[T]{
		stream: stream,
		stop: context.AfterFunc(ctx, func() {
			s.unsubscribe(stream.ID())
		}),
	}

	return stream
}

// Subscribers returns the number of active subscriptions.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.streams)
}

// Close ends every subscription. Later publishes are dropped.
func (s *Subject[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	for id, sub := range s.streams {
		delete(s.streams, id)
		sub.end()
	}
}

func (s *Subject[T]) unsubscribe(id string) {
	s.mu.Lock()
	sub, ok := s.streams[id]
	delete(s.streams, id)
	s.mu.Unlock()

	if ok {
		sub.end()
	}
}
