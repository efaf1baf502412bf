package memory

import (
	"context"
	"sync"

	"github.com/code-payments/flipchat-iapkit/iap"
)

// subscriber queues feed events so that delivering to a slow consumer never
// blocks the platform, while keeping delivery order.
type subscriber struct {
	mu     sync.Mutex
	queue  []iap.VerificationResult
	signal chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{
		signal: make(chan struct{}, 1),
	}
}

func (s *subscriber) push(result iap.VerificationResult) {
	s.mu.Lock()
	s.queue = append(s.queue, result)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) run(ctx context.Context, out chan<- iap.VerificationResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
		}

		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, result := range batch {
			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Snapshot is a fixed set of results served as a current entitlements
// snapshot.
type Snapshot []iap.VerificationResult

func (s Snapshot) CurrentEntitlements(ctx context.Context) <-chan iap.VerificationResult {
	out := make(chan iap.VerificationResult)
	go func() {
		defer close(out)

		for _, result := range s {
			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
