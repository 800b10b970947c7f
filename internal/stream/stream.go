package stream

import (
	"context"
	"strings"
	"sync"

	"cpeconnect.org/internal/grants"
)

// Stream fan-outs freshly created notifications to active SSE subscribers.
// Each subscriber is scoped to one user email; events addressed to other
// users are filtered out before delivery.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	email string
	ch    chan grants.Notification
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

var _ grants.Notifier = (*Stream)(nil)

// Subscribe registers a subscriber for the given user and returns a
// channel which will receive that user's notifications. The channel is
// closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context, userEmail string) <-chan grants.Notification {
	ch := make(chan grants.Notification, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{email: strings.ToLower(strings.TrimSpace(userEmail)), ch: ch}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers the notification to every subscriber of its addressee.
func (s *Stream) Publish(n grants.Notification) {
	target := strings.ToLower(strings.TrimSpace(n.UserEmail))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.email != target {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
