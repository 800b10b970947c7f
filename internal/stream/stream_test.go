package stream

import (
	"context"
	"testing"
	"time"

	"cpeconnect.org/internal/grants"
)

func TestPublishDeliversToAddresseeOnly(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice := s.Subscribe(ctx, "alice@example.org")
	bob := s.Subscribe(ctx, "bob@example.org")

	s.Publish(grants.Notification{ID: "n1", UserEmail: "Alice@Example.org", MessageEN: "claim rejected"})

	select {
	case n := <-alice:
		if n.ID != "n1" {
			t.Fatalf("unexpected notification: %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("alice did not receive notification")
	}

	select {
	case n := <-bob:
		t.Fatalf("bob received foreign notification: %+v", n)
	default:
	}
}

func TestSubscribeClosesOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, "alice@example.org")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got value")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestPublishDropsWhenSubscriberIsSlow(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx, "alice@example.org")
	for i := 0; i < 40; i++ {
		s.Publish(grants.Notification{ID: "n", UserEmail: "alice@example.org"})
	}
	// Buffer is bounded; the loop above must not block, and the channel
	// holds at most its capacity.
	if len(ch) > cap(ch) {
		t.Fatalf("channel overflow: %d", len(ch))
	}
}
