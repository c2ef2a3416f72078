package pubsub

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func recv(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	p := NewSSEPublisher()
	defer p.Close()

	sub, err := p.Subscribe(context.Background(), "authority_status")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	status := AuthorityStatus{Revision: 5, Nodes: 3, Edges: 2, Viewers: 1}
	if err := p.Publish("authority_status", "revision_advanced", status); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	ev := recv(t, sub)
	if ev.Topic != "authority_status" || ev.Type != "revision_advanced" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Version != 1 {
		t.Errorf("version = %d, want 1", ev.Version)
	}
	var got AuthorityStatus
	if err := json.Unmarshal(ev.Data, &got); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if got != status {
		t.Errorf("payload = %+v, want %+v", got, status)
	}
}

func TestLateSubscriberGetsRetainedEvent(t *testing.T) {
	p := NewSSEPublisher()
	defer p.Close()

	if err := p.Publish("authority_status", "revision_advanced", AuthorityStatus{Revision: 1}); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish("authority_status", "revision_advanced", AuthorityStatus{Revision: 2}); err != nil {
		t.Fatal(err)
	}

	sub, err := p.Subscribe(context.Background(), "authority_status")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Only the latest event is retained.
	ev := recv(t, sub)
	if ev.Version != 2 {
		t.Errorf("replayed version = %d, want 2", ev.Version)
	}
	select {
	case extra := <-sub.Events():
		t.Errorf("unexpected second replay: %+v", extra)
	default:
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	p := NewSSEPublisher()
	defer p.Close()

	a, _ := p.Subscribe(context.Background(), "topic_a")
	b, _ := p.Subscribe(context.Background(), "topic_b")

	if err := p.Publish("topic_a", "ping", nil); err != nil {
		t.Fatal(err)
	}

	ev := recv(t, a)
	if ev.Topic != "topic_a" {
		t.Errorf("topic = %q", ev.Topic)
	}
	select {
	case ev := <-b.Events():
		t.Errorf("cross-topic delivery: %+v", ev)
	default:
	}
}

func TestContextCancelClosesSubscription(t *testing.T) {
	p := NewSSEPublisher()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := p.Subscribe(ctx, "authority_status")
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	// After cancellation the publisher no longer fans out to it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := p.Publish("authority_status", "ping", nil); err != nil {
			t.Fatal(err)
		}
		select {
		case <-sub.Events():
			// Drain events that raced the unsubscribe.
		default:
		}
		p.mu.RLock()
		n := len(p.subscriptions["authority_status"])
		p.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription never detached after context cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClosedPublisherRejectsUse(t *testing.T) {
	p := NewSSEPublisher()
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Publish("t", "ping", nil); err == nil {
		t.Error("Publish on a closed publisher succeeded")
	}
	if _, err := p.Subscribe(context.Background(), "t"); err == nil {
		t.Error("Subscribe on a closed publisher succeeded")
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close errored: %v", err)
	}
}

func TestWriteSSEFormat(t *testing.T) {
	var sb strings.Builder
	ev := Event{Topic: "t", Type: "ping", Version: 3}
	if err := WriteSSE(&sb, ev); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.HasPrefix(out, "data: {") || !strings.HasSuffix(out, "\n\n") {
		t.Errorf("frame = %q", out)
	}
}
