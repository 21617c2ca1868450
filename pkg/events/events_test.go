package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(New(EventTaskLaunched, "launched 2 warmer task(s)", map[string]string{"offer_id": "o1"}))

	select {
	case event := <-sub:
		if event.Type != EventTaskLaunched {
			t.Errorf("event type = %s, want %s", event.Type, EventTaskLaunched)
		}
		if event.ID == "" {
			t.Error("event id should be assigned")
		}
		if event.Timestamp.IsZero() {
			t.Error("timestamp should be set on publish")
		}
		if event.Metadata["offer_id"] != "o1" {
			t.Errorf("metadata = %v", event.Metadata)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe() // never drained
	defer func() { _ = sub }()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			broker.Publish(New(EventOfferDeclined, "no_demand", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestSubscriberCount(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	if broker.SubscriberCount() != 0 {
		t.Error("expected no subscribers")
	}
	sub := broker.Subscribe()
	if broker.SubscriberCount() != 1 {
		t.Error("expected one subscriber")
	}
	broker.Unsubscribe(sub)
	if broker.SubscriberCount() != 0 {
		t.Error("expected no subscribers after unsubscribe")
	}
}
