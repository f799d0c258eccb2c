package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHubPublishAndSubscribe(t *testing.T) {
	hub := NewHub(8)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Publish(TypeCallQueued, map[string]any{"plugin": "echo", "method": "echo"})

	select {
	case ev := <-ch:
		if ev.Type != TypeCallQueued {
			t.Errorf("type = %q, want %q", ev.Type, TypeCallQueued)
		}
		if ev.ID != 1 {
			t.Errorf("id = %d, want 1", ev.ID)
		}
		var data map[string]any
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			t.Fatalf("event data is not JSON: %v", err)
		}
		if data["plugin"] != "echo" {
			t.Errorf("data = %#v", data)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHubSnapshotSince(t *testing.T) {
	hub := NewHub(8)
	for i := 0; i < 5; i++ {
		hub.Publish(TypeCallFinished, map[string]any{"n": i})
	}

	all := hub.SnapshotSince(0)
	if len(all) != 5 {
		t.Fatalf("snapshot len = %d, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("snapshot not ordered: %d then %d", all[i-1].ID, all[i].ID)
		}
	}

	tail := hub.SnapshotSince(3)
	if len(tail) != 2 {
		t.Fatalf("snapshot since 3 len = %d, want 2", len(tail))
	}
	if tail[0].ID != 4 || tail[1].ID != 5 {
		t.Errorf("tail IDs = %d, %d", tail[0].ID, tail[1].ID)
	}
}

func TestHubRingOverwritesOldest(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(TypeCallStarted, nil)
	}

	events := hub.SnapshotSince(0)
	if len(events) != 3 {
		t.Fatalf("ring len = %d, want 3", len(events))
	}
	if events[0].ID != 3 {
		t.Errorf("oldest retained ID = %d, want 3", events[0].ID)
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(4)
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// More events than the subscriber buffer holds; Publish must not stall.
		for i := 0; i < 300; i++ {
			hub.Publish(TypeCallFinished, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	hub := NewHub(4)
	_, cancel := hub.Subscribe()
	cancel()
	cancel()

	// Publishing after cancel must not panic on the closed channel.
	hub.Publish(TypeCallQueued, nil)
}
