package iotanomaly

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventHub_SubscribePublish(t *testing.T) {
	hub := NewEventHub(StreamConfig{BufferSize: 4}, nil)
	defer hub.Close()

	all, err := hub.Subscribe()
	if err != nil {
		t.Fatal(err)
	}
	deletes, err := hub.Subscribe(EventRunDeleted)
	if err != nil {
		t.Fatal(err)
	}
	if hub.Count() != 2 {
		t.Errorf("expected 2 subscriptions, got %d", hub.Count())
	}

	hub.Publish(Event{Type: EventRunCreated, RunID: "a"})
	hub.Publish(Event{Type: EventRunDeleted, RunID: "b"})

	select {
	case e := <-all.C():
		if e.Type != EventRunCreated || e.Time.IsZero() {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	select {
	case e := <-deletes.C():
		if e.RunID != "b" {
			t.Errorf("filtered subscriber got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for filtered event")
	}
	if len(deletes.C()) != 0 {
		t.Error("filtered subscriber should only receive deletes")
	}

	hub.Unsubscribe(all.ID)
	if hub.Count() != 1 {
		t.Errorf("expected 1 subscription after unsubscribe, got %d", hub.Count())
	}
	if _, ok := <-all.C(); ok {
		t.Error("unsubscribed channel should be closed")
	}
}

func TestEventHub_DropsWhenFull(t *testing.T) {
	metrics := NewMetrics()
	hub := NewEventHub(StreamConfig{BufferSize: 1}, metrics)
	defer hub.Close()

	sub, _ := hub.Subscribe()
	hub.Publish(Event{Type: EventIngest})
	hub.Publish(Event{Type: EventIngest})
	hub.Publish(Event{Type: EventIngest})

	if len(sub.C()) != 1 {
		t.Errorf("expected 1 buffered event, got %d", len(sub.C()))
	}
	if got := testutil.ToFloat64(metrics.streamDropped); got != 2 {
		t.Errorf("expected 2 dropped events, got %v", got)
	}
}

func TestEventHub_ClosedSubscription(t *testing.T) {
	hub := NewEventHub(StreamConfig{}, nil)
	defer hub.Close()

	sub, _ := hub.Subscribe()
	sub.Close()
	sub.Close()
	hub.Publish(Event{Type: EventIngest})
}

func TestEventHub_Close(t *testing.T) {
	hub := NewEventHub(StreamConfig{}, nil)
	sub, _ := hub.Subscribe()
	hub.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("expected channel closed")
	}
	if _, err := hub.Subscribe(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var nilHub *EventHub
	nilHub.Publish(Event{Type: EventIngest})
}

func TestEventHub_WebSocket(t *testing.T) {
	hub := NewEventHub(StreamConfig{}, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub.WebSocketHandler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?events=" + EventRunCreated
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(Event{Type: EventRunDeleted, RunID: "skip"})
	hub.Publish(Event{Type: EventRunCreated, RunID: "r1", Summary: &Summary{TotalPoints: 3}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var e Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatal(err)
	}
	if e.RunID != "r1" || e.Summary == nil || e.Summary.TotalPoints != 3 {
		t.Errorf("unexpected event %+v", e)
	}
}
