package iotanomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types published by the hub.
const (
	EventRunCreated = "run.created"
	EventRunDeleted = "run.deleted"
	EventIngest     = "ingest.updated"
)

// Event is a notification about a change in the stored runs or the ingest buffer.
type Event struct {
	Type    string    `json:"type"`
	RunID   string    `json:"run_id,omitempty"`
	Source  string    `json:"source,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
	Rows    int       `json:"rows,omitempty"`
	Time    time.Time `json:"time"`
}

// Subscription receives events from an EventHub.
type Subscription struct {
	ID    string
	Types map[string]bool
	ch    chan Event

	done    chan struct{}
	closed  bool
	mu      sync.Mutex
	created time.Time
}

// C returns the channel for receiving events.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close closes the subscription.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

func (s *Subscription) wants(e Event) bool {
	return len(s.Types) == 0 || s.Types[e.Type]
}

// offer delivers e without blocking and reports whether it was buffered.
func (s *Subscription) offer(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

// EventHub fans events out to subscribers. Publishing never blocks: an event is
// dropped for a subscriber whose buffer is full.
type EventHub struct {
	config  StreamConfig
	metrics *Metrics

	mu     sync.RWMutex
	subs   map[string]*Subscription
	nextID uint64
	closed bool
}

// NewEventHub creates a hub. metrics may be nil.
func NewEventHub(cfg StreamConfig, metrics *Metrics) *EventHub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &EventHub{
		config:  cfg,
		metrics: metrics,
		subs:    make(map[string]*Subscription),
	}
}

// Subscribe registers a subscriber for the given event types; none means all.
func (h *EventHub) Subscribe(types ...string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	h.nextID++
	sub := &Subscription{
		ID:      fmt.Sprintf("sub-%d", h.nextID),
		Types:   make(map[string]bool, len(types)),
		ch:      make(chan Event, h.config.BufferSize),
		done:    make(chan struct{}),
		created: time.Now(),
	}
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			sub.Types[t] = true
		}
	}
	h.subs[sub.ID] = sub
	h.metrics.setStreamClients(len(h.subs))
	return sub, nil
}

// Unsubscribe removes a subscription.
func (h *EventHub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		sub.Close()
		h.metrics.setStreamClients(n)
	}
}

// Publish sends e to every interested subscriber.
func (h *EventHub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.wants(e) {
			continue
		}
		if !sub.offer(e) {
			h.metrics.observeStreamDrop()
		}
	}
}

// Count returns the number of active subscriptions.
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	h.metrics.setStreamClients(0)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHandler streams events as JSON text messages. The optional "events" query
// parameter is a comma-separated list of event types to receive.
func (h *EventHub) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var types []string
		if q := r.URL.Query().Get("events"); q != "" {
			types = strings.Split(q, ",")
		}
		sub, err := h.Subscribe(types...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		defer h.Unsubscribe(sub.ID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Clients only send control frames; a read error means the peer is gone.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		h.forwardEvents(ctx, conn, sub)
	}
}

func (h *EventHub) forwardEvents(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	ping := time.NewTicker(h.config.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(time.Second))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case e, ok := <-sub.ch:
			if !ok {
				return
			}
			msg, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
