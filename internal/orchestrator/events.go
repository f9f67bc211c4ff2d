package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/mathvideo/internal/metrics"
	"github.com/example/mathvideo/internal/models"
	"github.com/example/mathvideo/internal/progress"
)

// Event is the JSON frame sent to task subscribers.
type Event struct {
	Type    string         `json:"type"`
	Level   progress.Level `json:"level,omitempty"`
	Message string         `json:"message,omitempty"`
	Status  models.Status  `json:"status,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// MarshalJSON always writes data on status frames, as {} when there is none.
func (e Event) MarshalJSON() ([]byte, error) {
	type frame Event
	if e.Type != EventStatus {
		return json.Marshal(frame(e))
	}
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(struct {
		frame
		Data map[string]any `json:"data"`
	}{frame(e), data})
}

const (
	EventConnected = "connected"
	EventLog       = "log"
	EventStatus    = "status"
	EventHeartbeat = "heartbeat"
	EventPong      = "pong"
)

// Subscriber receives events for one task. A Send error drops the subscriber.
type Subscriber interface {
	Send(Event) error
}

var ErrSubscriberFull = errors.New("subscriber buffer full")

// ChanSubscriber buffers events in a channel and never blocks the publisher.
type ChanSubscriber struct {
	C chan Event
}

func NewChanSubscriber(size int) *ChanSubscriber {
	return &ChanSubscriber{C: make(chan Event, size)}
}

func (c *ChanSubscriber) Send(ev Event) error {
	select {
	case c.C <- ev:
		return nil
	default:
		return ErrSubscriberFull
	}
}

// Hub fans task events out to subscribers. The lock only guards the set;
// delivery happens on a snapshot outside it.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[Subscriber]struct{} // taskID -> set of subscribers
	metrics *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{subs: map[string]map[Subscriber]struct{}{}, metrics: m}
}

// Subscribe greets sub with a connected event and then registers it, so the
// greeting is always its first frame. A sub that fails the greeting is never
// registered.
func (h *Hub) Subscribe(taskID string, sub Subscriber) {
	if err := sub.Send(Event{Type: EventConnected, Message: "connected to task " + taskID}); err != nil {
		log.WithError(err).WithField("task_id", taskID).Debug("subscriber failed greeting")
		return
	}

	h.mu.Lock()
	set := h.subs[taskID]
	if set == nil {
		set = map[Subscriber]struct{}{}
		h.subs[taskID] = set
	}
	_, dup := set[sub]
	set[sub] = struct{}{}
	h.mu.Unlock()
	if !dup {
		h.metrics.SubscriberAdded()
	}
}

// Unsubscribe removes sub and drops the task entry once it is empty.
func (h *Hub) Unsubscribe(taskID string, sub Subscriber) {
	h.mu.Lock()
	set, ok := h.subs[taskID]
	removed := false
	if ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			removed = true
		}
		if len(set) == 0 {
			delete(h.subs, taskID)
		}
	}
	h.mu.Unlock()
	if removed {
		h.metrics.SubscriberRemoved()
	}
}

func (h *Hub) snapshot(taskID string) []Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[taskID]
	out := make([]Subscriber, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// Publish delivers ev to every current subscriber. Failed subscribers are
// removed; the others are unaffected.
func (h *Hub) Publish(taskID string, ev Event) {
	for _, sub := range h.snapshot(taskID) {
		if err := sub.Send(ev); err != nil {
			log.WithError(err).WithField("task_id", taskID).Debug("dropping subscriber")
			h.Unsubscribe(taskID, sub)
		}
	}
}

func (h *Hub) HasSubscribers(taskID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID]) > 0
}

// Subscribers returns how many subscribers a task has.
func (h *Hub) Subscribers(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID])
}

// WaitForSubscriber polls until taskID has a subscriber, the timeout passes or
// ctx ends. It reports whether a subscriber showed up.
func (h *Hub) WaitForSubscriber(ctx context.Context, taskID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if h.HasSubscribers(taskID) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (h *Hub) Log(taskID string, level progress.Level, msg string) {
	h.Publish(taskID, Event{Type: EventLog, Level: level, Message: msg})
}

func (h *Hub) Status(taskID string, status models.Status, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	h.Publish(taskID, Event{Type: EventStatus, Status: status, Data: data})
}

// Reporter forwards progress lines for taskID to the hub.
func (h *Hub) Reporter(taskID string) progress.Reporter {
	return progress.Func(func(level progress.Level, msg string) { h.Log(taskID, level, msg) })
}
