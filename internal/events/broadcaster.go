// Package events provides the SSE event broadcaster the kiosk UI listens
// on for new imports and cycle diagnostics.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jareddonovan/creative-coding-showcase/internal/metrics"
	"github.com/jareddonovan/creative-coding-showcase/pkg/catalog"
	"github.com/jareddonovan/creative-coding-showcase/pkg/polling"
)

const (
	EventImportSketch     = "import-sketch"
	EventCycleDiagnostics = "cycle-diagnostics"
)

// Event is one message pushed to the UI. Data is the JSON payload.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Broadcaster manages SSE subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(b.Count()))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(int64(b.Count()))
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordSSEEvent(event.Type)
}

// PublishJSON marshals payload and publishes it as an event of type t.
func (b *Broadcaster) PublishJSON(t string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Type: t, Data: data})
	return nil
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ImportsAvailable publishes a batch of new descriptors keyed by catalog
// key, the shape the gallery merges into its own copy.
func (b *Broadcaster) ImportsAvailable(batch map[string]catalog.Descriptor) {
	_ = b.PublishJSON(EventImportSketch, batch)
}

// CycleDiagnostics publishes the report of a finished cycle.
func (b *Broadcaster) CycleDiagnostics(report *polling.CycleReport) {
	_ = b.PublishJSON(EventCycleDiagnostics, diagnostics{
		Summary:    report.Summary(),
		Text:       report.Text(),
		Report:     report,
		DurationMS: report.Duration.Milliseconds(),
	})
}

type diagnostics struct {
	Summary    string               `json:"summary"`
	Text       string               `json:"text"`
	DurationMS int64                `json:"duration_ms"`
	Report     *polling.CycleReport `json:"report"`
}

var _ polling.Notifier = (*Broadcaster)(nil)
