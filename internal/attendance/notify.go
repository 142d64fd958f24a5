package attendance

import (
	"sync"

	"attendx/internal/model"
)

// EventType distinguishes the change events the core emits.
type EventType string

const (
	EventRecordAccepted EventType = "record_accepted"
	EventSessionStarted EventType = "session_started"
	EventSessionEnded   EventType = "session_ended"
)

// Event is a change notification observers receive instead of polling the
// store. Polling the HTTP roll endpoint remains a valid fallback.
type Event struct {
	Type      EventType               `json:"type"`
	SessionID string                  `json:"session_id"`
	Record    *model.AttendanceRecord `json:"record,omitempty"`
	Session   *model.Session          `json:"session,omitempty"`
}

// Notifier fans change events out to subscribers. Slow subscribers drop
// events rather than block the write path.
type Notifier struct {
	mu   sync.Mutex
	subs map[int]subscription
	next int
}

type subscription struct {
	sessionID string // empty subscribes to every session
	ch        chan Event
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]subscription)}
}

// Subscribe registers interest in one session (or all when sessionID is
// empty) and returns the event channel plus a cancel func that closes it.
func (n *Notifier) Subscribe(sessionID string) (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan Event, 16)
	n.subs[id] = subscription{sessionID: sessionID, ch: ch}
	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

// Publish delivers the event to matching subscribers without blocking.
func (n *Notifier) Publish(evt Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, sub := range n.subs {
		if sub.sessionID != "" && sub.sessionID != evt.SessionID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}
