package notify

import (
	"context"
	"sync"
	"time"

	"github.com/iancossa/attendance-fullstack/internal/logging"
)

type Type string

const (
	Success Type = "success"
	Error   Type = "error"
)

// Event is a user-facing notification.
type Event struct {
	Message string    `json:"message"`
	Type    Type      `json:"type"`
	At      time.Time `json:"at"`
}

// Notifier is a fire-and-forget sink for user notifications.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, evt Event)

func (f Func) Notify(ctx context.Context, evt Event) { f(ctx, evt) }

func stamp(evt Event) Event {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	return evt
}

// Memory keeps the most recent events in process memory.
type Memory struct {
	mu     sync.Mutex
	size   int
	events []Event
}

// NewMemory keeps the last size events.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 100
	}
	return &Memory{size: size}
}

func (m *Memory) Notify(_ context.Context, evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stamp(evt))
	if over := len(m.events) - m.size; over > 0 {
		m.events = append([]Event(nil), m.events[over:]...)
	}
}

// Recent returns up to limit events, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.events) {
		limit = len(m.events)
	}
	out := make([]Event, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

// Log writes events to the operator log.
type Log struct {
	Logger logging.Logger
}

func (l Log) Notify(_ context.Context, evt Event) {
	l.Logger.Info("notification", map[string]interface{}{"type": evt.Type, "message": evt.Message})
}

// Multi fans an event out to every sink.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, evt Event) {
	evt = stamp(evt)
	for _, n := range m {
		n.Notify(ctx, evt)
	}
}
