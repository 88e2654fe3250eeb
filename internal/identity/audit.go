package identity

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
)

type EventType string

const (
	EventRoleCheck         EventType = "role_check"
	EventRoleViolation     EventType = "role_violation"
	EventAuthSuccess       EventType = "auth_success"
	EventAuthFailure       EventType = "auth_failure"
	EventIdentityMismatch  EventType = "identity_mismatch"
	EventIdentityValidated EventType = "identity_validated"
)

// DefaultMaxEvents is how many security events an Auditor keeps.
const DefaultMaxEvents = 100

// Event is one entry of the security log.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Important reports whether the event is also written to the log at Warn.
func (e Event) Important() bool {
	switch e.Type {
	case EventAuthFailure, EventRoleViolation, EventIdentityMismatch:
		return true
	}
	return false
}

// Auditor is a bounded in-memory security event log. The oldest events are
// dropped once max is reached.
type Auditor struct {
	mu     sync.Mutex
	events []Event
	max    int
	log    logging.Logger
	now    func() time.Time
}

func NewAuditor(max int, log logging.Logger) *Auditor {
	if max <= 0 {
		max = DefaultMaxEvents
	}
	return &Auditor{max: max, log: log, now: time.Now}
}

// Record appends an event. A nil Auditor discards it.
func (a *Auditor) Record(ctx context.Context, t EventType, details map[string]any) {
	if a == nil {
		return
	}
	ev := Event{Type: t, Timestamp: a.now().UTC(), Details: maps.Clone(details)}

	a.mu.Lock()
	a.events = append(a.events, ev)
	if over := len(a.events) - a.max; over > 0 {
		a.events = append(a.events[:0:0], a.events[over:]...)
	}
	a.mu.Unlock()

	if ev.Important() && a.log != nil {
		args := []any{"event", string(t)}
		for k, v := range details {
			args = append(args, k, v)
		}
		a.log.Warn(ctx, "security event", args...)
	}
}

// Events returns a copy of the recorded events, oldest first.
func (a *Auditor) Events() []Event {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}
