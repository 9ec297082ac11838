// Package event defines the immutable event envelope for the habit journal
// and the registry that validates events before append.
package event

import (
	"strings"
	"time"
)

// Type identifies the type of a domain event.
type Type string

// Habit lifecycle events.
const (
	// TypeHabitCreated records the creation of a habit under a plan.
	TypeHabitCreated Type = "habit.created"
	// TypeHabitCompleted records a daily completion (check-in) of a habit.
	TypeHabitCompleted Type = "habit.completed"
	// TypeHabitArchived records a habit being retired from active tracking.
	TypeHabitArchived Type = "habit.archived"
)

// Plan events.
const (
	// TypePlanCreated records the creation of a habit plan.
	TypePlanCreated Type = "plan.created"
)

// Journal events.
const (
	// TypeJournalEntryAdded records a free-form reflection entry.
	TypeJournalEntryAdded Type = "journal.entry_added"
)

// Stream types identify the aggregate kind an event belongs to.
const (
	StreamTypeHabit   = "habit"
	StreamTypePlan    = "plan"
	StreamTypeJournal = "journal"
)

// Event represents an immutable entry in the unified event journal.
type Event struct {
	// StreamID identifies the owning aggregate (habit, plan, journal entry).
	StreamID string
	// StreamType names the aggregate kind for the stream.
	StreamType string
	// Number is the globally monotonic sequence assigned by storage on append.
	Number uint64
	// Type identifies the kind of event.
	Type Type
	// UserID is the user the event belongs to; read paths filter on it.
	UserID string
	// TraceID correlates the event with the request that produced it.
	TraceID string
	// OccurredAt is when the event occurred.
	OccurredAt time.Time
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "habit", "journal").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
