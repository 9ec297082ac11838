// Package command defines the command envelope and the bus that routes each
// command to its single registered handler.
//
// Commands express business intent from API callers and tooling. The registry
// is explicit and built once at startup so a missing or duplicated handler is
// a wiring defect surfaced immediately, not a runtime surprise for end users.
package command

import (
	"encoding/json"
	"strings"
)

// Type identifies the command type string.
type Type string

// Core command types.
const (
	// TypeCreatePlan creates a habit plan.
	TypeCreatePlan Type = "plans.create"
	// TypeCreateHabit creates a habit under a plan.
	TypeCreateHabit Type = "habits.create"
	// TypeCompleteHabit records a daily completion for a habit.
	TypeCompleteHabit Type = "habits.complete"
	// TypeBulkCompleteHabits records completions for several habits at once.
	TypeBulkCompleteHabits Type = "habits.bulk_complete"
	// TypeArchiveHabit retires a habit from active tracking.
	TypeArchiveHabit Type = "habits.archive"
	// TypeAddJournalEntry records a reflection entry.
	TypeAddJournalEntry Type = "journal.add_entry"
)

// Command captures the canonical command envelope. Commands are immutable
// value objects; handlers read them and never write back.
type Command struct {
	Type        Type
	UserID      string
	TraceID     string
	PayloadJSON json.RawMessage
}

// IsValid reports whether the command type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}
