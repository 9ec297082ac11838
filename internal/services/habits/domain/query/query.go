// Package query defines the query envelope and the bus that serves reads,
// optionally through the cache service.
package query

import (
	"encoding/json"
	"strings"
	"time"
)

// Type identifies the query type string.
type Type string

// Core query types.
const (
	// TypeGetHabit returns a single habit by id.
	TypeGetHabit Type = "habits.get"
	// TypeListHabits lists the caller's habits from the HabitList read model.
	TypeListHabits Type = "habits.list"
	// TypeGetHabitAnalytics returns the caller's aggregate counters from the
	// HabitAnalytics read model.
	TypeGetHabitAnalytics Type = "habits.analytics"
	// TypeListEventHistory returns a filtered page of the caller's events.
	TypeListEventHistory Type = "events.history"
)

// Query captures the canonical query envelope. Queries are immutable value
// objects; the user id doubles as the cache invalidation tag.
type Query struct {
	Type        Type
	UserID      string
	PayloadJSON json.RawMessage
}

// Options controls per-dispatch caching behavior.
type Options struct {
	// Cache enables the read-through cache for this dispatch.
	Cache bool
	// CacheTTL bounds how long a populated entry may be served.
	CacheTTL time.Duration
}

// IsValid reports whether the query type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}
