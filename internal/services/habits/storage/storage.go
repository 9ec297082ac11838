// Package storage defines the persistence boundary for the habits service:
// the append-only event journal, projection read models and checkpoints, and
// the aggregate repositories the command handlers load from.
package storage

import (
	"context"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity" states
// and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// HabitRecord captures the current write-side state of a habit aggregate.
type HabitRecord struct {
	ID                string
	UserID            string
	PlanID            string
	Name              string
	Schedule          string
	Archived          bool
	TotalCompletions  int
	LastCompletedDate string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PlanRecord captures the current write-side state of a plan aggregate.
type PlanRecord struct {
	ID          string
	UserID      string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JournalEntryRecord captures a persisted journal entry.
type JournalEntryRecord struct {
	ID        string
	UserID    string
	HabitID   string
	Text      string
	CreatedAt time.Time
}

// HabitRepository owns habit aggregate persistence. Writes are atomic per
// aggregate: Create and Update either fully persist the record or fail.
type HabitRepository interface {
	CreateHabit(ctx context.Context, h HabitRecord) error
	FindHabitByID(ctx context.Context, id string) (HabitRecord, error)
	UpdateHabit(ctx context.Context, h HabitRecord) error
	DeleteHabit(ctx context.Context, id string) error
}

// PlanRepository owns plan aggregate persistence.
type PlanRepository interface {
	CreatePlan(ctx context.Context, p PlanRecord) error
	FindPlanByID(ctx context.Context, id string) (PlanRecord, error)
	DeletePlan(ctx context.Context, id string) error
}

// JournalRepository owns journal entry persistence.
type JournalRepository interface {
	CreateJournalEntry(ctx context.Context, e JournalEntryRecord) error
	FindJournalEntryByID(ctx context.Context, id string) (JournalEntryRecord, error)
	ListJournalEntriesByUser(ctx context.Context, userID string, limit int) ([]JournalEntryRecord, error)
}

// EventStoreHealth is a cheap diagnostic snapshot of the journal. IsHealthy
// reflects reachability of the underlying storage, not data correctness.
type EventStoreHealth struct {
	IsHealthy   bool
	EventCount  int64
	StreamCount int64
	OldestEvent *time.Time
	NewestEvent *time.Time
	CheckedAt   time.Time
}

// ListEventsPageRequest describes request filters for operator and UI event
// history views.
type ListEventsPageRequest struct {
	// AfterNumber returns only events numbered greater than this value.
	AfterNumber uint64
	// PageSize is the maximum number of events to return (default 50, max 200).
	PageSize int
	// CursorNumber is the event number to paginate from (0 for first page).
	CursorNumber uint64
	// Descending orders results newest first when true.
	Descending bool
	// FilterClause is an optional SQL WHERE clause fragment produced by the
	// filter package.
	FilterClause string
	// FilterParams are the positional parameters for the filter clause.
	FilterParams []any
}

// ListEventsPageResult contains paginated event history for introspection
// tooling.
type ListEventsPageResult struct {
	Events      []event.Event
	HasNextPage bool
	TotalCount  int
}

// EventStore owns the append-only event journal that drives projections and
// replay; this is the source of truth for state reconstruction.
type EventStore interface {
	// AppendEvent atomically appends an event and returns it with its global
	// number set. It returns only after the write is durably committed.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// AppendEvents appends a batch in one transaction with contiguous
	// numbers. The batch is all-or-nothing.
	AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error)
	// ListEventsAfter returns up to limit events with number greater than
	// afterNumber, in ascending number order.
	ListEventsAfter(ctx context.Context, afterNumber uint64, limit int) ([]event.Event, error)
	// ListEventsByType returns events of one type in ascending number order,
	// optionally bounded by occurrence time.
	ListEventsByType(ctx context.Context, eventType event.Type, from, to *time.Time) ([]event.Event, error)
	// ListEventsByUser returns a user's events in ascending number order,
	// optionally bounded by occurrence time.
	ListEventsByUser(ctx context.Context, userID string, from, to *time.Time) ([]event.Event, error)
	// ListEventsPage returns a paginated, filtered page of events.
	ListEventsPage(ctx context.Context, req ListEventsPageRequest) (ListEventsPageResult, error)
	// LatestEventNumber returns the highest assigned number, 0 when empty.
	LatestEventNumber(ctx context.Context) (uint64, error)
	// HealthStatus returns a diagnostic snapshot of the journal.
	HealthStatus(ctx context.Context) (EventStoreHealth, error)
}

// ProjectionCheckpoint records how far a projection has applied the journal.
type ProjectionCheckpoint struct {
	Name            string
	LastEventNumber uint64
	LastProcessedAt time.Time
	ErrorCount      int
	LastError       string
}

// CheckpointStore persists projection checkpoints so catch-up resumes from
// the last committed position after a restart.
type CheckpointStore interface {
	// GetCheckpoint returns the checkpoint for a projection name.
	// Returns ErrNotFound when the projection has never committed.
	GetCheckpoint(ctx context.Context, name string) (ProjectionCheckpoint, error)
	// SaveCheckpoint upserts a checkpoint.
	SaveCheckpoint(ctx context.Context, cp ProjectionCheckpoint) error
	// ListCheckpoints returns all checkpoints ordered by name.
	ListCheckpoints(ctx context.Context) ([]ProjectionCheckpoint, error)
}

// HabitListRecord is one row of the HabitList read model.
type HabitListRecord struct {
	HabitID           string
	UserID            string
	PlanID            string
	Name              string
	Schedule          string
	Archived          bool
	TotalCompletions  int
	LastCompletedDate string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HabitListStore owns the per-habit read rows used by listing queries.
type HabitListStore interface {
	PutHabitListRow(ctx context.Context, row HabitListRecord) error
	GetHabitListRow(ctx context.Context, habitID string) (HabitListRecord, error)
	// ListHabitsByUser returns a user's rows, active first, newest creation
	// last. Archived rows are included only when includeArchived is set.
	ListHabitsByUser(ctx context.Context, userID string, includeArchived bool) ([]HabitListRecord, error)
	// TruncateHabitList clears the read model for a full rebuild.
	TruncateHabitList(ctx context.Context) error
}

// AnalyticsRecord is one row of the HabitAnalytics read model: per-user
// aggregate counters.
type AnalyticsRecord struct {
	UserID         string
	HabitsCreated  int
	ArchivedHabits int
	Completions    int
	JournalEntries int
	LastActivityAt time.Time
}

// AnalyticsStore owns the per-user counters used by dashboard queries.
type AnalyticsStore interface {
	GetAnalytics(ctx context.Context, userID string) (AnalyticsRecord, error)
	PutAnalytics(ctx context.Context, rec AnalyticsRecord) error
	// TruncateAnalytics clears the read model for a full rebuild.
	TruncateAnalytics(ctx context.Context) error
}

// ProjectionStore groups the read-model stores plus checkpoints consumed by
// the projection manager.
type ProjectionStore interface {
	HabitListStore
	AnalyticsStore
	CheckpointStore
}

// Store is a composite interface for all persistence concerns used across
// event sourcing, projection application, and queries.
type Store interface {
	HabitRepository
	PlanRepository
	JournalRepository
	EventStore
	HabitListStore
	AnalyticsStore
	CheckpointStore
	Close() error
}
