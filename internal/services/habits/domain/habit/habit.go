// Package habit defines the habit aggregate. A habit belongs to a plan and a
// user, and records its own domain events as commands mutate it; handlers
// collect those events and hand them to the event bus after persisting.
package habit

import (
	"strings"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
)

// DateLayout is the calendar-day format carried by completion events.
const DateLayout = "2006-01-02"

// Habit is the aggregate root for a tracked habit.
type Habit struct {
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

	pending []event.Event
}

// CreateInput carries the fields needed to construct a habit.
type CreateInput struct {
	UserID   string
	PlanID   string
	Name     string
	Schedule string
	TraceID  string
}

// Create constructs a new habit and records its creation event. Ownership of
// the referenced plan is the caller's responsibility; the aggregate only
// validates its own fields.
func Create(input CreateInput, clock func() time.Time, idGenerator func() (string, error)) (*Habit, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "habit name is required")
	}
	if strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "habit user is required")
	}
	if strings.TrimSpace(input.PlanID) == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "habit plan is required")
	}
	if input.Schedule == "" {
		input.Schedule = "daily"
	}

	habitID, err := idGenerator()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate habit id", err)
	}

	now := clock().UTC()
	h := &Habit{
		ID:        habitID,
		UserID:    input.UserID,
		PlanID:    input.PlanID,
		Name:      input.Name,
		Schedule:  input.Schedule,
		CreatedAt: now,
		UpdatedAt: now,
	}
	h.record(event.TypeHabitCreated, input.TraceID, now, CreatedPayload{
		PlanID:   h.PlanID,
		Name:     h.Name,
		Schedule: h.Schedule,
	})
	return h, nil
}

// Complete records a check-in for the given calendar day. Completing the same
// day twice is a domain rule violation reported as a conflict; the aggregate
// is left untouched in that case.
func (h *Habit) Complete(date string, traceID string, now time.Time) error {
	date = strings.TrimSpace(date)
	if date == "" {
		date = now.UTC().Format(DateLayout)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return apperrors.New(apperrors.CodeValidation, "completion date must be YYYY-MM-DD")
	}
	if h.Archived {
		return apperrors.New(apperrors.CodeConflict, "Habit is archived")
	}
	if h.LastCompletedDate == date {
		return apperrors.New(apperrors.CodeConflict, "Habit already completed today")
	}

	h.TotalCompletions++
	h.LastCompletedDate = date
	h.UpdatedAt = now.UTC()
	h.record(event.TypeHabitCompleted, traceID, now, CompletedPayload{Date: date})
	return nil
}

// Archive retires the habit from active tracking.
func (h *Habit) Archive(traceID string, now time.Time) error {
	if h.Archived {
		return apperrors.New(apperrors.CodeConflict, "Habit already archived")
	}
	h.Archived = true
	h.UpdatedAt = now.UTC()
	h.record(event.TypeHabitArchived, traceID, now, ArchivedPayload{})
	return nil
}

// PendingEvents returns the events recorded since the last clear, in the
// order they occurred.
func (h *Habit) PendingEvents() []event.Event {
	return append([]event.Event(nil), h.pending...)
}

// ClearPendingEvents drops recorded events after they have been published.
func (h *Habit) ClearPendingEvents() {
	h.pending = nil
}

func (h *Habit) record(eventType event.Type, traceID string, now time.Time, payload any) {
	raw, err := marshalPayload(payload)
	if err != nil {
		// Payload structs are plain data; a marshal failure is a
		// programming error surfaced on the next append.
		raw = []byte(`{}`)
	}
	h.pending = append(h.pending, event.Event{
		StreamID:    h.ID,
		StreamType:  event.StreamTypeHabit,
		Type:        eventType,
		UserID:      h.UserID,
		TraceID:     traceID,
		OccurredAt:  now.UTC(),
		PayloadJSON: raw,
	})
}
