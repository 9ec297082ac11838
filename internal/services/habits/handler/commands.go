package handler

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/command"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
	"github.com/wird-app/wird/internal/services/habits/domain/habit"
	"github.com/wird-app/wird/internal/services/habits/domain/journal"
	"github.com/wird-app/wird/internal/services/habits/domain/plan"
	"github.com/wird-app/wird/internal/services/habits/storage"
)

// CreatePlanPayload is the payload for plans.create commands.
type CreatePlanPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateHabitPayload is the payload for habits.create commands.
type CreateHabitPayload struct {
	PlanID   string `json:"plan_id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule,omitempty"`
}

// CompleteHabitPayload is the payload for habits.complete commands.
type CompleteHabitPayload struct {
	HabitID string `json:"habit_id"`
	// Date is the calendar day being checked in, YYYY-MM-DD. Empty means
	// today.
	Date string `json:"date,omitempty"`
}

// BulkCompletePayload is the payload for habits.bulk_complete commands.
type BulkCompletePayload struct {
	HabitIDs []string `json:"habit_ids"`
	Date     string   `json:"date,omitempty"`
}

// ArchiveHabitPayload is the payload for habits.archive commands.
type ArchiveHabitPayload struct {
	HabitID string `json:"habit_id"`
}

// AddJournalEntryPayload is the payload for journal.add_entry commands.
type AddJournalEntryPayload struct {
	HabitID string `json:"habit_id,omitempty"`
	Text    string `json:"text"`
}

// PlanResult is the command result for a created plan.
type PlanResult struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HabitResult is the command result for habit mutations.
type HabitResult struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	PlanID            string    `json:"plan_id"`
	Name              string    `json:"name"`
	Schedule          string    `json:"schedule"`
	Archived          bool      `json:"archived"`
	TotalCompletions  int       `json:"total_completions"`
	LastCompletedDate string    `json:"last_completed_date,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// JournalEntryResult is the command result for a recorded journal entry.
type JournalEntryResult struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	HabitID   string    `json:"habit_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// BulkOutcome reports the result of one habit in a bulk completion.
type BulkOutcome struct {
	HabitID string `json:"habit_id"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

// BulkCompleteResult summarizes a habits.bulk_complete dispatch.
type BulkCompleteResult struct {
	Completed int           `json:"completed"`
	Outcomes  []BulkOutcome `json:"outcomes"`
}

func (d Deps) createPlan(ctx context.Context, cmd command.Command) (any, error) {
	payload, err := decodePayload[CreatePlanPayload](cmd)
	if err != nil {
		return nil, err
	}

	p, err := plan.Create(plan.CreateInput{
		UserID:      cmd.UserID,
		Name:        payload.Name,
		Description: payload.Description,
		TraceID:     cmd.TraceID,
	}, d.clock(), d.newID())
	if err != nil {
		return nil, err
	}

	if err := d.Plans.CreatePlan(ctx, storage.PlanRecord{
		ID:          p.ID,
		UserID:      p.UserID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "persist plan", err)
	}

	if _, err := d.Events.PublishAll(ctx, p.PendingEvents()); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "publish plan events", err)
	}
	p.ClearPendingEvents()

	return &PlanResult{
		ID:          p.ID,
		UserID:      p.UserID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}, nil
}

func (d Deps) createHabit(ctx context.Context, cmd command.Command) (any, error) {
	payload, err := decodePayload[CreateHabitPayload](cmd)
	if err != nil {
		return nil, err
	}

	planRecord, err := d.Plans.FindPlanByID(ctx, payload.PlanID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "Plan not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "load plan", err)
	}
	if planRecord.UserID != cmd.UserID {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "Unauthorized: Plan does not belong to user")
	}

	h, err := habit.Create(habit.CreateInput{
		UserID:   cmd.UserID,
		PlanID:   planRecord.ID,
		Name:     payload.Name,
		Schedule: payload.Schedule,
		TraceID:  cmd.TraceID,
	}, d.clock(), d.newID())
	if err != nil {
		return nil, err
	}

	if err := d.Habits.CreateHabit(ctx, habitToRecord(h)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "persist habit", err)
	}

	if _, err := d.Events.PublishAll(ctx, h.PendingEvents()); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "publish habit events", err)
	}
	h.ClearPendingEvents()

	return habitResult(h), nil
}

func (d Deps) completeHabit(ctx context.Context, cmd command.Command) (any, error) {
	payload, err := decodePayload[CompleteHabitPayload](cmd)
	if err != nil {
		return nil, err
	}

	h, err := d.loadOwnedHabit(ctx, payload.HabitID, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if err := h.Complete(payload.Date, cmd.TraceID, d.clock()()); err != nil {
		return nil, err
	}

	if err := d.Habits.UpdateHabit(ctx, habitToRecord(h)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "persist habit completion", err)
	}

	if _, err := d.Events.PublishAll(ctx, h.PendingEvents()); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "publish completion events", err)
	}
	h.ClearPendingEvents()

	return habitResult(h), nil
}

// bulkCompleteHabits processes habits sequentially in the given order. A habit
// that cannot be completed is reported in its outcome and skipped; the rest of
// the batch proceeds. Events for all successful completions are published
// together after every update is persisted.
func (d Deps) bulkCompleteHabits(ctx context.Context, cmd command.Command) (any, error) {
	payload, err := decodePayload[BulkCompletePayload](cmd)
	if err != nil {
		return nil, err
	}
	if len(payload.HabitIDs) == 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "at least one habit id is required")
	}

	result := &BulkCompleteResult{}
	var pending []event.Event
	for _, habitID := range payload.HabitIDs {
		outcome := BulkOutcome{HabitID: habitID}

		h, err := d.loadOwnedHabit(ctx, habitID, cmd.UserID)
		if err == nil {
			err = h.Complete(payload.Date, cmd.TraceID, d.clock()())
		}
		if err == nil {
			err = d.Habits.UpdateHabit(ctx, habitToRecord(h))
			if err != nil {
				err = apperrors.Wrap(apperrors.CodeStorage, "persist habit completion", err)
			}
		}

		if err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Done = true
			result.Completed++
			pending = append(pending, h.PendingEvents()...)
			h.ClearPendingEvents()
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	if len(pending) > 0 {
		if _, err := d.Events.PublishAll(ctx, pending); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorage, "publish completion events", err)
		}
	}
	return result, nil
}

func (d Deps) archiveHabit(ctx context.Context, cmd command.Command) (any, error) {
	payload, err := decodePayload[ArchiveHabitPayload](cmd)
	if err != nil {
		return nil, err
	}

	h, err := d.loadOwnedHabit(ctx, payload.HabitID, cmd.UserID)
	if err != nil {
		return nil, err
	}

	if err := h.Archive(cmd.TraceID, d.clock()()); err != nil {
		return nil, err
	}

	if err := d.Habits.UpdateHabit(ctx, habitToRecord(h)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "persist habit archive", err)
	}

	if _, err := d.Events.PublishAll(ctx, h.PendingEvents()); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "publish archive events", err)
	}
	h.ClearPendingEvents()

	return habitResult(h), nil
}

func (d Deps) addJournalEntry(ctx context.Context, cmd command.Command) (any, error) {
	payload, err := decodePayload[AddJournalEntryPayload](cmd)
	if err != nil {
		return nil, err
	}

	// A linked habit must exist and belong to the caller; free-standing
	// entries skip the check.
	if payload.HabitID != "" {
		if _, err := d.loadOwnedHabit(ctx, payload.HabitID, cmd.UserID); err != nil {
			return nil, err
		}
	}

	entry, err := journal.Add(journal.AddInput{
		UserID:  cmd.UserID,
		HabitID: payload.HabitID,
		Text:    payload.Text,
		TraceID: cmd.TraceID,
	}, d.clock(), d.newID())
	if err != nil {
		return nil, err
	}

	if err := d.Journal.CreateJournalEntry(ctx, storage.JournalEntryRecord{
		ID:        entry.ID,
		UserID:    entry.UserID,
		HabitID:   entry.HabitID,
		Text:      entry.Text,
		CreatedAt: entry.CreatedAt,
	}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "persist journal entry", err)
	}

	if _, err := d.Events.PublishAll(ctx, entry.PendingEvents()); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "publish journal events", err)
	}
	entry.ClearPendingEvents()

	return &JournalEntryResult{
		ID:        entry.ID,
		UserID:    entry.UserID,
		HabitID:   entry.HabitID,
		Text:      entry.Text,
		CreatedAt: entry.CreatedAt,
	}, nil
}

// loadOwnedHabit loads a habit and verifies the caller owns it.
func (d Deps) loadOwnedHabit(ctx context.Context, habitID, userID string) (*habit.Habit, error) {
	record, err := d.Habits.FindHabitByID(ctx, habitID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "Habit not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "load habit", err)
	}
	if record.UserID != userID {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "Unauthorized: Habit does not belong to user")
	}
	return habitFromRecord(record), nil
}

func habitFromRecord(record storage.HabitRecord) *habit.Habit {
	return &habit.Habit{
		ID:                record.ID,
		UserID:            record.UserID,
		PlanID:            record.PlanID,
		Name:              record.Name,
		Schedule:          record.Schedule,
		Archived:          record.Archived,
		TotalCompletions:  record.TotalCompletions,
		LastCompletedDate: record.LastCompletedDate,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

func habitToRecord(h *habit.Habit) storage.HabitRecord {
	return storage.HabitRecord{
		ID:                h.ID,
		UserID:            h.UserID,
		PlanID:            h.PlanID,
		Name:              h.Name,
		Schedule:          h.Schedule,
		Archived:          h.Archived,
		TotalCompletions:  h.TotalCompletions,
		LastCompletedDate: h.LastCompletedDate,
		CreatedAt:         h.CreatedAt,
		UpdatedAt:         h.UpdatedAt,
	}
}

func habitResult(h *habit.Habit) *HabitResult {
	return &HabitResult{
		ID:                h.ID,
		UserID:            h.UserID,
		PlanID:            h.PlanID,
		Name:              h.Name,
		Schedule:          h.Schedule,
		Archived:          h.Archived,
		TotalCompletions:  h.TotalCompletions,
		LastCompletedDate: h.LastCompletedDate,
		CreatedAt:         h.CreatedAt,
		UpdatedAt:         h.UpdatedAt,
	}
}
