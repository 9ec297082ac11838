package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wird-app/wird/internal/services/habits/domain/event"
	"github.com/wird-app/wird/internal/services/habits/domain/habit"
	"github.com/wird-app/wird/internal/services/habits/storage"
)

// HabitListName keys the habit list projection checkpoint.
const HabitListName = "habit-list"

// HabitList maintains the per-habit listing read model: one row per habit
// with its schedule, completion counters, and archive flag.
type HabitList struct {
	store storage.HabitListStore
}

// NewHabitList creates the habit list projection.
func NewHabitList(store storage.HabitListStore) *HabitList {
	return &HabitList{store: store}
}

// Name implements Projection.
func (p *HabitList) Name() string { return HabitListName }

// Handles implements Projection.
func (p *HabitList) Handles() []event.Type {
	return []event.Type{
		event.TypeHabitCreated,
		event.TypeHabitCompleted,
		event.TypeHabitArchived,
	}
}

// Truncate implements Projection.
func (p *HabitList) Truncate(ctx context.Context) error {
	return p.store.TruncateHabitList(ctx)
}

// Apply implements Projection.
func (p *HabitList) Apply(ctx context.Context, evt event.Event) error {
	switch evt.Type {
	case event.TypeHabitCreated:
		return p.applyCreated(ctx, evt)
	case event.TypeHabitCompleted:
		return p.applyCompleted(ctx, evt)
	case event.TypeHabitArchived:
		return p.applyArchived(ctx, evt)
	default:
		return fmt.Errorf("unhandled event type: %s", evt.Type)
	}
}

func (p *HabitList) applyCreated(ctx context.Context, evt event.Event) error {
	var payload habit.CreatedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	return p.store.PutHabitListRow(ctx, storage.HabitListRecord{
		HabitID:   evt.StreamID,
		UserID:    evt.UserID,
		PlanID:    payload.PlanID,
		Name:      payload.Name,
		Schedule:  payload.Schedule,
		CreatedAt: evt.OccurredAt,
		UpdatedAt: evt.OccurredAt,
	})
}

func (p *HabitList) applyCompleted(ctx context.Context, evt event.Event) error {
	var payload habit.CompletedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	row, err := p.store.GetHabitListRow(ctx, evt.StreamID)
	if err != nil {
		return fmt.Errorf("load habit row %s: %w", evt.StreamID, err)
	}
	// Idempotency: the journal orders completions, so a redelivered event
	// carries the date the row already holds.
	if row.LastCompletedDate == payload.Date {
		return nil
	}
	row.TotalCompletions++
	row.LastCompletedDate = payload.Date
	row.UpdatedAt = evt.OccurredAt
	return p.store.PutHabitListRow(ctx, row)
}

func (p *HabitList) applyArchived(ctx context.Context, evt event.Event) error {
	row, err := p.store.GetHabitListRow(ctx, evt.StreamID)
	if err != nil {
		return fmt.Errorf("load habit row %s: %w", evt.StreamID, err)
	}
	if row.Archived {
		return nil
	}
	row.Archived = true
	row.UpdatedAt = evt.OccurredAt
	return p.store.PutHabitListRow(ctx, row)
}
