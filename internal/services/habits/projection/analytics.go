package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/wird-app/wird/internal/services/habits/domain/event"
	"github.com/wird-app/wird/internal/services/habits/storage"
)

// HabitAnalyticsName keys the analytics projection checkpoint.
const HabitAnalyticsName = "habit-analytics"

// HabitAnalytics maintains per-user activity counters for dashboard queries.
type HabitAnalytics struct {
	store storage.AnalyticsStore
}

// NewHabitAnalytics creates the analytics projection.
func NewHabitAnalytics(store storage.AnalyticsStore) *HabitAnalytics {
	return &HabitAnalytics{store: store}
}

// Name implements Projection.
func (p *HabitAnalytics) Name() string { return HabitAnalyticsName }

// Handles implements Projection.
func (p *HabitAnalytics) Handles() []event.Type {
	return []event.Type{
		event.TypeHabitCreated,
		event.TypeHabitCompleted,
		event.TypeHabitArchived,
		event.TypeJournalEntryAdded,
	}
}

// Truncate implements Projection.
func (p *HabitAnalytics) Truncate(ctx context.Context) error {
	return p.store.TruncateAnalytics(ctx)
}

// Apply implements Projection.
func (p *HabitAnalytics) Apply(ctx context.Context, evt event.Event) error {
	rec, err := p.store.GetAnalytics(ctx, evt.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		rec = storage.AnalyticsRecord{UserID: evt.UserID}
	} else if err != nil {
		return fmt.Errorf("load analytics %s: %w", evt.UserID, err)
	}

	switch evt.Type {
	case event.TypeHabitCreated:
		rec.HabitsCreated++
	case event.TypeHabitCompleted:
		rec.Completions++
	case event.TypeHabitArchived:
		rec.ArchivedHabits++
	case event.TypeJournalEntryAdded:
		rec.JournalEntries++
	default:
		return fmt.Errorf("unhandled event type: %s", evt.Type)
	}
	if evt.OccurredAt.After(rec.LastActivityAt) {
		rec.LastActivityAt = evt.OccurredAt
	}
	return p.store.PutAnalytics(ctx, rec)
}
