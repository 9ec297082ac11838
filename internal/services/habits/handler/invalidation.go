package handler

import (
	"context"
	"fmt"

	"github.com/wird-app/wird/internal/platform/cache"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
	"github.com/wird-app/wird/internal/services/habits/eventbus"
)

// PatternInvalidator deletes cached query results by glob pattern. Satisfied
// by the cache service.
type PatternInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// RegisterCacheInvalidation subscribes an invalidation hook to every mutating
// event type: once an event for a user commits, all of that user's cached
// query results are stale and get dropped.
func RegisterCacheInvalidation(bus *eventbus.Bus, invalidator PatternInvalidator) error {
	if invalidator == nil {
		return fmt.Errorf("cache invalidator is required")
	}

	invalidate := func(ctx context.Context, evt event.Event) error {
		if _, err := invalidator.DeleteByPattern(ctx, cache.UserPattern(evt.UserID)); err != nil {
			return fmt.Errorf("invalidate cached queries for user %s: %w", evt.UserID, err)
		}
		return nil
	}

	types := []event.Type{
		event.TypePlanCreated,
		event.TypeHabitCreated,
		event.TypeHabitCompleted,
		event.TypeHabitArchived,
		event.TypeJournalEntryAdded,
	}
	for _, t := range types {
		if err := bus.Subscribe(t, "cache-invalidation", invalidate); err != nil {
			return err
		}
	}
	return nil
}
