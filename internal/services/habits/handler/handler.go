// Package handler wires the reference command and query handlers: loading
// aggregates, applying domain rules, persisting state, and publishing the
// recorded events through the event bus.
package handler

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/platform/id"
	"github.com/wird-app/wird/internal/services/habits/domain/command"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
	"github.com/wird-app/wird/internal/services/habits/storage"
)

// EventPublisher is the event bus surface handlers publish through.
type EventPublisher interface {
	Publish(ctx context.Context, evt event.Event) (event.Event, error)
	PublishAll(ctx context.Context, events []event.Event) ([]event.Event, error)
}

// Deps carries the collaborators shared by all command handlers.
type Deps struct {
	Habits  storage.HabitRepository
	Plans   storage.PlanRepository
	Journal storage.JournalRepository
	Events  EventPublisher

	// Clock and NewID default to the real implementations; tests override
	// them for determinism.
	Clock func() time.Time
	NewID func() (string, error)
}

func (d Deps) clock() func() time.Time {
	if d.Clock != nil {
		return d.Clock
	}
	return func() time.Time { return time.Now().UTC() }
}

func (d Deps) newID() func() (string, error) {
	if d.NewID != nil {
		return d.NewID
	}
	return id.NewID
}

// RegisterCommandHandlers binds every reference command handler to the bus.
func RegisterCommandHandlers(bus *command.Bus, deps Deps) error {
	registrations := []struct {
		commandType command.Type
		handler     command.HandlerFunc
	}{
		{command.TypeCreatePlan, deps.createPlan},
		{command.TypeCreateHabit, deps.createHabit},
		{command.TypeCompleteHabit, deps.completeHabit},
		{command.TypeBulkCompleteHabits, deps.bulkCompleteHabits},
		{command.TypeArchiveHabit, deps.archiveHabit},
		{command.TypeAddJournalEntry, deps.addJournalEntry},
	}
	for _, reg := range registrations {
		if err := bus.Register(reg.commandType, reg.handler); err != nil {
			return err
		}
	}
	return nil
}

func decodePayload[P any](cmd command.Command) (P, error) {
	var payload P
	raw := cmd.PayloadJSON
	if len(raw) == 0 {
		raw = []byte(`{}`)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, apperrors.Wrap(apperrors.CodeValidation, "command payload must be valid JSON", err)
	}
	return payload, nil
}
