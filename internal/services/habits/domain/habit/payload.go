package habit

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/wird-app/wird/internal/services/habits/domain/event"
)

// CreatedPayload is the payload for habit.created events.
type CreatedPayload struct {
	PlanID   string `json:"plan_id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
}

// CompletedPayload is the payload for habit.completed events.
type CompletedPayload struct {
	Date string `json:"date"`
}

// ArchivedPayload is the payload for habit.archived events.
type ArchivedPayload struct{}

func marshalPayload(payload any) ([]byte, error) {
	return json.Marshal(payload)
}

// RegisterEvents adds the habit event definitions to the registry.
func RegisterEvents(r *event.Registry) error {
	definitions := []event.Definition{
		{
			Type:       event.TypeHabitCreated,
			StreamType: event.StreamTypeHabit,
			ValidatePayload: func(raw json.RawMessage) error {
				var p CreatedPayload
				if err := json.Unmarshal(raw, &p); err != nil {
					return err
				}
				if p.Name == "" {
					return errors.New("name is required")
				}
				if p.PlanID == "" {
					return errors.New("plan id is required")
				}
				return nil
			},
		},
		{
			Type:       event.TypeHabitCompleted,
			StreamType: event.StreamTypeHabit,
			ValidatePayload: func(raw json.RawMessage) error {
				var p CompletedPayload
				if err := json.Unmarshal(raw, &p); err != nil {
					return err
				}
				if _, err := time.Parse(DateLayout, p.Date); err != nil {
					return errors.New("date must be YYYY-MM-DD")
				}
				return nil
			},
		},
		{
			Type:       event.TypeHabitArchived,
			StreamType: event.StreamTypeHabit,
		},
	}
	for _, def := range definitions {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
