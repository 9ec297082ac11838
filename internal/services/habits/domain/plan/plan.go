// Package plan defines the plan aggregate. A plan groups habits for one user
// and anchors the ownership check performed when habits are created under it.
package plan

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
)

// Plan is the aggregate root for a habit plan.
type Plan struct {
	ID          string
	UserID      string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	pending []event.Event
}

// CreateInput carries the fields needed to construct a plan.
type CreateInput struct {
	UserID      string
	Name        string
	Description string
	TraceID     string
}

// CreatedPayload is the payload for plan.created events.
type CreatedPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Create constructs a new plan and records its creation event.
func Create(input CreateInput, clock func() time.Time, idGenerator func() (string, error)) (*Plan, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "plan name is required")
	}
	if strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "plan user is required")
	}

	planID, err := idGenerator()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate plan id", err)
	}

	now := clock().UTC()
	p := &Plan{
		ID:          planID,
		UserID:      input.UserID,
		Name:        input.Name,
		Description: strings.TrimSpace(input.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	payload, err := json.Marshal(CreatedPayload{Name: p.Name, Description: p.Description})
	if err != nil {
		payload = []byte(`{}`)
	}
	p.pending = append(p.pending, event.Event{
		StreamID:    p.ID,
		StreamType:  event.StreamTypePlan,
		Type:        event.TypePlanCreated,
		UserID:      p.UserID,
		TraceID:     input.TraceID,
		OccurredAt:  now,
		PayloadJSON: payload,
	})
	return p, nil
}

// PendingEvents returns the events recorded since the last clear.
func (p *Plan) PendingEvents() []event.Event {
	return append([]event.Event(nil), p.pending...)
}

// ClearPendingEvents drops recorded events after they have been published.
func (p *Plan) ClearPendingEvents() {
	p.pending = nil
}

// RegisterEvents adds the plan event definitions to the registry.
func RegisterEvents(r *event.Registry) error {
	return r.Register(event.Definition{
		Type:       event.TypePlanCreated,
		StreamType: event.StreamTypePlan,
		ValidatePayload: func(raw json.RawMessage) error {
			var p CreatedPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			if p.Name == "" {
				return errors.New("name is required")
			}
			return nil
		},
	})
}
