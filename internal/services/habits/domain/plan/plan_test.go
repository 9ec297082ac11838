package plan

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
)

var testClock = func() time.Time {
	return time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
}

func TestCreateRecordsEvent(t *testing.T) {
	p, err := Create(CreateInput{
		UserID:      "u1",
		Name:        "ramadan prep",
		Description: " build up fasting habits ",
	}, testClock, func() (string, error) { return "plan-1", nil })
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}

	if p.Description != "build up fasting habits" {
		t.Fatalf("expected trimmed description, got %q", p.Description)
	}

	pending := p.PendingEvents()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	if pending[0].Type != event.TypePlanCreated {
		t.Fatalf("unexpected type %s", pending[0].Type)
	}

	var payload CreatedPayload
	if err := json.Unmarshal(pending[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Name != "ramadan prep" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	p.ClearPendingEvents()
	if len(p.PendingEvents()) != 0 {
		t.Fatal("expected cleared pending events")
	}
}

func TestCreateValidation(t *testing.T) {
	if _, err := Create(CreateInput{UserID: "u1"}, testClock, func() (string, error) { return "p", nil }); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
	if _, err := Create(CreateInput{Name: "x"}, testClock, func() (string, error) { return "p", nil }); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error for empty user, got %v", err)
	}
}

func TestRegisterEventsValidatesPayload(t *testing.T) {
	r := event.NewRegistry()
	if err := RegisterEvents(r); err != nil {
		t.Fatalf("register events: %v", err)
	}

	_, err := r.ValidateForAppend(event.Event{
		StreamID:    "p1",
		Type:        event.TypePlanCreated,
		UserID:      "u1",
		PayloadJSON: []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected payload validator to reject missing name")
	}
}
