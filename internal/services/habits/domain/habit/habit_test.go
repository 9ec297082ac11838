package habit

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

func testIDGenerator() (string, error) {
	return "habit-test-id", nil
}

func createTestHabit(t *testing.T) *Habit {
	t.Helper()
	h, err := Create(CreateInput{
		UserID: "u1",
		PlanID: "plan-1",
		Name:   "morning dhikr",
	}, testClock, testIDGenerator)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	return h
}

func TestCreateRecordsCreatedEvent(t *testing.T) {
	h := createTestHabit(t)

	if h.ID != "habit-test-id" {
		t.Fatalf("unexpected id %q", h.ID)
	}
	if h.Schedule != "daily" {
		t.Fatalf("expected default schedule, got %q", h.Schedule)
	}

	pending := h.PendingEvents()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	evt := pending[0]
	if evt.Type != event.TypeHabitCreated {
		t.Fatalf("unexpected event type %s", evt.Type)
	}
	if evt.StreamID != h.ID || evt.UserID != "u1" {
		t.Fatalf("unexpected envelope %+v", evt)
	}

	var payload CreatedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.PlanID != "plan-1" || payload.Name != "morning dhikr" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name  string
		input CreateInput
	}{
		{"empty name", CreateInput{UserID: "u1", PlanID: "p1", Name: "  "}},
		{"empty user", CreateInput{PlanID: "p1", Name: "x"}},
		{"empty plan", CreateInput{UserID: "u1", Name: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Create(tc.input, testClock, testIDGenerator)
			if apperrors.CodeOf(err) != apperrors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCompleteRecordsEventOncePerDay(t *testing.T) {
	h := createTestHabit(t)
	h.ClearPendingEvents()

	if err := h.Complete("2026-08-30", "trace-1", testClock()); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if h.TotalCompletions != 1 {
		t.Fatalf("expected 1 completion, got %d", h.TotalCompletions)
	}

	err := h.Complete("2026-08-30", "trace-2", testClock())
	if err == nil {
		t.Fatal("expected second same-day completion to fail")
	}
	if apperrors.CodeOf(err) != apperrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err.Error() != "Habit already completed today" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if h.TotalCompletions != 1 {
		t.Fatalf("expected completions unchanged after rejection, got %d", h.TotalCompletions)
	}
	if got := len(h.PendingEvents()); got != 1 {
		t.Fatalf("expected 1 pending event after rejection, got %d", got)
	}
}

func TestCompleteNextDaySucceeds(t *testing.T) {
	h := createTestHabit(t)
	h.ClearPendingEvents()

	if err := h.Complete("2026-08-30", "", testClock()); err != nil {
		t.Fatalf("day one: %v", err)
	}
	if err := h.Complete("2026-08-31", "", testClock()); err != nil {
		t.Fatalf("day two: %v", err)
	}
	if h.TotalCompletions != 2 {
		t.Fatalf("expected 2 completions, got %d", h.TotalCompletions)
	}
	if h.LastCompletedDate != "2026-08-31" {
		t.Fatalf("unexpected last completed date %q", h.LastCompletedDate)
	}
}

func TestCompleteDefaultsToToday(t *testing.T) {
	h := createTestHabit(t)
	h.ClearPendingEvents()

	if err := h.Complete("", "", testClock()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if h.LastCompletedDate != "2026-08-30" {
		t.Fatalf("expected clock date, got %q", h.LastCompletedDate)
	}
}

func TestCompleteRejectsBadDate(t *testing.T) {
	h := createTestHabit(t)
	err := h.Complete("30/08/2026", "", testClock())
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompleteArchivedHabit(t *testing.T) {
	h := createTestHabit(t)
	if err := h.Archive("", testClock()); err != nil {
		t.Fatalf("archive: %v", err)
	}

	err := h.Complete("2026-08-30", "", testClock())
	if apperrors.CodeOf(err) != apperrors.CodeConflict {
		t.Fatalf("expected conflict for archived habit, got %v", err)
	}
}

func TestArchiveTwice(t *testing.T) {
	h := createTestHabit(t)
	if err := h.Archive("", testClock()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	err := h.Archive("", testClock())
	if apperrors.CodeOf(err) != apperrors.CodeConflict {
		t.Fatalf("expected conflict on double archive, got %v", err)
	}
}

func TestClearPendingEvents(t *testing.T) {
	h := createTestHabit(t)
	h.ClearPendingEvents()
	if len(h.PendingEvents()) != 0 {
		t.Fatal("expected no pending events after clear")
	}
}

func TestRegisterEvents(t *testing.T) {
	r := event.NewRegistry()
	if err := RegisterEvents(r); err != nil {
		t.Fatalf("register events: %v", err)
	}
	if err := RegisterEvents(r); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}

	_, err := r.ValidateForAppend(event.Event{
		StreamID:    "h1",
		Type:        event.TypeHabitCompleted,
		UserID:      "u1",
		PayloadJSON: []byte(`{"date":"not-a-date"}`),
	})
	if err == nil {
		t.Fatal("expected payload validator to reject bad date")
	}
}
