package journal

import (
	"strings"
	"testing"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
)

var testClock = func() time.Time {
	return time.Date(2026, 8, 30, 21, 0, 0, 0, time.UTC)
}

func TestAddRecordsEvent(t *testing.T) {
	e, err := Add(AddInput{
		UserID:  "u1",
		HabitID: "h1",
		Text:    "felt more present during maghrib today",
	}, testClock, func() (string, error) { return "entry-1", nil })
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}

	pending := e.PendingEvents()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	if pending[0].Type != event.TypeJournalEntryAdded {
		t.Fatalf("unexpected type %s", pending[0].Type)
	}
	if pending[0].StreamType != event.StreamTypeJournal {
		t.Fatalf("unexpected stream type %s", pending[0].StreamType)
	}
}

func TestAddValidation(t *testing.T) {
	if _, err := Add(AddInput{UserID: "u1", Text: "   "}, testClock, func() (string, error) { return "e", nil }); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error for empty text, got %v", err)
	}
	if _, err := Add(AddInput{Text: "x"}, testClock, func() (string, error) { return "e", nil }); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error for empty user, got %v", err)
	}
	long := strings.Repeat("a", MaxTextLength+1)
	if _, err := Add(AddInput{UserID: "u1", Text: long}, testClock, func() (string, error) { return "e", nil }); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error for oversized text, got %v", err)
	}
}

func TestRegisterEventsValidatesPayload(t *testing.T) {
	r := event.NewRegistry()
	if err := RegisterEvents(r); err != nil {
		t.Fatalf("register events: %v", err)
	}
	_, err := r.ValidateForAppend(event.Event{
		StreamID:    "e1",
		Type:        event.TypeJournalEntryAdded,
		UserID:      "u1",
		PayloadJSON: []byte(`{"habit_id":"h1"}`),
	})
	if err == nil {
		t.Fatal("expected payload validator to reject missing text")
	}
}
