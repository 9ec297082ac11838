package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.Register(Definition{Type: TypeHabitCompleted, StreamType: StreamTypeHabit}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
}

func validEvent() Event {
	return Event{
		StreamID:    "habit-1",
		Type:        TypeHabitCompleted,
		UserID:      "u1",
		PayloadJSON: []byte(`{"date":"2026-08-30"}`),
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := testRegistry(t)
	err := r.Register(Definition{Type: TypeHabitCompleted, StreamType: StreamTypeHabit})
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestValidateForAppendFillsDefaults(t *testing.T) {
	r := testRegistry(t)

	evt, err := r.ValidateForAppend(validEvent())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if evt.StreamType != StreamTypeHabit {
		t.Fatalf("expected stream type from definition, got %q", evt.StreamType)
	}
	if evt.OccurredAt.IsZero() {
		t.Fatal("expected occurred-at to be defaulted")
	}
	if evt.OccurredAt.Location() != time.UTC {
		t.Fatal("expected occurred-at in UTC")
	}
}

func TestValidateForAppendRejectsMissingFields(t *testing.T) {
	r := testRegistry(t)

	evt := validEvent()
	evt.StreamID = "  "
	if _, err := r.ValidateForAppend(evt); !errors.Is(err, ErrStreamIDRequired) {
		t.Fatalf("expected stream id error, got %v", err)
	}

	evt = validEvent()
	evt.UserID = ""
	if _, err := r.ValidateForAppend(evt); !errors.Is(err, ErrUserIDRequired) {
		t.Fatalf("expected user id error, got %v", err)
	}

	evt = validEvent()
	evt.Type = ""
	if _, err := r.ValidateForAppend(evt); !errors.Is(err, ErrTypeRequired) {
		t.Fatalf("expected type error, got %v", err)
	}
}

func TestValidateForAppendRejectsUnknownType(t *testing.T) {
	r := testRegistry(t)

	evt := validEvent()
	evt.Type = "habit.renamed"
	if _, err := r.ValidateForAppend(evt); !errors.Is(err, ErrTypeUnknown) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestValidateForAppendRejectsStreamTypeMismatch(t *testing.T) {
	r := testRegistry(t)

	evt := validEvent()
	evt.StreamType = StreamTypePlan
	if _, err := r.ValidateForAppend(evt); !errors.Is(err, ErrStreamTypeMismatch) {
		t.Fatalf("expected stream type mismatch, got %v", err)
	}
}

func TestValidateForAppendRejectsBadPayload(t *testing.T) {
	r := testRegistry(t)

	evt := validEvent()
	evt.PayloadJSON = []byte(`{not json`)
	if _, err := r.ValidateForAppend(evt); !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected payload error, got %v", err)
	}
}

func TestValidateForAppendRunsPayloadValidator(t *testing.T) {
	r := NewRegistry()
	wantErr := errors.New("date is required")
	err := r.Register(Definition{
		Type:       TypeHabitCompleted,
		StreamType: StreamTypeHabit,
		ValidatePayload: func(raw json.RawMessage) error {
			var p struct {
				Date string `json:"date"`
			}
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			if p.Date == "" {
				return wantErr
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	evt := validEvent()
	evt.PayloadJSON = []byte(`{}`)
	if _, err := r.ValidateForAppend(evt); !errors.Is(err, wantErr) {
		t.Fatalf("expected payload validator error, got %v", err)
	}
}

func TestTypesSorted(t *testing.T) {
	r := NewRegistry()
	for _, def := range []Definition{
		{Type: TypeJournalEntryAdded, StreamType: StreamTypeJournal},
		{Type: TypeHabitCreated, StreamType: StreamTypeHabit},
		{Type: TypePlanCreated, StreamType: StreamTypePlan},
	} {
		if err := r.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Type, err)
		}
	}
	types := r.Types()
	if len(types) != 3 {
		t.Fatalf("expected 3 types, got %d", len(types))
	}
	for i := 1; i < len(types); i++ {
		if types[i-1] >= types[i] {
			t.Fatalf("expected sorted types, got %v", types)
		}
	}
}

func TestTypeDomain(t *testing.T) {
	if TypeHabitCompleted.Domain() != "habit" {
		t.Fatalf("unexpected domain %q", TypeHabitCompleted.Domain())
	}
	if TypeJournalEntryAdded.Domain() != "journal" {
		t.Fatalf("unexpected domain %q", TypeJournalEntryAdded.Domain())
	}
}
