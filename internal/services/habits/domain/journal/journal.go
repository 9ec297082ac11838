// Package journal defines the journal entry aggregate. Entries are free-form
// reflections, optionally linked to a habit, counted by the analytics read
// model.
package journal

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
)

// MaxTextLength bounds journal entry bodies.
const MaxTextLength = 10_000

// Entry is the aggregate root for one journal entry.
type Entry struct {
	ID        string
	UserID    string
	HabitID   string
	Text      string
	CreatedAt time.Time

	pending []event.Event
}

// AddInput carries the fields needed to record a journal entry.
type AddInput struct {
	UserID  string
	HabitID string
	Text    string
	TraceID string
}

// EntryAddedPayload is the payload for journal.entry_added events.
type EntryAddedPayload struct {
	HabitID string `json:"habit_id,omitempty"`
	Text    string `json:"text"`
}

// Add constructs a journal entry and records its event.
func Add(input AddInput, clock func() time.Time, idGenerator func() (string, error)) (*Entry, error) {
	input.Text = strings.TrimSpace(input.Text)
	if input.Text == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "journal text is required")
	}
	if len(input.Text) > MaxTextLength {
		return nil, apperrors.New(apperrors.CodeValidation, "journal text is too long")
	}
	if strings.TrimSpace(input.UserID) == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "journal user is required")
	}

	entryID, err := idGenerator()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate journal entry id", err)
	}

	now := clock().UTC()
	e := &Entry{
		ID:        entryID,
		UserID:    input.UserID,
		HabitID:   strings.TrimSpace(input.HabitID),
		Text:      input.Text,
		CreatedAt: now,
	}

	payload, err := json.Marshal(EntryAddedPayload{HabitID: e.HabitID, Text: e.Text})
	if err != nil {
		payload = []byte(`{}`)
	}
	e.pending = append(e.pending, event.Event{
		StreamID:    e.ID,
		StreamType:  event.StreamTypeJournal,
		Type:        event.TypeJournalEntryAdded,
		UserID:      e.UserID,
		TraceID:     input.TraceID,
		OccurredAt:  now,
		PayloadJSON: payload,
	})
	return e, nil
}

// PendingEvents returns the events recorded since the last clear.
func (e *Entry) PendingEvents() []event.Event {
	return append([]event.Event(nil), e.pending...)
}

// ClearPendingEvents drops recorded events after they have been published.
func (e *Entry) ClearPendingEvents() {
	e.pending = nil
}

// RegisterEvents adds the journal event definitions to the registry.
func RegisterEvents(r *event.Registry) error {
	return r.Register(event.Definition{
		Type:       event.TypeJournalEntryAdded,
		StreamType: event.StreamTypeJournal,
		ValidatePayload: func(raw json.RawMessage) error {
			var p EntryAddedPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			if p.Text == "" {
				return errors.New("text is required")
			}
			return nil
		},
	})
}
