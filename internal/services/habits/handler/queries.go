package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/query"
	"github.com/wird-app/wird/internal/services/habits/storage"
	"github.com/wird-app/wird/internal/services/habits/storage/filter"
)

// EventHistorySource is the journal surface the history query reads from.
type EventHistorySource interface {
	ListEventsPage(ctx context.Context, req storage.ListEventsPageRequest) (storage.ListEventsPageResult, error)
}

// QueryDeps carries the read model stores shared by all query handlers.
type QueryDeps struct {
	HabitList storage.HabitListStore
	Analytics storage.AnalyticsStore
	Events    EventHistorySource
}

// GetHabitPayload is the payload for habits.get queries.
type GetHabitPayload struct {
	HabitID string `json:"habit_id"`
}

// ListHabitsPayload is the payload for habits.list queries.
type ListHabitsPayload struct {
	IncludeArchived bool `json:"include_archived,omitempty"`
}

// EventHistoryPayload is the payload for events.history queries.
type EventHistoryPayload struct {
	// Filter is an optional AIP-160 expression over the event fields.
	Filter     string `json:"filter,omitempty"`
	PageSize   int    `json:"page_size,omitempty"`
	Cursor     uint64 `json:"cursor,omitempty"`
	Descending bool   `json:"descending,omitempty"`
}

// HabitView is one habit row as served by read queries.
type HabitView struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	PlanID            string    `json:"plan_id,omitempty"`
	Name              string    `json:"name"`
	Schedule          string    `json:"schedule"`
	Archived          bool      `json:"archived"`
	TotalCompletions  int       `json:"total_completions"`
	LastCompletedDate string    `json:"last_completed_date,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HabitListView is the habits.list query result.
type HabitListView struct {
	Habits []HabitView `json:"habits"`
}

// AnalyticsView is the habits.analytics query result.
type AnalyticsView struct {
	UserID         string    `json:"user_id"`
	HabitsCreated  int       `json:"habits_created"`
	ArchivedHabits int       `json:"archived_habits"`
	Completions    int       `json:"completions"`
	JournalEntries int       `json:"journal_entries"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// EventView is one journal entry as served by the history query.
type EventView struct {
	Number     uint64          `json:"number"`
	StreamID   string          `json:"stream_id"`
	StreamType string          `json:"stream_type"`
	Type       string          `json:"type"`
	TraceID    string          `json:"trace_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// EventHistoryView is the events.history query result.
type EventHistoryView struct {
	Events      []EventView `json:"events"`
	HasNextPage bool        `json:"has_next_page"`
	TotalCount  int         `json:"total_count"`
}

// RegisterQueryHandlers binds every reference query handler to the bus.
func RegisterQueryHandlers(bus *query.Bus, deps QueryDeps) error {
	definitions := []query.Definition{
		{
			Type:      query.TypeGetHabit,
			Handler:   query.HandlerFunc(deps.getHabit),
			NewResult: func() any { return &HabitView{} },
		},
		{
			Type:      query.TypeListHabits,
			Handler:   query.HandlerFunc(deps.listHabits),
			NewResult: func() any { return &HabitListView{} },
		},
		{
			Type:      query.TypeGetHabitAnalytics,
			Handler:   query.HandlerFunc(deps.getAnalytics),
			NewResult: func() any { return &AnalyticsView{} },
		},
		{
			Type:      query.TypeListEventHistory,
			Handler:   query.HandlerFunc(deps.listEventHistory),
			NewResult: func() any { return &EventHistoryView{} },
		},
	}
	for _, def := range definitions {
		if err := bus.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func decodeQueryPayload[P any](q query.Query) (P, error) {
	var payload P
	raw := q.PayloadJSON
	if len(raw) == 0 {
		raw = []byte(`{}`)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, apperrors.Wrap(apperrors.CodeValidation, "query payload must be valid JSON", err)
	}
	return payload, nil
}

func (d QueryDeps) getHabit(ctx context.Context, q query.Query) (any, error) {
	payload, err := decodeQueryPayload[GetHabitPayload](q)
	if err != nil {
		return nil, err
	}

	row, err := d.HabitList.GetHabitListRow(ctx, payload.HabitID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "Habit not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "load habit row", err)
	}
	// Another user's habit reads as absent, not as forbidden.
	if row.UserID != q.UserID {
		return nil, apperrors.New(apperrors.CodeNotFound, "Habit not found")
	}
	return habitViewFromRow(row), nil
}

func (d QueryDeps) listHabits(ctx context.Context, q query.Query) (any, error) {
	payload, err := decodeQueryPayload[ListHabitsPayload](q)
	if err != nil {
		return nil, err
	}

	rows, err := d.HabitList.ListHabitsByUser(ctx, q.UserID, payload.IncludeArchived)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "list habit rows", err)
	}

	view := &HabitListView{Habits: make([]HabitView, 0, len(rows))}
	for _, row := range rows {
		view.Habits = append(view.Habits, *habitViewFromRow(row))
	}
	return view, nil
}

func (d QueryDeps) getAnalytics(ctx context.Context, q query.Query) (any, error) {
	rec, err := d.Analytics.GetAnalytics(ctx, q.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		// A user with no recorded activity gets zero counters.
		return &AnalyticsView{UserID: q.UserID}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "load analytics", err)
	}
	return &AnalyticsView{
		UserID:         rec.UserID,
		HabitsCreated:  rec.HabitsCreated,
		ArchivedHabits: rec.ArchivedHabits,
		Completions:    rec.Completions,
		JournalEntries: rec.JournalEntries,
		LastActivityAt: rec.LastActivityAt,
	}, nil
}

func (d QueryDeps) listEventHistory(ctx context.Context, q query.Query) (any, error) {
	payload, err := decodeQueryPayload[EventHistoryPayload](q)
	if err != nil {
		return nil, err
	}

	cond, err := filter.ParseEventFilter(payload.Filter)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, "invalid event filter", err)
	}

	// History is always scoped to the caller, filter or not.
	clause := "user_id = ?"
	params := []any{q.UserID}
	if cond.Clause != "" {
		clause += " AND " + cond.Clause
		params = append(params, cond.Params...)
	}

	page, err := d.Events.ListEventsPage(ctx, storage.ListEventsPageRequest{
		PageSize:     payload.PageSize,
		CursorNumber: payload.Cursor,
		Descending:   payload.Descending,
		FilterClause: clause,
		FilterParams: params,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "list event history", err)
	}

	view := &EventHistoryView{
		Events:      make([]EventView, 0, len(page.Events)),
		HasNextPage: page.HasNextPage,
		TotalCount:  page.TotalCount,
	}
	for _, evt := range page.Events {
		view.Events = append(view.Events, EventView{
			Number:     evt.Number,
			StreamID:   evt.StreamID,
			StreamType: evt.StreamType,
			Type:       string(evt.Type),
			TraceID:    evt.TraceID,
			OccurredAt: evt.OccurredAt,
			Payload:    json.RawMessage(evt.PayloadJSON),
		})
	}
	return view, nil
}

func habitViewFromRow(row storage.HabitListRecord) *HabitView {
	return &HabitView{
		ID:                row.HabitID,
		UserID:            row.UserID,
		PlanID:            row.PlanID,
		Name:              row.Name,
		Schedule:          row.Schedule,
		Archived:          row.Archived,
		TotalCompletions:  row.TotalCompletions,
		LastCompletedDate: row.LastCompletedDate,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}
