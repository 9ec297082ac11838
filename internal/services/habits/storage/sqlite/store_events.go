package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wird-app/wird/internal/services/habits/domain/event"
	"github.com/wird-app/wird/internal/services/habits/storage"
)

const eventColumns = "number, stream_id, stream_type, event_type, user_id, trace_id, occurred_at, payload_json"

// AppendEvent atomically appends a single event and returns it with its
// global number assigned.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	appended, err := s.AppendEvents(ctx, []event.Event{evt})
	if err != nil {
		return event.Event{}, err
	}
	return appended[0], nil
}

// AppendEvents appends a batch of events in one transaction. Numbers are
// assigned contiguously; the batch is all-or-nothing.
func (s *Store) AppendEvents(ctx context.Context, events []event.Event) ([]event.Event, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("event store is not configured")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("at least one event is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback()

	appended := make([]event.Event, 0, len(events))
	for _, evt := range events {
		normalized, err := s.appendEventTx(ctx, tx, evt)
		if err != nil {
			return nil, err
		}
		appended = append(appended, normalized)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append transaction: %w", err)
	}
	return appended, nil
}

func (s *Store) appendEventTx(ctx context.Context, tx *sql.Tx, evt event.Event) (event.Event, error) {
	normalized, err := s.eventRegistry.ValidateForAppend(evt)
	if err != nil {
		return event.Event{}, err
	}
	evt = normalized

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_seq (id, next_number) VALUES (1, 1)`,
	); err != nil {
		return event.Event{}, fmt.Errorf("init event seq: %w", err)
	}

	var next int64
	row := tx.QueryRowContext(ctx, `SELECT next_number FROM event_seq WHERE id = 1`)
	if err := row.Scan(&next); err != nil {
		return event.Event{}, fmt.Errorf("get event seq: %w", err)
	}
	if next <= 0 {
		return event.Event{}, fmt.Errorf("event seq is required")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE event_seq SET next_number = next_number + 1 WHERE id = 1`,
	); err != nil {
		return event.Event{}, fmt.Errorf("increment event seq: %w", err)
	}
	evt.Number = uint64(next)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (number, stream_id, stream_type, event_type, user_id, trace_id, occurred_at, payload_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(evt.Number),
		evt.StreamID,
		evt.StreamType,
		string(evt.Type),
		evt.UserID,
		evt.TraceID,
		toMillis(evt.OccurredAt),
		string(evt.PayloadJSON),
	); err != nil {
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}

	return evt, nil
}

// ListEventsAfter returns up to limit events numbered greater than afterNumber
// in ascending order.
func (s *Store) ListEventsAfter(ctx context.Context, afterNumber uint64, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE number > ? ORDER BY number ASC LIMIT ?`,
		int64(afterNumber), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events after: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsByType returns events of one type ordered by number, optionally
// bounded by occurrence time.
func (s *Store) ListEventsByType(ctx context.Context, eventType event.Type, from, to *time.Time) ([]event.Event, error) {
	if !eventType.IsValid() {
		return nil, fmt.Errorf("event type is required")
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE event_type = ?`
	params := []any{string(eventType)}
	query, params = appendTimeBounds(query, params, from, to)
	query += ` ORDER BY number ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list events by type: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsByUser returns a user's events ordered by number, optionally
// bounded by occurrence time.
func (s *Store) ListEventsByUser(ctx context.Context, userID string, from, to *time.Time) ([]event.Event, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE user_id = ?`
	params := []any{userID}
	query, params = appendTimeBounds(query, params, from, to)
	query += ` ORDER BY number ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list events by user: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func appendTimeBounds(query string, params []any, from, to *time.Time) (string, []any) {
	if from != nil {
		query += ` AND occurred_at >= ?`
		params = append(params, toMillis(*from))
	}
	if to != nil {
		query += ` AND occurred_at <= ?`
		params = append(params, toMillis(*to))
	}
	return query, params
}

// ListEventsPage returns a filtered, cursor-paginated page of events for
// history views.
func (s *Store) ListEventsPage(ctx context.Context, req storage.ListEventsPageRequest) (storage.ListEventsPageResult, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	where := []string{"number > ?"}
	params := []any{int64(req.AfterNumber)}
	if strings.TrimSpace(req.FilterClause) != "" {
		where = append(where, req.FilterClause)
		params = append(params, req.FilterParams...)
	}

	countQuery := `SELECT COUNT(*) FROM events WHERE ` + strings.Join(where, " AND ")
	var total int
	if err := s.sqlDB.QueryRowContext(ctx, countQuery, params...).Scan(&total); err != nil {
		return storage.ListEventsPageResult{}, fmt.Errorf("count events page: %w", err)
	}

	pageWhere := where
	pageParams := params
	order := "ASC"
	if req.Descending {
		order = "DESC"
	}
	if req.CursorNumber > 0 {
		if req.Descending {
			pageWhere = append(pageWhere, "number < ?")
		} else {
			pageWhere = append(pageWhere, "number > ?")
		}
		pageParams = append(pageParams, int64(req.CursorNumber))
	}

	// Fetch one extra row to detect a following page.
	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + strings.Join(pageWhere, " AND ") +
		` ORDER BY number ` + order + ` LIMIT ?`
	pageParams = append(pageParams, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, pageParams...)
	if err != nil {
		return storage.ListEventsPageResult{}, fmt.Errorf("list events page: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return storage.ListEventsPageResult{}, err
	}

	hasNext := false
	if len(events) > pageSize {
		hasNext = true
		events = events[:pageSize]
	}

	return storage.ListEventsPageResult{
		Events:      events,
		HasNextPage: hasNext,
		TotalCount:  total,
	}, nil
}

// LatestEventNumber returns the highest assigned event number, 0 when the
// journal is empty.
func (s *Store) LatestEventNumber(ctx context.Context) (uint64, error) {
	var number sql.NullInt64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT MAX(number) FROM events`)
	if err := row.Scan(&number); err != nil {
		return 0, fmt.Errorf("latest event number: %w", err)
	}
	if !number.Valid || number.Int64 < 0 {
		return 0, nil
	}
	return uint64(number.Int64), nil
}

// HealthStatus returns a diagnostic snapshot of the journal.
func (s *Store) HealthStatus(ctx context.Context) (storage.EventStoreHealth, error) {
	health := storage.EventStoreHealth{CheckedAt: time.Now().UTC()}
	if s == nil || s.sqlDB == nil {
		return health, fmt.Errorf("event store is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT stream_id), MIN(occurred_at), MAX(occurred_at) FROM events`,
	)
	var oldest, newest sql.NullInt64
	if err := row.Scan(&health.EventCount, &health.StreamCount, &oldest, &newest); err != nil {
		return health, fmt.Errorf("event store health: %w", err)
	}
	if oldest.Valid {
		t := fromMillis(oldest.Int64)
		health.OldestEvent = &t
	}
	if newest.Valid {
		t := fromMillis(newest.Int64)
		health.NewestEvent = &t
	}
	health.IsHealthy = true
	return health, nil
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (event.Event, error) {
	var evt event.Event
	var number int64
	var eventType string
	var occurredAtMillis int64
	var payload string
	if err := rows.Scan(
		&number,
		&evt.StreamID,
		&evt.StreamType,
		&eventType,
		&evt.UserID,
		&evt.TraceID,
		&occurredAtMillis,
		&payload,
	); err != nil {
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	if number < 0 {
		return event.Event{}, errors.New("event number is negative")
	}
	evt.Number = uint64(number)
	evt.Type = event.Type(eventType)
	evt.OccurredAt = fromMillis(occurredAtMillis)
	evt.PayloadJSON = []byte(payload)
	return evt, nil
}
