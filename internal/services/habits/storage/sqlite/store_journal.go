package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wird-app/wird/internal/services/habits/storage"
)

// CreateJournalEntry persists a new journal entry record.
func (s *Store) CreateJournalEntry(ctx context.Context, e storage.JournalEntryRecord) error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("journal entry id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO journal_entries (id, user_id, habit_id, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.HabitID, e.Text, toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create journal entry: %w", err)
	}
	return nil
}

// FindJournalEntryByID returns a journal entry record by id.
// Returns storage.ErrNotFound when the entry does not exist.
func (s *Store) FindJournalEntryByID(ctx context.Context, id string) (storage.JournalEntryRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.JournalEntryRecord{}, fmt.Errorf("journal entry id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, habit_id, text, created_at FROM journal_entries WHERE id = ?`, id,
	)
	var e storage.JournalEntryRecord
	var createdAtMillis int64
	err := row.Scan(&e.ID, &e.UserID, &e.HabitID, &e.Text, &createdAtMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.JournalEntryRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.JournalEntryRecord{}, fmt.Errorf("find journal entry: %w", err)
	}
	e.CreatedAt = fromMillis(createdAtMillis)
	return e, nil
}

// ListJournalEntriesByUser returns a user's entries, newest first.
func (s *Store) ListJournalEntriesByUser(ctx context.Context, userID string, limit int) ([]storage.JournalEntryRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, user_id, habit_id, text, created_at FROM journal_entries
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()
	var entries []storage.JournalEntryRecord
	for rows.Next() {
		var e storage.JournalEntryRecord
		var createdAtMillis int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.HabitID, &e.Text, &createdAtMillis); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.CreatedAt = fromMillis(createdAtMillis)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
