package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wird-app/wird/internal/services/habits/storage"
)

const habitColumns = "id, user_id, plan_id, name, schedule, archived, total_completions, last_completed_date, created_at, updated_at"

// CreateHabit persists a new habit record.
func (s *Store) CreateHabit(ctx context.Context, h storage.HabitRecord) error {
	if strings.TrimSpace(h.ID) == "" {
		return fmt.Errorf("habit id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO habits (`+habitColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, h.PlanID, h.Name, h.Schedule,
		boolToInt(h.Archived), h.TotalCompletions, h.LastCompletedDate,
		toMillis(h.CreatedAt), toMillis(h.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create habit: %w", err)
	}
	return nil
}

// FindHabitByID returns a habit record by id.
// Returns storage.ErrNotFound when the habit does not exist.
func (s *Store) FindHabitByID(ctx context.Context, id string) (storage.HabitRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.HabitRecord{}, fmt.Errorf("habit id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits WHERE id = ?`, id,
	)
	var h storage.HabitRecord
	var archived int
	var createdAtMillis, updatedAtMillis int64
	err := row.Scan(&h.ID, &h.UserID, &h.PlanID, &h.Name, &h.Schedule,
		&archived, &h.TotalCompletions, &h.LastCompletedDate,
		&createdAtMillis, &updatedAtMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.HabitRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.HabitRecord{}, fmt.Errorf("find habit: %w", err)
	}
	h.Archived = archived != 0
	h.CreatedAt = fromMillis(createdAtMillis)
	h.UpdatedAt = fromMillis(updatedAtMillis)
	return h, nil
}

// UpdateHabit replaces a persisted habit record.
// Returns storage.ErrNotFound when the habit does not exist.
func (s *Store) UpdateHabit(ctx context.Context, h storage.HabitRecord) error {
	if strings.TrimSpace(h.ID) == "" {
		return fmt.Errorf("habit id is required")
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE habits SET user_id = ?, plan_id = ?, name = ?, schedule = ?,
		     archived = ?, total_completions = ?, last_completed_date = ?, updated_at = ?
		 WHERE id = ?`,
		h.UserID, h.PlanID, h.Name, h.Schedule,
		boolToInt(h.Archived), h.TotalCompletions, h.LastCompletedDate,
		toMillis(h.UpdatedAt), h.ID,
	)
	if err != nil {
		return fmt.Errorf("update habit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update habit rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteHabit removes a habit record.
func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("habit id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
