package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wird-app/wird/internal/services/habits/storage"
)

const habitListColumns = "habit_id, user_id, plan_id, name, schedule, archived, total_completions, last_completed_date, created_at, updated_at"

// PutHabitListRow upserts one row of the habit list read model.
func (s *Store) PutHabitListRow(ctx context.Context, row storage.HabitListRecord) error {
	if strings.TrimSpace(row.HabitID) == "" {
		return fmt.Errorf("habit id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO habit_list (`+habitListColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (habit_id) DO UPDATE SET
		     user_id = excluded.user_id,
		     plan_id = excluded.plan_id,
		     name = excluded.name,
		     schedule = excluded.schedule,
		     archived = excluded.archived,
		     total_completions = excluded.total_completions,
		     last_completed_date = excluded.last_completed_date,
		     created_at = excluded.created_at,
		     updated_at = excluded.updated_at`,
		row.HabitID, row.UserID, row.PlanID, row.Name, row.Schedule,
		boolToInt(row.Archived), row.TotalCompletions, row.LastCompletedDate,
		toMillis(row.CreatedAt), toMillis(row.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put habit list row: %w", err)
	}
	return nil
}

// GetHabitListRow returns one read model row by habit id.
// Returns storage.ErrNotFound when the row does not exist.
func (s *Store) GetHabitListRow(ctx context.Context, habitID string) (storage.HabitListRecord, error) {
	habitID = strings.TrimSpace(habitID)
	if habitID == "" {
		return storage.HabitListRecord{}, fmt.Errorf("habit id is required")
	}
	dbRow := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+habitListColumns+` FROM habit_list WHERE habit_id = ?`, habitID,
	)
	row, err := scanHabitListRow(dbRow.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.HabitListRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.HabitListRecord{}, fmt.Errorf("get habit list row: %w", err)
	}
	return row, nil
}

// ListHabitsByUser returns a user's habit rows ordered by creation time.
// Archived habits are included only when includeArchived is set.
func (s *Store) ListHabitsByUser(ctx context.Context, userID string, includeArchived bool) ([]storage.HabitListRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	query := `SELECT ` + habitListColumns + ` FROM habit_list WHERE user_id = ?`
	if !includeArchived {
		query += ` AND archived = 0`
	}
	query += ` ORDER BY archived ASC, created_at ASC, habit_id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list habits by user: %w", err)
	}
	defer rows.Close()
	var records []storage.HabitListRecord
	for rows.Next() {
		record, err := scanHabitListRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan habit list row: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// TruncateHabitList clears the habit list read model for a full rebuild.
func (s *Store) TruncateHabitList(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM habit_list`); err != nil {
		return fmt.Errorf("truncate habit list: %w", err)
	}
	return nil
}

func scanHabitListRow(scan func(dest ...any) error) (storage.HabitListRecord, error) {
	var row storage.HabitListRecord
	var archived int
	var createdAtMillis, updatedAtMillis int64
	if err := scan(&row.HabitID, &row.UserID, &row.PlanID, &row.Name, &row.Schedule,
		&archived, &row.TotalCompletions, &row.LastCompletedDate,
		&createdAtMillis, &updatedAtMillis); err != nil {
		return storage.HabitListRecord{}, err
	}
	row.Archived = archived != 0
	row.CreatedAt = fromMillis(createdAtMillis)
	row.UpdatedAt = fromMillis(updatedAtMillis)
	return row, nil
}

// GetAnalytics returns the analytics counters for a user.
// Returns storage.ErrNotFound when the user has no recorded activity.
func (s *Store) GetAnalytics(ctx context.Context, userID string) (storage.AnalyticsRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.AnalyticsRecord{}, fmt.Errorf("user id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT user_id, habits_created, archived_habits, completions, journal_entries, last_activity_at
		 FROM habit_analytics WHERE user_id = ?`,
		userID,
	)
	var rec storage.AnalyticsRecord
	var lastActivityMillis int64
	err := row.Scan(&rec.UserID, &rec.HabitsCreated, &rec.ArchivedHabits,
		&rec.Completions, &rec.JournalEntries, &lastActivityMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.AnalyticsRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.AnalyticsRecord{}, fmt.Errorf("get habit analytics: %w", err)
	}
	rec.LastActivityAt = fromMillis(lastActivityMillis)
	return rec, nil
}

// PutAnalytics upserts the analytics counters for a user.
func (s *Store) PutAnalytics(ctx context.Context, rec storage.AnalyticsRecord) error {
	if strings.TrimSpace(rec.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO habit_analytics (user_id, habits_created, archived_habits, completions, journal_entries, last_activity_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		     habits_created = excluded.habits_created,
		     archived_habits = excluded.archived_habits,
		     completions = excluded.completions,
		     journal_entries = excluded.journal_entries,
		     last_activity_at = excluded.last_activity_at`,
		rec.UserID, rec.HabitsCreated, rec.ArchivedHabits,
		rec.Completions, rec.JournalEntries, toMillis(rec.LastActivityAt),
	)
	if err != nil {
		return fmt.Errorf("put habit analytics: %w", err)
	}
	return nil
}

// TruncateAnalytics clears the analytics read model for a full rebuild.
func (s *Store) TruncateAnalytics(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM habit_analytics`); err != nil {
		return fmt.Errorf("truncate habit analytics: %w", err)
	}
	return nil
}
