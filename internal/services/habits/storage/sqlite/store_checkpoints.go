package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wird-app/wird/internal/services/habits/storage"
)

// GetCheckpoint returns the checkpoint for a projection name.
// Returns storage.ErrNotFound if the projection has never committed.
func (s *Store) GetCheckpoint(ctx context.Context, name string) (storage.ProjectionCheckpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.ProjectionCheckpoint{}, fmt.Errorf("projection name is required")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, last_event_number, last_processed_at, error_count, last_error
		 FROM projection_checkpoints WHERE name = ?`,
		name,
	)
	var cp storage.ProjectionCheckpoint
	var lastEventNumber int64
	var lastProcessedAtMillis int64
	err := row.Scan(&cp.Name, &lastEventNumber, &lastProcessedAtMillis, &cp.ErrorCount, &cp.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ProjectionCheckpoint{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ProjectionCheckpoint{}, fmt.Errorf("get projection checkpoint: %w", err)
	}
	cp.LastEventNumber = uint64(lastEventNumber)
	cp.LastProcessedAt = fromMillis(lastProcessedAtMillis)
	return cp, nil
}

// SaveCheckpoint upserts the checkpoint for a projection.
func (s *Store) SaveCheckpoint(ctx context.Context, cp storage.ProjectionCheckpoint) error {
	cp.Name = strings.TrimSpace(cp.Name)
	if cp.Name == "" {
		return fmt.Errorf("projection name is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO projection_checkpoints (name, last_event_number, last_processed_at, error_count, last_error)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
		     last_event_number = excluded.last_event_number,
		     last_processed_at = excluded.last_processed_at,
		     error_count = excluded.error_count,
		     last_error = excluded.last_error`,
		cp.Name,
		int64(cp.LastEventNumber),
		toMillis(cp.LastProcessedAt),
		cp.ErrorCount,
		cp.LastError,
	)
	if err != nil {
		return fmt.Errorf("save projection checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns all checkpoints ordered by projection name.
func (s *Store) ListCheckpoints(ctx context.Context) ([]storage.ProjectionCheckpoint, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT name, last_event_number, last_processed_at, error_count, last_error
		 FROM projection_checkpoints ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list projection checkpoints: %w", err)
	}
	defer rows.Close()
	var checkpoints []storage.ProjectionCheckpoint
	for rows.Next() {
		var cp storage.ProjectionCheckpoint
		var lastEventNumber int64
		var lastProcessedAtMillis int64
		if err := rows.Scan(&cp.Name, &lastEventNumber, &lastProcessedAtMillis, &cp.ErrorCount, &cp.LastError); err != nil {
			return nil, fmt.Errorf("scan projection checkpoint: %w", err)
		}
		cp.LastEventNumber = uint64(lastEventNumber)
		cp.LastProcessedAt = fromMillis(lastProcessedAtMillis)
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}
