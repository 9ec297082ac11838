package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wird-app/wird/internal/services/habits/storage"
)

// CreatePlan persists a new plan record.
func (s *Store) CreatePlan(ctx context.Context, p storage.PlanRecord) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("plan id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO plans (id, user_id, name, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.Description,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// FindPlanByID returns a plan record by id.
// Returns storage.ErrNotFound when the plan does not exist.
func (s *Store) FindPlanByID(ctx context.Context, id string) (storage.PlanRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.PlanRecord{}, fmt.Errorf("plan id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, created_at, updated_at FROM plans WHERE id = ?`, id,
	)
	var p storage.PlanRecord
	var createdAtMillis, updatedAtMillis int64
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &createdAtMillis, &updatedAtMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PlanRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PlanRecord{}, fmt.Errorf("find plan: %w", err)
	}
	p.CreatedAt = fromMillis(createdAtMillis)
	p.UpdatedAt = fromMillis(updatedAtMillis)
	return p, nil
}

// DeletePlan removes a plan record.
func (s *Store) DeletePlan(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("plan id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}
