package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wird-app/wird/internal/services/habits/storage"
)

func TestSaveAndGetCheckpoint(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	cp := storage.ProjectionCheckpoint{
		Name:            "habit-list",
		LastEventNumber: 42,
		LastProcessedAt: now,
	}
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	got, err := store.GetCheckpoint(ctx, "habit-list")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if got.Name != "habit-list" {
		t.Fatalf("name = %s, want habit-list", got.Name)
	}
	if got.LastEventNumber != 42 {
		t.Fatalf("last_event_number = %d, want 42", got.LastEventNumber)
	}
	if !got.LastProcessedAt.Equal(now) {
		t.Fatalf("last_processed_at = %v, want %v", got.LastProcessedAt, now)
	}
}

func TestGetCheckpointNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetCheckpoint(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveCheckpointUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	if err := store.SaveCheckpoint(ctx, storage.ProjectionCheckpoint{
		Name:            "habit-list",
		LastEventNumber: 1,
		LastProcessedAt: now,
	}); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	if err := store.SaveCheckpoint(ctx, storage.ProjectionCheckpoint{
		Name:            "habit-list",
		LastEventNumber: 7,
		LastProcessedAt: now.Add(time.Minute),
		ErrorCount:      2,
		LastError:       "apply failed",
	}); err != nil {
		t.Fatalf("save checkpoint again: %v", err)
	}

	got, err := store.GetCheckpoint(ctx, "habit-list")
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	if got.LastEventNumber != 7 || got.ErrorCount != 2 || got.LastError != "apply failed" {
		t.Fatalf("unexpected checkpoint after upsert %+v", got)
	}
}

func TestListCheckpointsOrdered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	for _, name := range []string{"habit-analytics", "habit-list"} {
		if err := store.SaveCheckpoint(ctx, storage.ProjectionCheckpoint{
			Name:            name,
			LastEventNumber: 1,
			LastProcessedAt: now,
		}); err != nil {
			t.Fatalf("save checkpoint %s: %v", name, err)
		}
	}

	checkpoints, err := store.ListCheckpoints(ctx)
	if err != nil {
		t.Fatalf("list checkpoints: %v", err)
	}
	if len(checkpoints) != 2 {
		t.Fatalf("checkpoints = %d, want 2", len(checkpoints))
	}
	if checkpoints[0].Name != "habit-analytics" || checkpoints[1].Name != "habit-list" {
		t.Fatalf("unexpected order %s, %s", checkpoints[0].Name, checkpoints[1].Name)
	}
}
