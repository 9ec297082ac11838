package projection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
	"github.com/wird-app/wird/internal/services/habits/storage"
)

type fakeSource struct {
	events []event.Event
}

func (f *fakeSource) ListEventsAfter(_ context.Context, afterNumber uint64, limit int) ([]event.Event, error) {
	var page []event.Event
	for _, evt := range f.events {
		if evt.Number > afterNumber {
			page = append(page, evt)
			if len(page) >= limit {
				break
			}
		}
	}
	return page, nil
}

func (f *fakeSource) LatestEventNumber(context.Context) (uint64, error) {
	if len(f.events) == 0 {
		return 0, nil
	}
	return f.events[len(f.events)-1].Number, nil
}

type memCheckpoints struct {
	saved map[string]storage.ProjectionCheckpoint
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{saved: make(map[string]storage.ProjectionCheckpoint)}
}

func (m *memCheckpoints) GetCheckpoint(_ context.Context, name string) (storage.ProjectionCheckpoint, error) {
	cp, ok := m.saved[name]
	if !ok {
		return storage.ProjectionCheckpoint{}, storage.ErrNotFound
	}
	return cp, nil
}

func (m *memCheckpoints) SaveCheckpoint(_ context.Context, cp storage.ProjectionCheckpoint) error {
	m.saved[cp.Name] = cp
	return nil
}

func (m *memCheckpoints) ListCheckpoints(context.Context) ([]storage.ProjectionCheckpoint, error) {
	var checkpoints []storage.ProjectionCheckpoint
	for _, cp := range m.saved {
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

type fakeProjection struct {
	name      string
	handles   []event.Type
	applied   []uint64
	truncated int
	failOn    uint64
	onApply   func(ctx context.Context, evt event.Event) error
}

func (p *fakeProjection) Name() string          { return p.name }
func (p *fakeProjection) Handles() []event.Type { return p.handles }

func (p *fakeProjection) Apply(ctx context.Context, evt event.Event) error {
	if p.failOn != 0 && evt.Number == p.failOn {
		return fmt.Errorf("apply refused for event %d", evt.Number)
	}
	if p.onApply != nil {
		if err := p.onApply(ctx, evt); err != nil {
			return err
		}
	}
	p.applied = append(p.applied, evt.Number)
	return nil
}

func (p *fakeProjection) Truncate(context.Context) error {
	p.truncated++
	p.applied = nil
	return nil
}

func journalOf(types ...event.Type) *fakeSource {
	source := &fakeSource{}
	base := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	for i, t := range types {
		source.events = append(source.events, event.Event{
			Number:     uint64(i + 1),
			StreamID:   "habit-1",
			StreamType: event.StreamTypeHabit,
			Type:       t,
			UserID:     "user-1",
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return source
}

func TestCatchUpAppliesHandledTypesAndAdvances(t *testing.T) {
	source := journalOf(event.TypeHabitCreated, event.TypePlanCreated, event.TypeHabitCompleted)
	checkpoints := newMemCheckpoints()
	manager := NewManager(source, checkpoints)
	manager.SetLogf(t.Logf)

	proj := &fakeProjection{
		name:    "habit-list",
		handles: []event.Type{event.TypeHabitCreated, event.TypeHabitCompleted},
	}
	if err := manager.Register(proj); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := manager.CatchUpProjection(context.Background(), "habit-list"); err != nil {
		t.Fatalf("catch up: %v", err)
	}

	if len(proj.applied) != 2 || proj.applied[0] != 1 || proj.applied[1] != 3 {
		t.Fatalf("applied = %v, want [1 3]", proj.applied)
	}
	// Unhandled events still advance the checkpoint.
	cp := checkpoints.saved["habit-list"]
	if cp.LastEventNumber != 3 {
		t.Fatalf("checkpoint = %d, want 3", cp.LastEventNumber)
	}
}

func TestCatchUpResumesFromCheckpoint(t *testing.T) {
	source := journalOf(event.TypeHabitCreated, event.TypeHabitCompleted, event.TypeHabitCompleted)
	checkpoints := newMemCheckpoints()
	checkpoints.saved["habit-list"] = storage.ProjectionCheckpoint{Name: "habit-list", LastEventNumber: 2}
	manager := NewManager(source, checkpoints)

	proj := &fakeProjection{
		name:    "habit-list",
		handles: []event.Type{event.TypeHabitCreated, event.TypeHabitCompleted},
	}
	if err := manager.Register(proj); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := manager.CatchUpProjection(context.Background(), "habit-list"); err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if len(proj.applied) != 1 || proj.applied[0] != 3 {
		t.Fatalf("applied = %v, want [3]", proj.applied)
	}
}

func TestCatchUpRecordsFailureAndStops(t *testing.T) {
	source := journalOf(event.TypeHabitCreated, event.TypeHabitCompleted, event.TypeHabitCompleted)
	checkpoints := newMemCheckpoints()
	manager := NewManager(source, checkpoints)
	manager.SetLogf(func(string, ...any) {})

	proj := &fakeProjection{
		name:    "habit-list",
		handles: []event.Type{event.TypeHabitCreated, event.TypeHabitCompleted},
		failOn:  2,
	}
	if err := manager.Register(proj); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := manager.CatchUpProjection(context.Background(), "habit-list")
	if err == nil {
		t.Fatal("expected catch up to fail")
	}

	cp := checkpoints.saved["habit-list"]
	if cp.ErrorCount != 1 || cp.LastError == "" {
		t.Fatalf("checkpoint after failure = %+v, want recorded error", cp)
	}
	// The failing event stays ahead of the checkpoint so it is retried.
	if cp.LastEventNumber != 1 {
		t.Fatalf("checkpoint = %d, want 1", cp.LastEventNumber)
	}

	// A later successful run clears the recorded error.
	proj.failOn = 0
	if err := manager.CatchUpProjection(context.Background(), "habit-list"); err != nil {
		t.Fatalf("second catch up: %v", err)
	}
	cp = checkpoints.saved["habit-list"]
	if cp.ErrorCount != 0 || cp.LastError != "" || cp.LastEventNumber != 3 {
		t.Fatalf("checkpoint after recovery = %+v", cp)
	}
}

func TestCatchUpAllIsolatesFailures(t *testing.T) {
	source := journalOf(event.TypeHabitCreated, event.TypeHabitCompleted)
	checkpoints := newMemCheckpoints()
	manager := NewManager(source, checkpoints)
	manager.SetLogf(func(string, ...any) {})

	broken := &fakeProjection{
		name:    "broken",
		handles: []event.Type{event.TypeHabitCreated},
		failOn:  1,
	}
	healthy := &fakeProjection{
		name:    "healthy",
		handles: []event.Type{event.TypeHabitCompleted},
	}
	if err := manager.Register(broken); err != nil {
		t.Fatalf("register broken: %v", err)
	}
	if err := manager.Register(healthy); err != nil {
		t.Fatalf("register healthy: %v", err)
	}

	if err := manager.CatchUpAll(context.Background()); err == nil {
		t.Fatal("expected catch up all to surface the failure")
	}
	if len(healthy.applied) != 1 {
		t.Fatalf("healthy applied = %v, want one event", healthy.applied)
	}
}

func TestCatchUpIsSingleRunner(t *testing.T) {
	source := journalOf(event.TypeHabitCreated)
	checkpoints := newMemCheckpoints()
	manager := NewManager(source, checkpoints)

	proj := &fakeProjection{
		name:    "habit-list",
		handles: []event.Type{event.TypeHabitCreated},
	}
	// Re-entrant catch-up from inside Apply must be a no-op, not a deadlock.
	proj.onApply = func(ctx context.Context, evt event.Event) error {
		return manager.CatchUpProjection(ctx, "habit-list")
	}
	if err := manager.Register(proj); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := manager.CatchUpProjection(context.Background(), "habit-list"); err != nil {
		t.Fatalf("catch up: %v", err)
	}
	if len(proj.applied) != 1 {
		t.Fatalf("applied = %v, want one event", proj.applied)
	}
}

func TestResetProjection(t *testing.T) {
	source := journalOf(event.TypeHabitCreated, event.TypeHabitCompleted)
	checkpoints := newMemCheckpoints()
	manager := NewManager(source, checkpoints)

	proj := &fakeProjection{
		name:    "habit-list",
		handles: []event.Type{event.TypeHabitCreated, event.TypeHabitCompleted},
	}
	if err := manager.Register(proj); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := manager.CatchUpProjection(context.Background(), "habit-list"); err != nil {
		t.Fatalf("catch up: %v", err)
	}

	if err := manager.ResetProjection(context.Background(), "habit-list"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if proj.truncated != 1 {
		t.Fatalf("truncated = %d, want 1", proj.truncated)
	}
	if cp := checkpoints.saved["habit-list"]; cp.LastEventNumber != 0 {
		t.Fatalf("checkpoint = %d, want 0 after reset", cp.LastEventNumber)
	}

	if err := manager.RebuildProjection(context.Background(), "habit-list"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if len(proj.applied) != 2 {
		t.Fatalf("applied after rebuild = %v, want full replay", proj.applied)
	}
}

func TestResetUnknownProjection(t *testing.T) {
	manager := NewManager(journalOf(), newMemCheckpoints())

	err := manager.ResetProjection(context.Background(), "unknown")
	if apperrors.CodeOf(err) != apperrors.CodeProjectionNotRegistered {
		t.Fatalf("expected projection-not-registered code, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	manager := NewManager(journalOf(), newMemCheckpoints())

	proj := &fakeProjection{name: "habit-list", handles: []event.Type{event.TypeHabitCreated}}
	if err := manager.Register(proj); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := manager.Register(proj); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestStatusReportsLag(t *testing.T) {
	source := journalOf(event.TypeHabitCreated, event.TypeHabitCompleted, event.TypeHabitCompleted)
	checkpoints := newMemCheckpoints()
	checkpoints.saved["habit-list"] = storage.ProjectionCheckpoint{
		Name:            "habit-list",
		LastEventNumber: 1,
		ErrorCount:      2,
		LastError:       "apply failed",
	}
	manager := NewManager(source, checkpoints)

	if err := manager.Register(&fakeProjection{name: "habit-list", handles: []event.Type{event.TypeHabitCreated}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := manager.Register(&fakeProjection{name: "habit-analytics", handles: []event.Type{event.TypeHabitCreated}}); err != nil {
		t.Fatalf("register analytics: %v", err)
	}

	statuses, err := manager.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2", len(statuses))
	}
	if statuses[0].Name != "habit-analytics" || statuses[0].Lag != 3 {
		t.Fatalf("unexpected first status %+v", statuses[0])
	}
	if statuses[1].Name != "habit-list" || statuses[1].Lag != 2 || statuses[1].ErrorCount != 2 {
		t.Fatalf("unexpected second status %+v", statuses[1])
	}
}

func TestStatusUsesNotFoundCheckpointAsZero(t *testing.T) {
	manager := NewManager(journalOf(event.TypeHabitCreated), newMemCheckpoints())
	if err := manager.Register(&fakeProjection{name: "habit-list", handles: []event.Type{event.TypeHabitCreated}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	statuses, err := manager.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if statuses[0].LastEventNumber != 0 || statuses[0].Lag != 1 {
		t.Fatalf("unexpected status %+v", statuses[0])
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Fatal("missing checkpoint must not surface as an error")
	}
}

func TestHandledTypesMapsProjections(t *testing.T) {
	manager := NewManager(journalOf(), newMemCheckpoints())
	if err := manager.Register(&fakeProjection{
		name:    "habit-list",
		handles: []event.Type{event.TypeHabitCreated, event.TypeHabitCompleted},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := manager.Register(&fakeProjection{
		name:    "habit-analytics",
		handles: []event.Type{event.TypeHabitCreated},
	}); err != nil {
		t.Fatalf("register analytics: %v", err)
	}

	handled := manager.HandledTypes()
	if got := handled[event.TypeHabitCreated]; len(got) != 2 || got[0] != "habit-analytics" || got[1] != "habit-list" {
		t.Fatalf("habit.created projections = %v", got)
	}
	if got := handled[event.TypeHabitCompleted]; len(got) != 1 || got[0] != "habit-list" {
		t.Fatalf("habit.completed projections = %v", got)
	}
	if _, ok := handled[event.TypeHabitArchived]; ok {
		t.Fatal("unhandled type must be absent")
	}
}
