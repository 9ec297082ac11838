package projection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
	"github.com/wird-app/wird/internal/services/habits/storage"
)

const defaultPageSize = 100

// Projection consumes journal events and maintains one read model.
type Projection interface {
	// Name identifies the projection; it keys the checkpoint row.
	Name() string
	// Handles returns the event types this projection applies.
	Handles() []event.Type
	// Apply folds one event into the read model. Apply must be idempotent
	// for redelivery during catch-up.
	Apply(ctx context.Context, evt event.Event) error
	// Truncate clears the read model ahead of a full rebuild.
	Truncate(ctx context.Context) error
}

// EventSource is the journal read surface the manager pages through.
type EventSource interface {
	ListEventsAfter(ctx context.Context, afterNumber uint64, limit int) ([]event.Event, error)
	LatestEventNumber(ctx context.Context) (uint64, error)
}

// Status reports one projection's position relative to the journal head.
type Status struct {
	Name            string
	LastEventNumber uint64
	Lag             uint64
	LastProcessedAt time.Time
	ErrorCount      int
	LastError       string
	Running         bool
}

type registered struct {
	projection Projection
	handles    map[event.Type]bool

	mu      sync.Mutex
	running bool
}

func (r *registered) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *registered) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *registered) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Manager drives registered projections through the journal: catch-up after
// restart, incremental advance during live publishing, and full rebuilds.
type Manager struct {
	source      EventSource
	checkpoints storage.CheckpointStore
	logf        func(format string, args ...any)
	pageSize    int

	mu          sync.RWMutex
	projections map[string]*registered
}

// NewManager creates a Manager over the provided journal source and
// checkpoint store.
func NewManager(source EventSource, checkpoints storage.CheckpointStore) *Manager {
	return &Manager{
		source:      source,
		checkpoints: checkpoints,
		logf:        log.Printf,
		pageSize:    defaultPageSize,
		projections: make(map[string]*registered),
	}
}

// SetLogf overrides the manager logger. Used by tests.
func (m *Manager) SetLogf(logf func(format string, args ...any)) {
	if m == nil || logf == nil {
		return
	}
	m.logf = logf
}

// Register adds a projection. Names must be unique.
func (m *Manager) Register(p Projection) error {
	if m == nil {
		return fmt.Errorf("projection manager is required")
	}
	if p == nil {
		return fmt.Errorf("projection is required")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return fmt.Errorf("projection name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.projections[name]; exists {
		return fmt.Errorf("projection %s is already registered", name)
	}
	handles := make(map[event.Type]bool, len(p.Handles()))
	for _, t := range p.Handles() {
		handles[t] = true
	}
	m.projections[name] = &registered{projection: p, handles: handles}
	return nil
}

// AllProjections returns the registered projection names in sorted order.
func (m *Manager) AllProjections() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.projections))
	for name := range m.projections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandledTypes maps each subscribed event type to the sorted names of the
// projections that handle it.
func (m *Manager) HandledTypes() map[event.Type][]string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[event.Type][]string)
	for name, reg := range m.projections {
		for eventType := range reg.handles {
			out[eventType] = append(out[eventType], name)
		}
	}
	for eventType := range out {
		sort.Strings(out[eventType])
	}
	return out
}

// CatchUpAll advances every projection to the journal head. Projections run
// concurrently and independently: one failing projection does not stop the
// others. The first error is returned after all projections finish.
func (m *Manager) CatchUpAll(ctx context.Context) error {
	var g errgroup.Group
	for _, name := range m.AllProjections() {
		g.Go(func() error {
			return m.CatchUpProjection(ctx, name)
		})
	}
	return g.Wait()
}

// CatchUpProjection advances one projection to the journal head. If the
// projection is already catching up the call is a no-op, so overlapping
// triggers from live publishes and the ticker never double-apply.
func (m *Manager) CatchUpProjection(ctx context.Context, name string) error {
	reg, err := m.lookup(name)
	if err != nil {
		return err
	}
	if !reg.tryAcquire() {
		return nil
	}
	defer reg.release()

	return m.run(ctx, reg)
}

// run pages through the journal from the projection's checkpoint, applying
// handled events and committing the checkpoint after each page. Unhandled
// event types still advance the checkpoint so a projection never re-scans
// events it will never apply.
func (m *Manager) run(ctx context.Context, reg *registered) error {
	name := reg.projection.Name()

	cp, err := m.checkpoints.GetCheckpoint(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		cp = storage.ProjectionCheckpoint{Name: name}
	} else if err != nil {
		return fmt.Errorf("load checkpoint %s: %w", name, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, err := m.source.ListEventsAfter(ctx, cp.LastEventNumber, m.pageSize)
		if err != nil {
			return fmt.Errorf("list events for %s: %w", name, err)
		}
		if len(events) == 0 {
			return nil
		}

		for _, evt := range events {
			if reg.handles[evt.Type] {
				if err := reg.projection.Apply(ctx, evt); err != nil {
					cp.ErrorCount++
					cp.LastError = err.Error()
					cp.LastProcessedAt = time.Now().UTC()
					if saveErr := m.checkpoints.SaveCheckpoint(ctx, cp); saveErr != nil {
						m.logf("projection: save checkpoint %s after failure: %v", name, saveErr)
					}
					m.logf("projection: %s failed applying %s #%d: %v", name, evt.Type, evt.Number, err)
					return fmt.Errorf("projection %s apply %s #%d: %w", name, evt.Type, evt.Number, err)
				}
			}
			cp.LastEventNumber = evt.Number
		}

		cp.LastProcessedAt = time.Now().UTC()
		cp.ErrorCount = 0
		cp.LastError = ""
		if err := m.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
			return fmt.Errorf("save checkpoint %s: %w", name, err)
		}
	}
}

// ResetProjection truncates a projection's read model and rewinds its
// checkpoint to zero. The next catch-up replays the full journal.
func (m *Manager) ResetProjection(ctx context.Context, name string) error {
	reg, err := m.lookup(name)
	if err != nil {
		return err
	}
	if !reg.tryAcquire() {
		return fmt.Errorf("projection %s is catching up, retry reset later", name)
	}
	defer reg.release()

	if err := reg.projection.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate projection %s: %w", name, err)
	}
	cp := storage.ProjectionCheckpoint{
		Name:            name,
		LastProcessedAt: time.Now().UTC(),
	}
	if err := m.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		return fmt.Errorf("reset checkpoint %s: %w", name, err)
	}
	return nil
}

// RebuildProjection resets a projection and immediately replays the journal.
func (m *Manager) RebuildProjection(ctx context.Context, name string) error {
	if err := m.ResetProjection(ctx, name); err != nil {
		return err
	}
	return m.CatchUpProjection(ctx, name)
}

// Status reports every projection's checkpoint and lag behind the journal
// head, ordered by name.
func (m *Manager) Status(ctx context.Context) ([]Status, error) {
	latest, err := m.source.LatestEventNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest event number: %w", err)
	}

	var statuses []Status
	for _, name := range m.AllProjections() {
		reg, err := m.lookup(name)
		if err != nil {
			return nil, err
		}

		cp, err := m.checkpoints.GetCheckpoint(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			cp = storage.ProjectionCheckpoint{Name: name}
		} else if err != nil {
			return nil, fmt.Errorf("load checkpoint %s: %w", name, err)
		}

		status := Status{
			Name:            name,
			LastEventNumber: cp.LastEventNumber,
			LastProcessedAt: cp.LastProcessedAt,
			ErrorCount:      cp.ErrorCount,
			LastError:       cp.LastError,
			Running:         reg.isRunning(),
		}
		if latest > cp.LastEventNumber {
			status.Lag = latest - cp.LastEventNumber
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (m *Manager) lookup(name string) (*registered, error) {
	name = strings.TrimSpace(name)
	m.mu.RLock()
	reg, ok := m.projections[name]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeProjectionNotRegistered,
			fmt.Sprintf("Projection not found: %s", name),
			map[string]string{"projection": name})
	}
	return reg, nil
}
