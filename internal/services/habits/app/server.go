// Package server wires the habits runtime: storage, buses, projections,
// cache, and the gRPC health lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wird-app/wird/internal/platform/cache"
	"github.com/wird-app/wird/internal/platform/config"
	"github.com/wird-app/wird/internal/platform/timeouts"
	"github.com/wird-app/wird/internal/services/habits/domain/command"
	"github.com/wird-app/wird/internal/services/habits/domain/event"
	"github.com/wird-app/wird/internal/services/habits/domain/habit"
	"github.com/wird-app/wird/internal/services/habits/domain/journal"
	"github.com/wird-app/wird/internal/services/habits/domain/plan"
	"github.com/wird-app/wird/internal/services/habits/domain/query"
	"github.com/wird-app/wird/internal/services/habits/eventbus"
	"github.com/wird-app/wird/internal/services/habits/handler"
	"github.com/wird-app/wird/internal/services/habits/projection"
	habitsqlite "github.com/wird-app/wird/internal/services/habits/storage/sqlite"
)

const healthServiceName = "wird.habits"

type serverEnv struct {
	DBPath        string        `env:"WIRD_HABITS_DB_PATH"`
	RedisAddr     string        `env:"WIRD_REDIS_ADDR"`
	RedisPassword string        `env:"WIRD_REDIS_PASSWORD"`
	QueryCacheTTL time.Duration `env:"WIRD_QUERY_CACHE_TTL"`
	CatchUpEvery  time.Duration `env:"WIRD_PROJECTION_CATCHUP_INTERVAL"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join("data", "habits.db")
	}
	if cfg.QueryCacheTTL <= 0 {
		cfg.QueryCacheTTL = 30 * time.Second
	}
	if cfg.CatchUpEvery <= 0 {
		cfg.CatchUpEvery = 15 * time.Second
	}
	return cfg
}

// Server hosts the habits runtime and its gRPC health lifecycle.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	store      *habitsqlite.Store
	redisConn  *redis.Client

	commands     *command.Bus
	queries      *query.Bus
	events       *eventbus.Bus
	projections  *projection.Manager
	queryOptions query.Options
	catchUpEvery time.Duration
}

// New creates a configured habits server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port))
}

// NewWithAddr creates a configured habits server for the provided address.
func NewWithAddr(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	env := loadServerEnv()
	server, err := build(env)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	server.listener = listener
	return server, nil
}

func build(env serverEnv) (*Server, error) {
	registry := event.NewRegistry()
	for _, register := range []func(*event.Registry) error{
		habit.RegisterEvents,
		plan.RegisterEvents,
		journal.RegisterEvents,
	} {
		if err := register(registry); err != nil {
			return nil, fmt.Errorf("register event types: %w", err)
		}
	}

	store, err := openHabitsStore(env.DBPath, registry)
	if err != nil {
		return nil, err
	}

	var redisConn *redis.Client
	var cacheService *cache.Service
	if strings.TrimSpace(env.RedisAddr) != "" {
		redisConn = redis.NewClient(&redis.Options{
			Addr:     env.RedisAddr,
			Password: env.RedisPassword,
		})
		cacheService = cache.New(redisConn, log.Printf)
	}

	bus := eventbus.New(store)
	manager := projection.NewManager(store, store)
	for _, p := range []projection.Projection{
		projection.NewHabitList(store),
		projection.NewHabitAnalytics(store),
	} {
		if err := manager.Register(p); err != nil {
			closeStore(store, redisConn)
			return nil, fmt.Errorf("register projection: %w", err)
		}
	}
	if err := wireLiveCatchUp(bus, manager); err != nil {
		closeStore(store, redisConn)
		return nil, err
	}

	commandBus := command.NewBus(log.Printf)
	if err := handler.RegisterCommandHandlers(commandBus, handler.Deps{
		Habits:  store,
		Plans:   store,
		Journal: store,
		Events:  bus,
	}); err != nil {
		closeStore(store, redisConn)
		return nil, fmt.Errorf("register command handlers: %w", err)
	}

	queryBus := query.NewBus(cacheService, log.Printf)
	if err := handler.RegisterQueryHandlers(queryBus, handler.QueryDeps{
		HabitList: store,
		Analytics: store,
		Events:    store,
	}); err != nil {
		closeStore(store, redisConn)
		return nil, fmt.Errorf("register query handlers: %w", err)
	}

	if cacheService != nil {
		if err := handler.RegisterCacheInvalidation(bus, cacheService); err != nil {
			closeStore(store, redisConn)
			return nil, fmt.Errorf("register cache invalidation: %w", err)
		}
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		grpcServer:  grpcServer,
		health:      healthServer,
		store:       store,
		redisConn:   redisConn,
		commands:    commandBus,
		queries:     queryBus,
		events:      bus,
		projections: manager,
		queryOptions: query.Options{
			Cache:    cacheService != nil,
			CacheTTL: env.QueryCacheTTL,
		},
		catchUpEvery: env.CatchUpEvery,
	}, nil
}

// wireLiveCatchUp subscribes every registered projection to the event types it
// handles so freshly published events are folded in without waiting for the
// periodic pass. Overlapping triggers collapse into the running pass.
func wireLiveCatchUp(bus *eventbus.Bus, manager *projection.Manager) error {
	// Subscribing per handled type keeps unrelated events from waking the
	// manager at all.
	for eventType, names := range manager.HandledTypes() {
		err := bus.Subscribe(eventType, "projection-catch-up", func(ctx context.Context, _ event.Event) error {
			ctx, cancel := context.WithTimeout(ctx, timeouts.ProjectionCatchUp)
			defer cancel()
			var firstErr error
			for _, name := range names {
				if err := manager.CatchUpProjection(ctx, name); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		})
		if err != nil {
			return fmt.Errorf("subscribe projection catch-up: %w", err)
		}
	}
	return nil
}

// Commands returns the command bus for in-process dispatch.
func (s *Server) Commands() *command.Bus { return s.commands }

// Queries returns the query bus for in-process dispatch.
func (s *Server) Queries() *query.Bus { return s.queries }

// QueryOptions returns the configured read-through cache options.
func (s *Server) QueryOptions() query.Options { return s.queryOptions }

// Events returns the event bus.
func (s *Server) Events() *eventbus.Bus { return s.events }

// Projections returns the projection manager.
func (s *Server) Projections() *projection.Manager { return s.projections }

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a habits server until context cancellation.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server and the projection catch-up loop until context
// cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go s.catchUpLoop(loopCtx)

	log.Printf("habits server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// catchUpLoop periodically advances every projection and refreshes the health
// status from the event store. It backstops the live bus-driven catch-up after
// crashes or missed deliveries.
func (s *Server) catchUpLoop(ctx context.Context) {
	ticker := time.NewTicker(s.catchUpEvery)
	defer ticker.Stop()

	runOnce := func() {
		passCtx, cancel := context.WithTimeout(ctx, timeouts.ProjectionCatchUp)
		defer cancel()
		if err := s.projections.CatchUpAll(passCtx); err != nil {
			log.Printf("projection catch-up: %v", err)
		}
		s.refreshHealth(passCtx)
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func (s *Server) refreshHealth(ctx context.Context) {
	if s.health == nil {
		return
	}
	status, err := s.store.HealthStatus(ctx)
	if err != nil || !status.IsHealthy {
		s.health.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.health.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

// Close releases habits server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	closeStore(s.store, s.redisConn)
}

func closeStore(store *habitsqlite.Store, redisConn *redis.Client) {
	if store != nil {
		if err := store.Close(); err != nil {
			log.Printf("close habits store: %v", err)
		}
	}
	if redisConn != nil {
		if err := redisConn.Close(); err != nil {
			log.Printf("close redis client: %v", err)
		}
	}
}

func openHabitsStore(path string, registry *event.Registry) (*habitsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := habitsqlite.Open(path, registry)
	if err != nil {
		return nil, fmt.Errorf("open habits sqlite store: %w", err)
	}
	return store, nil
}
