package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wird-app/wird/internal/platform/cache"
	apperrors "github.com/wird-app/wird/internal/platform/errors"
)

// Handler executes one query type. Handlers must return pointer results so
// cache hits and handler calls yield the same dynamic type.
type Handler interface {
	Handle(ctx context.Context, q Query) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, q Query) (any, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, q Query) (any, error) {
	return f(ctx, q)
}

// Cache is the slice of the cache service the query path consumes. Both
// methods are fail-open; a broken cache looks like a permanent miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
}

// Definition binds a query type to its handler and the constructor used to
// decode cached results back into the handler's result type.
type Definition struct {
	Type    Type
	Handler Handler
	// NewResult returns a pointer to a zero value of the handler's result
	// type. Required when the query is served through the cache.
	NewResult func() any
}

// Bus routes queries to their single registered handler, transparently serving
// repeat reads from the cache when the caller opts in.
type Bus struct {
	definitions map[Type]Definition
	cache       Cache
	logf        func(format string, args ...any)
}

// NewBus creates a query bus. The cache may be nil, which disables the
// read-through path entirely.
func NewBus(cacheService Cache, logf func(format string, args ...any)) *Bus {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Bus{
		definitions: make(map[Type]Definition),
		cache:       cacheService,
		logf:        logf,
	}
}

// Register binds a definition to a query type. Duplicate registration is a
// startup-time configuration error.
func (b *Bus) Register(def Definition) error {
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if !def.Type.IsValid() {
		return apperrors.New(apperrors.CodeValidation, "query type is required")
	}
	if def.Handler == nil {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("query %s: handler is required", def.Type))
	}
	if _, exists := b.definitions[def.Type]; exists {
		return apperrors.New(apperrors.CodeHandlerAlreadyRegistered,
			fmt.Sprintf("query %s already has a handler", def.Type))
	}
	b.definitions[def.Type] = def
	return nil
}

// RegisteredTypes returns the registered query types in sorted order.
func (b *Bus) RegisteredTypes() []Type {
	types := make([]Type, 0, len(b.definitions))
	for t := range b.definitions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Dispatch serves the query. With caching enabled, a hit returns the decoded
// cached value without invoking the handler; a miss invokes the handler and
// populates the cache with the configured TTL. Cache failures of any kind
// degrade to a plain handler call.
func (b *Bus) Dispatch(ctx context.Context, q Query, opts Options) (result any, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	def, ok := b.definitions[q.Type]
	if !ok {
		return nil, apperrors.New(apperrors.CodeHandlerNotRegistered,
			fmt.Sprintf("no handler registered for query %s", q.Type))
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			b.logf("query %s handler panic: %v", q.Type, recovered)
			result = nil
			err = apperrors.New(apperrors.CodeInternal,
				fmt.Sprintf("query %s failed unexpectedly", q.Type))
		}
	}()

	useCache := opts.Cache && b.cache != nil && def.NewResult != nil
	var key string
	if useCache {
		key = cache.QueryKey(string(q.Type), q.UserID, q.PayloadJSON)
		if raw, hit := b.cache.Get(ctx, key); hit {
			value := def.NewResult()
			if unmarshalErr := json.Unmarshal(raw, value); unmarshalErr == nil {
				return value, nil
			}
			// A corrupt entry falls through to the handler and gets
			// overwritten below.
			b.logf("query %s: discarding undecodable cache entry", q.Type)
		}
	}

	result, err = def.Handler.Handle(ctx, q)
	if err != nil {
		return nil, err
	}

	if useCache {
		raw, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			b.logf("query %s: result not cacheable: %v", q.Type, marshalErr)
			return result, nil
		}
		b.cache.Set(ctx, key, raw, opts.CacheTTL)
	}
	return result, nil
}
