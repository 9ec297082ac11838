package command

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/wird-app/wird/internal/platform/errors"
)

// Handler executes one command type. Expected business failures come back as
// coded domain errors; only programming errors may panic, and the bus converts
// those to internal errors at the boundary.
type Handler interface {
	Handle(ctx context.Context, cmd Command) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, cmd Command) (any, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (any, error) {
	return f(ctx, cmd)
}

// Bus routes a command to exactly one registered handler. Registration happens
// at startup; Dispatch is safe for concurrent use afterwards.
type Bus struct {
	handlers map[Type]Handler
	logf     func(format string, args ...any)
}

// NewBus creates an empty command bus. The logf hook receives recovered
// handler panics; pass nil to discard them.
func NewBus(logf func(format string, args ...any)) *Bus {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Bus{
		handlers: make(map[Type]Handler),
		logf:     logf,
	}
}

// Register binds a handler to a command type. Registering a second handler for
// the same type is a startup-time configuration error.
func (b *Bus) Register(commandType Type, handler Handler) error {
	commandType = Type(strings.TrimSpace(string(commandType)))
	if !commandType.IsValid() {
		return apperrors.New(apperrors.CodeValidation, "command type is required")
	}
	if handler == nil {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("command %s: handler is required", commandType))
	}
	if _, exists := b.handlers[commandType]; exists {
		return apperrors.New(apperrors.CodeHandlerAlreadyRegistered,
			fmt.Sprintf("command %s already has a handler", commandType))
	}
	b.handlers[commandType] = handler
	return nil
}

// RegisteredTypes returns the registered command types in sorted order.
func (b *Bus) RegisteredTypes() []Type {
	types := make([]Type, 0, len(b.handlers))
	for t := range b.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Dispatch invokes the single handler for the command's type synchronously
// within the calling context. No caching, no retries.
func (b *Bus) Dispatch(ctx context.Context, cmd Command) (result any, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handler, ok := b.handlers[cmd.Type]
	if !ok {
		return nil, apperrors.New(apperrors.CodeHandlerNotRegistered,
			fmt.Sprintf("no handler registered for command %s", cmd.Type))
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			b.logf("command %s handler panic: %v", cmd.Type, recovered)
			result = nil
			err = apperrors.New(apperrors.CodeInternal,
				fmt.Sprintf("command %s failed unexpectedly", cmd.Type))
		}
	}()

	return handler.Handle(ctx, cmd)
}
