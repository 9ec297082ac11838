package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrStreamIDRequired indicates a missing stream id.
	ErrStreamIDRequired = errors.New("stream id is required")
	// ErrUserIDRequired indicates a missing user id.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrTypeUnknown indicates an unregistered event type.
	ErrTypeUnknown = errors.New("event type is not registered")
	// ErrStreamTypeMismatch indicates an event carrying the wrong stream type.
	ErrStreamTypeMismatch = errors.New("stream type does not match event definition")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
)

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for an event type.
type Definition struct {
	Type            Type
	StreamType      string
	ValidatePayload PayloadValidator
}

// Registry stores event definitions and validates events before append.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new event type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	def.StreamType = strings.TrimSpace(def.StreamType)
	if def.StreamType == "" {
		return fmt.Errorf("event %s: stream type is required", def.Type)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("event %s: %w", def.Type, errors.New("already registered"))
	}
	r.definitions[def.Type] = def
	return nil
}

// Types returns the registered event types in sorted order.
func (r *Registry) Types() []Type {
	if r == nil {
		return nil
	}
	types := make([]Type, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ValidateForAppend checks the envelope against the registered definition and
// returns the event with normalized fields. Storage calls this before every
// append so malformed events never reach the journal.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	if r == nil {
		return Event{}, errors.New("registry is required")
	}
	evt.StreamID = strings.TrimSpace(evt.StreamID)
	if evt.StreamID == "" {
		return Event{}, ErrStreamIDRequired
	}
	evt.UserID = strings.TrimSpace(evt.UserID)
	if evt.UserID == "" {
		return Event{}, ErrUserIDRequired
	}
	if !evt.Type.IsValid() {
		return Event{}, ErrTypeRequired
	}
	def, ok := r.definitions[evt.Type]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrTypeUnknown, evt.Type)
	}
	if evt.StreamType == "" {
		evt.StreamType = def.StreamType
	}
	if evt.StreamType != def.StreamType {
		return Event{}, fmt.Errorf("%w: %s", ErrStreamTypeMismatch, evt.StreamType)
	}
	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte(`{}`)
	}
	if !json.Valid(evt.PayloadJSON) {
		return Event{}, ErrPayloadInvalid
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(evt.PayloadJSON); err != nil {
			return Event{}, fmt.Errorf("event %s payload: %w", evt.Type, err)
		}
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	evt.OccurredAt = evt.OccurredAt.UTC().Truncate(time.Millisecond)
	return evt, nil
}
