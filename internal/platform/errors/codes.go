// Package errors provides structured, machine-readable error handling for the
// wird services. Expected business failures carry a Code so transport layers
// and tests can branch on the kind of failure instead of matching strings.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeValidation indicates malformed or missing input.
	CodeValidation Code = "VALIDATION"

	// CodeNotFound indicates a requested record or aggregate is missing.
	CodeNotFound Code = "NOT_FOUND"

	// CodeUnauthorized indicates an ownership mismatch between the caller
	// and the aggregate being operated on.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeConflict indicates a domain rule violation, such as completing
	// the same habit twice on the same day.
	CodeConflict Code = "CONFLICT"

	// CodeStorage indicates an I/O failure in the event store, a read
	// model store, or an aggregate repository.
	CodeStorage Code = "STORAGE"

	// CodeHandlerNotRegistered indicates a command or query type was
	// dispatched without a registered handler. This is a wiring defect,
	// not a runtime condition callers should retry.
	CodeHandlerNotRegistered Code = "HANDLER_NOT_REGISTERED"

	// CodeHandlerAlreadyRegistered indicates a second handler registration
	// for a command or query type at startup.
	CodeHandlerAlreadyRegistered Code = "HANDLER_ALREADY_REGISTERED"

	// CodeProjectionNotRegistered indicates a projection name that the
	// projection manager does not own.
	CodeProjectionNotRegistered Code = "PROJECTION_NOT_REGISTERED"

	// CodeInternal represents a programming error recovered at a bus
	// boundary and converted to a generic server error.
	CodeInternal Code = "INTERNAL"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidation:
		return codes.InvalidArgument
	case CodeNotFound, CodeProjectionNotRegistered:
		return codes.NotFound
	case CodeUnauthorized:
		return codes.PermissionDenied
	case CodeConflict:
		return codes.FailedPrecondition
	case CodeStorage:
		return codes.Unavailable
	case CodeHandlerNotRegistered, CodeHandlerAlreadyRegistered:
		return codes.FailedPrecondition
	case CodeInternal, CodeUnknown:
		return codes.Internal
	default:
		return codes.Internal
	}
}
