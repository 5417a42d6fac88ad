package constants

import "errors"

// Model and property errors
var (
	ErrUndeclaredProperty = errors.New("property wasn't declared")
	ErrInvalidValue       = errors.New("invalid property value")
	ErrUnknownType        = errors.New("unknown model type")
	ErrImmutableID        = errors.New("'id' attribute is immutable")
	ErrMissingField       = errors.New("attempted to retrieve property array for nonexistent field")
)

// Document errors
var (
	ErrOwnershipViolation = errors.New("models must be owned by only a single document")
	ErrAmbiguousName      = errors.New("multiple models match the given name")
	ErrSelfMove           = errors.New("attempted to overwrite a document with itself")
	ErrForeignEvent       = errors.New("cannot create a patch using events from a different document")
)

// Patch errors
var (
	ErrUnresolvedReference = errors.New("reference isn't known (not in document?)")
	ErrUnknownTarget       = errors.New("event target is not in the document")
	ErrUnknownEventKind    = errors.New("unknown patch event")
	ErrNotDataBearing      = errors.New("event target cannot accept column data")
	ErrRootsChanged        = errors.New("not implemented: computing add/remove of document roots")
	ErrMalformedPatch      = errors.New("malformed patch")
)

// Transport errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrQueueFull        = errors.New("outbound queue full")
	ErrUnknownCodec     = errors.New("unknown codec")
)
