package domain

import (
	"errors"
	"fmt"
)

// CatalogErrorKind classifies catalog failures
type CatalogErrorKind int

const (
	CatalogNetwork CatalogErrorKind = iota
	CatalogNotFound
	CatalogMalformed
)

func (k CatalogErrorKind) String() string {
	switch k {
	case CatalogNetwork:
		return "network"
	case CatalogNotFound:
		return "not found"
	case CatalogMalformed:
		return "malformed response"
	default:
		return "unknown"
	}
}

// CatalogError is returned by catalog clients
type CatalogError struct {
	Kind CatalogErrorKind
	Op   string
	Err  error
}

func (e *CatalogError) Error() string {
	return formatError("catalog", e.Op, e.Kind.String(), e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// Is matches any CatalogError of the same kind
func (e *CatalogError) Is(target error) bool {
	t, ok := target.(*CatalogError)
	return ok && t.Kind == e.Kind
}

// StoreErrorKind classifies durable store failures
type StoreErrorKind int

const (
	StoreIOFailure StoreErrorKind = iota
	StoreConstraintViolation
)

func (k StoreErrorKind) String() string {
	switch k {
	case StoreIOFailure:
		return "i/o failure"
	case StoreConstraintViolation:
		return "constraint violation"
	default:
		return "unknown"
	}
}

// StoreError is returned by the durable store
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	return formatError("store", e.Op, e.Kind.String(), e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is matches any StoreError of the same kind
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	return ok && t.Kind == e.Kind
}

// EngineErrorKind classifies audio engine failures
type EngineErrorKind int

const (
	EngineConnectionLost EngineErrorKind = iota
	EngineUnsupportedMedia
	EngineInternal
)

func (k EngineErrorKind) String() string {
	switch k {
	case EngineConnectionLost:
		return "connection lost"
	case EngineUnsupportedMedia:
		return "unsupported media"
	case EngineInternal:
		return "internal error"
	default:
		return "unknown"
	}
}

// EngineError is returned by engine adapters and attached to the session
type EngineError struct {
	Kind EngineErrorKind
	Op   string
	Err  error
}

func (e *EngineError) Error() string {
	return formatError("engine", e.Op, e.Kind.String(), e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Is matches any EngineError of the same kind
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Kind == e.Kind
}

// ValidationErrorKind classifies rejected input
type ValidationErrorKind int

const (
	InvalidSpeed ValidationErrorKind = iota
	InvalidSeekTarget
)

func (k ValidationErrorKind) String() string {
	switch k {
	case InvalidSpeed:
		return "invalid speed"
	case InvalidSeekTarget:
		return "invalid seek target"
	default:
		return "invalid input"
	}
}

// ValidationError rejects input at the call boundary. It never reaches the engine.
type ValidationError struct {
	Kind  ValidationErrorKind
	Value float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Value)
}

// Is matches any ValidationError of the same kind
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrCatalogNetwork   = &CatalogError{Kind: CatalogNetwork}
	ErrCatalogNotFound  = &CatalogError{Kind: CatalogNotFound}
	ErrCatalogMalformed = &CatalogError{Kind: CatalogMalformed}

	ErrStoreIO         = &StoreError{Kind: StoreIOFailure}
	ErrStoreConstraint = &StoreError{Kind: StoreConstraintViolation}

	ErrConnectionLost   = &EngineError{Kind: EngineConnectionLost}
	ErrUnsupportedMedia = &EngineError{Kind: EngineUnsupportedMedia}
	ErrEngineInternal   = &EngineError{Kind: EngineInternal}

	ErrInvalidSpeed      = &ValidationError{Kind: InvalidSpeed}
	ErrInvalidSeekTarget = &ValidationError{Kind: InvalidSeekTarget}

	// ErrNotFound indicates a point lookup found no row
	ErrNotFound = errors.New("not found")

	// ErrClosed indicates the component has been shut down
	ErrClosed = errors.New("closed")
)

func formatError(component, op, kind string, err error) string {
	msg := component + ": " + kind
	if op != "" {
		msg = component + " " + op + ": " + kind
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	return msg
}
