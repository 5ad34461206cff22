package factory

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors matched by the typed errors below.
var (
	// ErrMissingContext is returned when a construction context lacks a required key.
	ErrMissingContext = errors.New("factory: missing required context")

	// ErrNotImplemented is returned when a definition has neither an entity
	// constructor nor an overridden Entity hook.
	ErrNotImplemented = errors.New("factory: entity hook not implemented")

	// ErrMissingCollaborator is returned when a factory must persist or resolve
	// related factories without a bound data source or client.
	ErrMissingCollaborator = errors.New("factory: missing collaborator")

	// ErrUnknownAttribute is returned when an override names an attribute the
	// entity type does not declare.
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrAttributeType is returned when an override value is not assignable
	// to the attribute type.
	ErrAttributeType = errors.New("value not assignable")

	// ErrDepthExceeded is returned when nested factory resolution goes deeper
	// than the configured limit.
	ErrDepthExceeded = errors.New("factory: nesting depth exceeded")
)

// MissingContextError reports the first unsatisfied context requirement.
type MissingContextError struct {
	Entity string
	// Keys holds the missing keys. For an any-of requirement it holds the
	// whole group, none of which was present.
	Keys []string
	// Any is set when the requirement was satisfied by any single key.
	Any bool
}

// Error returns the error string.
func (e *MissingContextError) Error() string {
	var sb strings.Builder
	sb.WriteString("factory: ")
	if e.Entity != "" {
		sb.WriteString(e.Entity)
		sb.WriteString(": ")
	}
	switch {
	case e.Any:
		fmt.Fprintf(&sb, "context requires one of %s", quoteKeys(e.Keys))
	case len(e.Keys) == 1:
		fmt.Fprintf(&sb, "context key %q is required", e.Keys[0])
	default:
		fmt.Fprintf(&sb, "context keys %s are required", quoteKeys(e.Keys))
	}
	return sb.String()
}

// Is reports whether the target error matches MissingContextError.
func (e *MissingContextError) Is(err error) bool {
	return err == ErrMissingContext
}

// IsMissingContext returns true if the error is a MissingContextError.
func IsMissingContext(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingContextError
	return errors.As(err, &e) || errors.Is(err, ErrMissingContext)
}

// NotImplementedError represents a misconfigured definition.
type NotImplementedError struct {
	Entity string
}

// Error returns the error string.
func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("factory: %s: no entity constructor configured and Entity hook not implemented", e.Entity)
}

// Is reports whether the target error matches NotImplementedError.
func (e *NotImplementedError) Is(err error) bool {
	return err == ErrNotImplemented
}

// IsNotImplemented returns true if the error is a NotImplementedError.
func IsNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var e *NotImplementedError
	return errors.As(err, &e) || errors.Is(err, ErrNotImplemented)
}

// MissingCollaboratorError is returned when an operation needs a data source
// or a client that was never bound.
type MissingCollaboratorError struct {
	Entity       string
	Op           string // "persist" or "resolve"
	Collaborator string // "data source" or "client"
}

// Error returns the error string.
func (e *MissingCollaboratorError) Error() string {
	return fmt.Sprintf("factory: %s %s: no %s bound", e.Op, e.Entity, e.Collaborator)
}

// Is reports whether the target error matches MissingCollaboratorError.
func (e *MissingCollaboratorError) Is(err error) bool {
	return err == ErrMissingCollaborator
}

// IsMissingCollaborator returns true if the error is a MissingCollaboratorError.
func IsMissingCollaborator(err error) bool {
	if err == nil {
		return false
	}
	var e *MissingCollaboratorError
	return errors.As(err, &e) || errors.Is(err, ErrMissingCollaborator)
}

// AttributeError reports an override that cannot be applied.
type AttributeError struct {
	Entity string // Entity type
	Name   string // Attribute name as given by the caller
	Err    error  // ErrUnknownAttribute or ErrAttributeType, possibly wrapped
}

// Error returns the error string.
func (e *AttributeError) Error() string {
	return fmt.Sprintf("factory: %s.%s: %v", e.Entity, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *AttributeError) Unwrap() error {
	return e.Err
}

// IsAttributeError returns true if the error is an AttributeError.
func IsAttributeError(err error) bool {
	if err == nil {
		return false
	}
	var e *AttributeError
	return errors.As(err, &e)
}

// DepthError is returned by the recursion guard.
type DepthError struct {
	Entity string
	Limit  int
}

// Error returns the error string.
func (e *DepthError) Error() string {
	return fmt.Sprintf("factory: building %s: nesting depth exceeded limit %d (cyclic factory definitions?)", e.Entity, e.Limit)
}

// Is reports whether the target error matches DepthError.
func (e *DepthError) Is(err error) bool {
	return err == ErrDepthExceeded
}

// IsDepthExceeded returns true if the error is a DepthError.
func IsDepthExceeded(err error) bool {
	if err == nil {
		return false
	}
	var e *DepthError
	return errors.As(err, &e) || errors.Is(err, ErrDepthExceeded)
}

func quoteKeys(keys []string) string {
	q := make([]string, len(keys))
	for i, k := range keys {
		q[i] = fmt.Sprintf("%q", k)
	}
	return "[" + strings.Join(q, ", ") + "]"
}
