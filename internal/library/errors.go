package library

import (
	"errors"
	"fmt"

	"github.com/bookworm-app/bookworm/internal/database"
)

var (
	// ErrValidation marks input that can never succeed as given.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a lookup the operation could not proceed without.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a write that collides with an existing record.
	ErrConflict = errors.New("conflict")
)

// EntityError carries the kind and id of the entity an error relates to
// through error chains.
type EntityError struct {
	Err    error
	Entity string
	ID     string
}

// Error implements the error interface
func (e *EntityError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Err.Error())
}

// Unwrap returns the underlying error
func (e *EntityError) Unwrap() error {
	return e.Err
}

// WithEntity wraps err with the entity kind and id.
func WithEntity(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	return &EntityError{Err: err, Entity: entity, ID: id}
}

// EntityID returns the id carried by an EntityError in err's chain.
func EntityID(err error) (string, bool) {
	var entityErr *EntityError
	if errors.As(err, &entityErr) {
		return entityErr.ID, entityErr.ID != ""
	}
	return "", false
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundError(entity, id string) error {
	return WithEntity(ErrNotFound, entity, id)
}

// conflictError maps persistence duplicate-key errors onto ErrConflict.
func conflictError(err error, entity, id string) error {
	if errors.Is(err, database.ErrDuplicate) {
		return WithEntity(fmt.Errorf("%w: %v", ErrConflict, err), entity, id)
	}
	return WithEntity(err, entity, id)
}
