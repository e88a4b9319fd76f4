package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrConstraintViolation is returned for CHECK and NOT NULL failures or invalid input.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrConflict is returned when a conditional update finds the record in another state.
	ErrConflict = errors.New("persistence: conflicting state")
)
