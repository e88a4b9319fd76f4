package application

import (
	"errors"
	"sort"
	"strings"

	"github.com/example/saturday/internal/persistence"
)

var (
	// ErrUnauthorized is returned when the caller has no valid identity.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrForbidden is returned when the caller may not act on the resource.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested resource does not exist or is outside the
	// caller's school.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute is taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrInvalidCredentials is returned for unknown accounts and wrong passwords alike.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrSchoolRequired is returned when an authenticated caller has not joined a school.
	ErrSchoolRequired = errors.New("application: school required")
	// ErrConflict is returned when the resource is not in a state that allows the operation.
	ErrConflict = errors.New("application: conflict")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message per field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func fieldError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}

// mapRepoError translates persistence sentinels into application errors.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConflict):
		return ErrConflict
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrNotFound
	}
	return err
}
