package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/saturday/internal/persistence"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withFields := &ValidationError{FieldErrors: map[string]string{"username": "taken", "email": "invalid"}}
	if got := withFields.Error(); got != "validation failed: email, username" {
		t.Fatalf("expected sorted field list, got %q", got)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if (&ValidationError{}).HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}
	if !fieldError("field", "bad").HasErrors() {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	base.add("first", "ignored")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected first message to win, got %q", got)
	}

	base.merge(&ValidationError{FieldErrors: map[string]string{"second": "another"}})
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	unexpected := errors.New("boom")
	tests := map[string]struct {
		err      error
		expected error
	}{
		"nil":           {err: nil, expected: nil},
		"not found":     {err: persistence.ErrNotFound, expected: ErrNotFound},
		"wrapped":       {err: fmt.Errorf("lookup: %w", persistence.ErrNotFound), expected: ErrNotFound},
		"duplicate":     {err: persistence.ErrDuplicate, expected: ErrAlreadyExists},
		"conflict":      {err: persistence.ErrConflict, expected: ErrConflict},
		"missing ref":   {err: persistence.ErrForeignKeyViolation, expected: ErrNotFound},
		"unexpected":    {err: unexpected, expected: unexpected},
		"already local": {err: ErrForbidden, expected: ErrForbidden},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			result := mapRepoError(tc.err)
			if tc.expected == nil {
				if result != nil {
					t.Fatalf("expected nil, got %v", result)
				}
				return
			}
			if !errors.Is(result, tc.expected) {
				t.Fatalf("expected %v, got %v", tc.expected, result)
			}
		})
	}
}
