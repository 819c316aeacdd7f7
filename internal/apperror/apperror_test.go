// Run with: go test ./internal/apperror/ -v
package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	driverErr := errors.New("database is locked")

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("entry", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("file", "file is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("profile", "username taken"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "AlreadyExists wraps ErrAlreadyExists",
			err:       AlreadyExists("entry"),
			target:    ErrAlreadyExists,
			wantMatch: true,
		},
		{
			name:      "AlreadyExists is a conflict",
			err:       AlreadyExists("entry"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "AlreadyVoted is a conflict",
			err:       AlreadyVoted("e1"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "AlreadyVoted is not AlreadyExists",
			err:       AlreadyVoted("e1"),
			target:    ErrAlreadyExists,
			wantMatch: false,
		},
		{
			name:      "Storage wraps ErrStorage",
			err:       Storage("creating entry", driverErr),
			target:    ErrStorage,
			wantMatch: true,
		},
		{
			name:      "Storage keeps the cause",
			err:       Storage("creating entry", driverErr),
			target:    driverErr,
			wantMatch: true,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("voting: %w", AlreadyVoted("e1")),
			target:    ErrAlreadyVoted,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("entry", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("entry", "abc123"),
			wantMessage: "entry not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("file", "file is required"),
			wantMessage: "file is required",
		},
		{
			name:        "Conflict message includes resource",
			err:         Conflict("profile", "username taken"),
			wantMessage: "profile conflict: username taken",
		},
		{
			name:        "Storage message includes the cause",
			err:         Storage("listing entries", errors.New("disk I/O error")),
			wantMessage: "listing entries: disk I/O error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "app error message", err: AlreadyVoted("e1"), want: "already voted for entry e1"},
		{name: "storage cause is hidden", err: Storage("creating entry", errors.New("SQL logic error near INSERT")), want: "An internal error occurred"},
		{name: "plain error is hidden", err: errors.New("boom"), want: "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PublicMessage(tt.err); got != tt.want {
				t.Errorf("PublicMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("country", "unknown country code")

	if err.Field != "country" {
		t.Errorf("Field = %q, want %q", err.Field, "country")
	}
}
