package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "missing source object",
			err:         fmt.Errorf("%w: b/uploaded/x.csv: object not found", ErrSourceUnavailable),
			wantCode:    "FILE001",
			wantMessage: "The uploaded file could not be found",
		},
		{
			name:        "malformed csv",
			err:         fmt.Errorf("%w: empty file", ErrMalformedFile),
			wantCode:    "FILE002",
			wantMessage: "File is not a valid CSV",
		},
		{
			name:     "enqueue wrapped twice",
			err:      fmt.Errorf("parse: %w", fmt.Errorf("%w at line 4: dial tcp: connection refused", ErrEnqueue)),
			wantCode: "QUE001",
		},
		{
			name:     "sentinel wins over text pattern",
			err:      fmt.Errorf("%w: p-1 violates unique", ErrProductExists),
			wantCode: "DB001",
		},
		{
			name:        "connection refused",
			err:         errors.New("dial tcp 127.0.0.1:5432: connection refused"),
			wantCode:    "DB002",
			wantMessage: "Unable to connect to a backing service",
		},
		{
			name:     "check constraint",
			err:      errors.New(`new row for relation "stocks" violates check constraint`),
			wantCode: "DB003",
		},
		{
			name:     "deadline",
			err:      fmt.Errorf("open: %w", context.DeadlineExceeded),
			wantCode: "UPL004",
		},
		{
			name:        "missing upload name",
			err:         errors.New("File name is required"),
			wantCode:    "UPL001",
			wantMessage: "File name is required",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.wantMessage != "" && got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("Rate limit exceeded"))

	expected := "Too many requests (Code: RATE001). Please wait a moment before trying again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"sentinel is user facing", ErrMalformedFile, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("%w: header has none of title, description, price", ErrMalformedFile)
		userErr := NewUserError(techErr)

		if userErr.Error() != "File is not a valid CSV" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, ErrMalformedFile) {
			t.Error("Unwrap() should expose the sentinel")
		}
	})
}
