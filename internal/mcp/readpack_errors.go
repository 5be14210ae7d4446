package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/contextfinder/contextfinder/internal/cursor"
	"github.com/contextfinder/contextfinder/internal/router"
)

// ReadPackErrorCode is one of the seven stable, string-typed error kinds
// the read-pack tool surface reports — distinct from the legacy numeric
// MCPError codes used by the original search/search_code/search_docs/
// index_status tools, since callers match on these strings, not numbers.
type ReadPackErrorCode string

const (
	CodeInvalidRequest ReadPackErrorCode = "invalid_request"
	CodeMissingField    ReadPackErrorCode = "missing_field"
	CodeInvalidCursor   ReadPackErrorCode = "invalid_cursor"
	CodeForbiddenFile   ReadPackErrorCode = "forbidden_file"
	CodeNotFound        ReadPackErrorCode = "not_found"
	CodeInternal        ReadPackErrorCode = "internal"
	CodeTimeout         ReadPackErrorCode = "timeout"
)

// ReadPackError is the {code, message, details?, hint?, next_actions?}
// shape every read-pack tool reports on failure.
type ReadPackError struct {
	Code        ReadPackErrorCode `json:"code"`
	Message     string            `json:"message"`
	Details     map[string]any    `json:"details,omitempty"`
	Hint        string            `json:"hint,omitempty"`
	NextActions []string          `json:"next_actions,omitempty"`
}

func (e *ReadPackError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapReadPackError classifies an error returned by the router into one of
// the seven stable codes. Budget overruns are never errors by this point —
// they surface as Response.Truncated — so everything reaching here is a
// genuine failure.
func MapReadPackError(err error) *ReadPackError {
	if err == nil {
		return nil
	}

	var rpe *ReadPackError
	if errors.As(err, &rpe) {
		return rpe
	}

	switch {
	case errors.Is(err, router.ErrBudgetTooSmall):
		return &ReadPackError{
			Code:    CodeInvalidRequest,
			Message: "max_chars is too small for any legal envelope",
			Hint:    router.RetryHint(),
		}
	case errors.Is(err, router.ErrSecretDenied):
		return &ReadPackError{
			Code:    CodeForbiddenFile,
			Message: "this path is denylisted as a likely secret file",
			Hint:    "retry with allow_secrets=true if you are certain this access is authorized",
		}
	case errors.Is(err, cursor.ErrInvalidCursor), errors.Is(err, cursor.ErrExpired):
		return &ReadPackError{
			Code:    CodeInvalidCursor,
			Message: "cursor is malformed, expired, or was issued for a different project root",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &ReadPackError{
			Code:    CodeTimeout,
			Message: "the call exceeded its timeout budget",
		}
	case errors.Is(err, context.Canceled):
		return &ReadPackError{
			Code:    CodeTimeout,
			Message: "the call was canceled",
		}
	case errors.Is(err, errNotFound):
		return &ReadPackError{
			Code:    CodeNotFound,
			Message: err.Error(),
		}
	default:
		return &ReadPackError{
			Code:    CodeInternal,
			Message: "internal error",
		}
	}
}

// errNotFound is wrapped by intent handlers (e.g. a missing file) to
// signal CodeNotFound without introducing a router->mcp import cycle.
var errNotFound = errors.New("not found")

// NewMissingFieldError reports a required field the caller omitted.
func NewMissingFieldError(field string) *ReadPackError {
	return &ReadPackError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field %q", field),
		Details: map[string]any{"field": field},
	}
}
