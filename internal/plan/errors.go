package plan

import (
	"errors"
	"fmt"
)

// Code is the stable machine-checkable category of a mutation failure.
// Remote clients match on the code; the message is for humans.
type Code string

const (
	CodeInvalidInput  Code = "invalid_input"
	CodeNotFound      Code = "not_found"
	CodeInvalidState  Code = "invalid_state"
	CodeNotAllowed    Code = "not_allowed"
	CodeAlreadyExists Code = "already_exists"
	CodeRateLimited   Code = "rate_limited"
	CodeInternal      Code = "internal"
)

// Error is the typed error every mutation path returns. It carries the
// category plus whatever context ids were in play, so protocol layers can
// build structured error events without parsing message text.
type Error struct {
	Code     Code
	Message  string
	TaskID   string
	EpicID   string
	WorkerID string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is lets errors.Is match on a bare &Error{Code: ...} sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errf builds a typed error with a formatted message.
func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithTask attaches a task id for error-event context.
func (e *Error) WithTask(id string) *Error {
	e.TaskID = id
	return e
}

// WithEpic attaches an epic id.
func (e *Error) WithEpic(id string) *Error {
	e.EpicID = id
	return e
}

// WithWorker attaches a worker id.
func (e *Error) WithWorker(id string) *Error {
	e.WorkerID = id
	return e
}

// CodeOf extracts the error code, or CodeInternal for untyped errors. A nil
// error has no code and returns "".
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}
