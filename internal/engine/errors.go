package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/rehook/internal/ir"
)

// RenderError is a programmer error detected during a cycle. It fails the
// whole cycle and is never retried.
//
// Render errors include:
//   - A hook registered outside a render pass
//   - State mutated from inside a render body
//   - Positional hook identity that diverged from the stored shape
//   - An explicit key used twice in one component
//   - An initializer that failed, or a component body that panicked
type RenderError struct {
	// Code identifies the error category.
	Code RenderErrorCode

	// Message is a human-readable description.
	Message string

	// HookID is the hook involved, when known.
	HookID ir.HookID

	// Path is the component path being rendered.
	Path string

	// Cause is the underlying error (initializer failures, panics).
	Cause error
}

// RenderErrorCode categorizes render errors.
type RenderErrorCode string

const (
	ErrCodeNotInRenderContext    RenderErrorCode = "NOT_IN_RENDER_CONTEXT"
	ErrCodeIllegalStateMutation  RenderErrorCode = "ILLEGAL_STATE_MUTATION"
	ErrCodeAmbiguousHookIdentity RenderErrorCode = "AMBIGUOUS_HOOK_IDENTITY"
	ErrCodeDuplicateHookKey      RenderErrorCode = "DUPLICATE_HOOK_KEY"
	ErrCodeInitializerFailed     RenderErrorCode = "INITIALIZER_FAILED"
	ErrCodeComponentPanic        RenderErrorCode = "COMPONENT_PANIC"
	ErrCodeInvalidValue          RenderErrorCode = "INVALID_VALUE"
	ErrCodeInvalidElement        RenderErrorCode = "INVALID_ELEMENT"
)

// Sentinels for errors.Is. A *RenderError matches the sentinel of its code.
var (
	ErrNotInRenderContext    = errors.New("hook used outside a render pass")
	ErrIllegalStateMutation  = errors.New("state mutated during render")
	ErrAmbiguousHookIdentity = errors.New("ambiguous hook identity")
	ErrDuplicateHookKey      = errors.New("duplicate hook key")
)

var sentinels = map[RenderErrorCode]error{
	ErrCodeNotInRenderContext:    ErrNotInRenderContext,
	ErrCodeIllegalStateMutation:  ErrIllegalStateMutation,
	ErrCodeAmbiguousHookIdentity: ErrAmbiguousHookIdentity,
	ErrCodeDuplicateHookKey:      ErrDuplicateHookKey,
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.HookID != "" {
		msg += fmt.Sprintf(" (hook=%s)", e.HookID)
	} else if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the cause.
func (e *RenderError) Unwrap() error { return e.Cause }

// Is matches the sentinel for the error's code.
func (e *RenderError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// ErrorCode implements the coded-error contract used by ir.ErrorInfoFrom.
func (e *RenderError) ErrorCode() string { return string(e.Code) }

// IsRenderError returns true if err is or wraps a *RenderError.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}

func newRenderError(code RenderErrorCode, id ir.HookID, path, format string, args ...any) *RenderError {
	return &RenderError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		HookID:  id,
		Path:    path,
	}
}

// HandlerError is a failure returned (or panicked) by one event handler.
// Handler errors never fail the cycle; they are joined into the response.
type HandlerError struct {
	EventIndex int
	Kind       ir.EventKind
	HookID     ir.HookID
	Err        error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("event %d (%s) handler %s: %v", e.EventIndex, e.Kind, e.HookID, e.Err)
}

// Unwrap exposes the handler's error.
func (e *HandlerError) Unwrap() error { return e.Err }

// ErrorCode implements the coded-error contract used by ir.ErrorInfoFrom.
func (e *HandlerError) ErrorCode() string { return "HANDLER_FAILED" }

// Info converts the failure into its serialized form.
func (e *HandlerError) Info() ir.ErrorInfo {
	return ir.ErrorInfo{
		Message: e.Err.Error(),
		Detail:  fmt.Sprintf("event %d (%s) at %s", e.EventIndex, e.Kind, e.HookID),
		Code:    e.ErrorCode(),
	}
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// IsInterrupt reports whether err is a host interrupt: an exceeded budget or
// a cancelled context. Interrupts propagate out of a cycle unchanged and are
// never captured into hook state or the aggregated handler errors.
func IsInterrupt(err error) bool {
	if err == nil {
		return false
	}
	var be *BudgetExceededError
	if errors.As(err, &be) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// recoverAsError converts a recovered panic value into an error. Interrupt
// values are returned unchanged so they keep propagating.
func recoverAsError(r any) error {
	if err, ok := r.(error); ok && IsInterrupt(err) {
		return err
	}
	return &PanicError{Value: r}
}
