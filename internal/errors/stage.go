// Package errors defines the two-tier error policy of the build pipeline and
// condenses tool output into notification text.
//
// Render failures in the template and style stages are recoverable: they are
// reported to the user through a notification carrying the tool label and the
// pipeline carries on. Every other failure (bundling, copying, cleaning, the
// sprite stage) is fatal and aborts the run without retry.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a stage failure.
type Kind string

const (
	KindRecoverable Kind = "recoverable"
	KindFatal       Kind = "fatal"
)

// StageError is a failure inside a named build stage.
type StageError struct {
	Stage string
	// Label is the tool label shown in notifications (e.g. "SASS", "PUG").
	Label string
	Kind  Kind
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Stage, e.Label, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Recoverable wraps err as a recoverable failure of stage. It returns nil
// when err is nil.
func Recoverable(stage, label string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Label: label, Kind: KindRecoverable, Err: err}
}

// Fatal wraps err as a fatal failure of stage. It returns nil when err is nil
// and leaves an existing StageError untouched.
func Fatal(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Kind: KindFatal, Err: err}
}

// IsRecoverable reports whether err is a recoverable stage failure.
func IsRecoverable(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind == KindRecoverable
	}
	return false
}

// IsFatal reports whether err is non-nil and not recoverable.
func IsFatal(err error) bool {
	return err != nil && !IsRecoverable(err)
}

// StageOf returns the stage name carried by err, or "" when there is none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// Notifier interface for user-visible notifications.
type Notifier interface {
	Notify(title, message string) error
}

// Handler applies the error policy at a stage boundary.
type Handler struct {
	logger   Logger
	notifier Notifier
}

// NewHandler creates a new error handler. Either dependency may be nil.
func NewHandler(logger Logger, notifier Notifier) *Handler {
	return &Handler{
		logger:   logger,
		notifier: notifier,
	}
}

// Handle absorbs recoverable errors by notifying the user and returning nil.
// Fatal errors are logged and returned unchanged.
func (h *Handler) Handle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var se *StageError
	if errors.As(err, &se) && se.Kind == KindRecoverable {
		title := se.Label
		if title == "" {
			title = se.Stage
		}
		if h.logger != nil {
			h.logger.Warn(ctx, se.Err, "Stage failed, continuing", "stage", se.Stage, "label", se.Label)
		}
		if h.notifier != nil {
			if nerr := h.notifier.Notify(title, NotificationMessage(se.Err)); nerr != nil && h.logger != nil {
				h.logger.Warn(ctx, nerr, "Notification failed", "stage", se.Stage)
			}
		}
		return nil
	}

	if h.logger != nil {
		h.logger.Error(ctx, err, "Stage failed", "stage", StageOf(err))
	}
	return err
}
