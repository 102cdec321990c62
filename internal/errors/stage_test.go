package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	titles   []string
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(title, message string) error {
	n.titles = append(n.titles, title)
	n.messages = append(n.messages, message)
	return n.err
}

type recordingLogger struct {
	warns  []string
	errors []string
}

func (l *recordingLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.warns = append(l.warns, msg)
}

func TestStageErrorClassification(t *testing.T) {
	cause := errors.New("Undefined variable $brand")

	rec := Recoverable("styles", "SASS", cause)
	require.Error(t, rec)
	assert.True(t, IsRecoverable(rec))
	assert.False(t, IsFatal(rec))
	assert.Equal(t, "styles", StageOf(rec))
	assert.ErrorIs(t, rec, cause)
	assert.Equal(t, "styles [SASS]: Undefined variable $brand", rec.Error())

	fatal := Fatal("scripts", cause)
	assert.False(t, IsRecoverable(fatal))
	assert.True(t, IsFatal(fatal))
	assert.Equal(t, "scripts: Undefined variable $brand", fatal.Error())

	wrapped := fmt.Errorf("pipeline: %w", rec)
	assert.True(t, IsRecoverable(wrapped))
	assert.Equal(t, "styles", StageOf(wrapped))

	assert.Nil(t, Recoverable("styles", "SASS", nil))
	assert.Nil(t, Fatal("clean", nil))
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(errors.New("plain")))
	assert.Equal(t, "", StageOf(errors.New("plain")))
}

func TestFatalKeepsExistingStageError(t *testing.T) {
	rec := Recoverable("templates", "PUG", errors.New("unexpected token"))
	assert.Same(t, rec, Fatal("other", rec))
}

func TestHandlerAbsorbsRecoverable(t *testing.T) {
	notifier := &recordingNotifier{}
	logger := &recordingLogger{}
	h := NewHandler(logger, notifier)

	err := h.Handle(context.Background(), Recoverable("templates", "PUG", errors.New("unexpected token")))
	assert.NoError(t, err)
	assert.Equal(t, []string{"PUG"}, notifier.titles)
	assert.Equal(t, []string{"unexpected token"}, notifier.messages)
	assert.Len(t, logger.warns, 1)
	assert.Empty(t, logger.errors)
}

func TestHandlerReturnsFatal(t *testing.T) {
	notifier := &recordingNotifier{}
	logger := &recordingLogger{}
	h := NewHandler(logger, notifier)

	fatal := Fatal("img", errors.New("permission denied"))
	err := h.Handle(context.Background(), fatal)
	assert.Equal(t, fatal, err)
	assert.Empty(t, notifier.titles)
	assert.Len(t, logger.errors, 1)
}

func TestHandlerNotificationFailureStillAbsorbs(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("no notification daemon")}
	logger := &recordingLogger{}
	h := NewHandler(logger, notifier)

	err := h.Handle(context.Background(), Recoverable("styles", "", errors.New("bad")))
	assert.NoError(t, err)
	assert.Equal(t, []string{"styles"}, notifier.titles)
	assert.Len(t, logger.warns, 2)
}

func TestHandlerNilDependencies(t *testing.T) {
	h := NewHandler(nil, nil)
	assert.NoError(t, h.Handle(context.Background(), nil))
	assert.NoError(t, h.Handle(context.Background(), Recoverable("styles", "SASS", errors.New("x"))))
	assert.Error(t, h.Handle(context.Background(), errors.New("x")))
}
