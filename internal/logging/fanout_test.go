package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler is a minimal slog.Handler test double that counts
// how many records it received and can be told to fail or to report
// itself as disabled.
type recordingHandler struct {
	enabled bool
	err     error
	count   int
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return h.enabled }

func (h *recordingHandler) Handle(context.Context, slog.Record) error {
	if h.err != nil {
		return h.err
	}
	h.count++
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func sampleRecord() slog.Record {
	return slog.NewRecord(time.Time{}, slog.LevelError, "test message", 0)
}

func TestFanOutEnabledWhenEitherSinkIsEnabled(t *testing.T) {
	primary := &recordingHandler{enabled: false}
	secondary := &recordingHandler{enabled: true}

	f := newFanOut(primary, secondary)
	assert.True(t, f.Enabled(context.Background(), slog.LevelError))
}

func TestFanOutDisabledWithNoSecondary(t *testing.T) {
	primary := &recordingHandler{enabled: false}

	f := newFanOut(primary, nil)
	assert.False(t, f.Enabled(context.Background(), slog.LevelError))
}

func TestFanOutHandleReachesBothSinks(t *testing.T) {
	primary := &recordingHandler{enabled: true}
	secondary := &recordingHandler{enabled: true}

	f := newFanOut(primary, secondary)
	require.NoError(t, f.Handle(context.Background(), sampleRecord()))
	assert.Equal(t, 1, primary.count)
	assert.Equal(t, 1, secondary.count)
}

func TestFanOutHandleSkipsDisabledSecondary(t *testing.T) {
	primary := &recordingHandler{enabled: true}
	secondary := &recordingHandler{enabled: false}

	f := newFanOut(primary, secondary)
	require.NoError(t, f.Handle(context.Background(), sampleRecord()))
	assert.Equal(t, 1, primary.count)
	assert.Equal(t, 0, secondary.count)
}

func TestFanOutHandleWithNilSecondary(t *testing.T) {
	primary := &recordingHandler{enabled: true}

	f := newFanOut(primary, nil)
	require.NoError(t, f.Handle(context.Background(), sampleRecord()))
	assert.Equal(t, 1, primary.count)
}

func TestFanOutHandleJoinsErrorsFromBothSinks(t *testing.T) {
	errPrimary := errors.New("primary failed")
	errSecondary := errors.New("secondary failed")
	primary := &recordingHandler{enabled: true, err: errPrimary}
	secondary := &recordingHandler{enabled: true, err: errSecondary}

	f := newFanOut(primary, secondary)
	err := f.Handle(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, errPrimary)
	assert.ErrorIs(t, err, errSecondary)
}

func TestFanOutWithAttrsPropagatesToBothSinks(t *testing.T) {
	primary := &recordingHandler{enabled: true}
	secondary := &recordingHandler{enabled: true}

	f := newFanOut(primary, secondary)
	out := f.WithAttrs([]slog.Attr{slog.String("run_id", "abc")})

	fo, ok := out.(*fanOut)
	require.True(t, ok)
	assert.Same(t, primary, fo.primary)
	assert.Same(t, secondary, fo.secondary)
}

func TestFanOutWithGroupHandlesNilSecondary(t *testing.T) {
	primary := &recordingHandler{enabled: true}

	f := newFanOut(primary, nil)
	out := f.WithGroup("pipeline")

	fo, ok := out.(*fanOut)
	require.True(t, ok)
	assert.Nil(t, fo.secondary)
}
