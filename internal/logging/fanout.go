package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanOut is a slog.Handler that always writes to a primary handler
// (syslog, per spec.md §6) and, when one is configured, duplicates the
// record to a secondary handler too (a text handler on stderr, which
// Open adds only when stderr is a terminal). suCGI never needs more
// than these two sinks at once, unlike a general N-way multiplexer.
type fanOut struct {
	primary   slog.Handler
	secondary slog.Handler // nil when there is no secondary sink
}

// newFanOut builds a handler duplicating records to primary and, when
// non-nil, secondary.
func newFanOut(primary, secondary slog.Handler) slog.Handler {
	return &fanOut{primary: primary, secondary: secondary}
}

// Enabled reports whether either sink would handle a record at level.
func (f *fanOut) Enabled(ctx context.Context, level slog.Level) bool {
	if f.primary.Enabled(ctx, level) {
		return true
	}
	return f.secondary != nil && f.secondary.Enabled(ctx, level)
}

// Handle dispatches r to every enabled sink, joining any errors so a
// failure in one never silently swallows a failure in the other.
func (f *fanOut) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	if f.primary.Enabled(ctx, r.Level) {
		if err := f.primary.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	if f.secondary != nil && f.secondary.Enabled(ctx, r.Level) {
		if err := f.secondary.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// WithAttrs propagates attrs to both sinks.
func (f *fanOut) WithAttrs(attrs []slog.Attr) slog.Handler {
	sec := f.secondary
	if sec != nil {
		sec = sec.WithAttrs(attrs)
	}
	return &fanOut{primary: f.primary.WithAttrs(attrs), secondary: sec}
}

// WithGroup propagates name to both sinks.
func (f *fanOut) WithGroup(name string) slog.Handler {
	sec := f.secondary
	if sec != nil {
		sec = sec.WithGroup(name)
	}
	return &fanOut{primary: f.primary.WithGroup(name), secondary: sec}
}
