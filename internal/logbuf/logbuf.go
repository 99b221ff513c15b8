// Package logbuf tees slog records into the state store's log ring so the
// logs endpoint can serve recent entries without shipping to an external
// aggregator.
package logbuf

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/state"
)

// RingSize bounds the captured log ring.
const RingSize = 500

// Handler wraps another slog.Handler and captures every record it handles
// into the store ring. Capture is best-effort and never fails logging.
type Handler struct {
	inner slog.Handler
	store state.Store
	attrs []slog.Attr
}

// NewHandler creates a capturing handler over inner.
func NewHandler(inner slog.Handler, store state.Store) *Handler {
	return &Handler{inner: inner, store: store}
}

// Enabled defers to the wrapped handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle forwards the record and appends it to the log ring. The ring write
// survives request cancellation: losing the tail of a canceled request's
// logs would hide exactly the entries an operator wants.
func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	err := h.inner.Handle(ctx, rec)

	entry := model.LogEntry{
		Level:     rec.Level.String(),
		Message:   rec.Message,
		Timestamp: rec.Time,
	}
	attrs := map[string]any{}
	collect := func(a slog.Attr) {
		if a.Key == "component" {
			entry.Component = a.Value.String()
			return
		}
		attrs[a.Key] = a.Value.Any()
	}
	for _, a := range h.attrs {
		collect(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})
	if len(attrs) > 0 {
		entry.Attributes = attrs
	}

	raw, merr := json.Marshal(entry)
	if merr != nil {
		return err
	}
	storeCtx := context.WithoutCancel(ctx)
	if perr := h.store.ListPush(storeCtx, state.KeyLogs, string(raw)); perr == nil {
		_ = h.store.ListTrim(storeCtx, state.KeyLogs, 0, RingSize-1)
	}
	return err
}

// WithAttrs returns a handler carrying the additional attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{inner: h.inner.WithAttrs(attrs), store: h.store, attrs: merged}
}

// WithGroup defers grouping to the wrapped handler; captured entries keep
// flat attribute keys.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), store: h.store, attrs: h.attrs}
}

// Recent returns up to limit captured entries matching the component and
// level filters (empty string matches everything), newest first, plus the
// total number of matches in the ring.
func Recent(ctx context.Context, store state.Store, limit int, component, level string) ([]model.LogEntry, int, error) {
	if limit <= 0 || limit > RingSize {
		limit = 100
	}
	raws, err := store.ListRange(ctx, state.KeyLogs, 0, RingSize-1)
	if err != nil {
		return nil, 0, err
	}

	var matched []model.LogEntry
	for _, raw := range raws {
		var entry model.LogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		if component != "" && entry.Component != component {
			continue
		}
		if level != "" && !strings.EqualFold(entry.Level, level) {
			continue
		}
		matched = append(matched, entry)
	}

	total := len(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}
