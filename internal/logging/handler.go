package logging

import (
	"context"
	"errors"
	"log/slog"
)

// EpisodeSource reports the attributes of the episode being driven, or nil
// between episodes. *episode.Context implements it.
type EpisodeSource interface {
	LogAttrs() []slog.Attr
}

// driverHandler writes each record to every sink and stamps it with the
// current episode. Keys already set on the record or bound with Logger.With
// are not stamped again, so a logger scoped to one episode keeps its own
// episodeId.
type driverHandler struct {
	sinks   []slog.Handler
	source  EpisodeSource
	bound   map[string]struct{}
	grouped bool
}

func newDriverHandler(source EpisodeSource, sinks ...slog.Handler) *driverHandler {
	h := &driverHandler{source: source, bound: map[string]struct{}{}}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	return h
}

func (h *driverHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to every sink enabled for its level. A failing sink
// does not stop the others; their errors are joined.
func (h *driverHandler) Handle(ctx context.Context, r slog.Record) error {
	r = h.stamp(r)

	var errs []error
	for _, s := range h.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *driverHandler) stamp(r slog.Record) slog.Record {
	if h.source == nil {
		return r
	}
	attrs := h.source.LogAttrs()
	if len(attrs) == 0 {
		return r
	}

	seen := make(map[string]struct{}, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		seen[a.Key] = struct{}{}
		return true
	})

	r = r.Clone()
	for _, a := range attrs {
		if _, ok := h.bound[a.Key]; ok {
			continue
		}
		if _, ok := seen[a.Key]; ok {
			continue
		}
		r.AddAttrs(a)
	}
	return r
}

func (h *driverHandler) clone() *driverHandler {
	next := &driverHandler{
		sinks:   make([]slog.Handler, len(h.sinks)),
		source:  h.source,
		bound:   make(map[string]struct{}, len(h.bound)),
		grouped: h.grouped,
	}
	for k := range h.bound {
		next.bound[k] = struct{}{}
	}
	return next
}

func (h *driverHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for i, s := range h.sinks {
		next.sinks[i] = s.WithAttrs(attrs)
	}
	// inside a group the keys are qualified and never clash
	if !h.grouped {
		for _, a := range attrs {
			next.bound[a.Key] = struct{}{}
		}
	}
	return next
}

func (h *driverHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	for i, s := range h.sinks {
		next.sinks[i] = s.WithGroup(name)
	}
	next.grouped = true
	return next
}
