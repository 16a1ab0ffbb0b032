package apphost

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync/atomic"
)

// SourceKey is the attribute naming the component a logger belongs to. Per-source level
// overrides match on it.
const SourceKey = "logger"

// Log formats for the console sink.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// LoggerConfiguration collects logging settings from the host and from modules
// implementing LoggingConfigurer. It is turned into a handler once all modules had
// their say.
type LoggerConfiguration struct {
	minLevel     slog.Level
	sourceLevels map[string]slog.Level
	format       string
	console      bool
	handlers     []slog.Handler
	wrappers     []func(slog.Handler) slog.Handler
	attrs        []slog.Attr
}

// NewLoggerConfiguration creates a configuration logging to the console at level.
func NewLoggerConfiguration(level slog.Level, format string, console bool) *LoggerConfiguration {
	return &LoggerConfiguration{
		minLevel:     level,
		sourceLevels: make(map[string]slog.Level),
		format:       format,
		console:      console,
	}
}

// SetMinimumLevel sets the level below which records are dropped.
func (c *LoggerConfiguration) SetMinimumLevel(level slog.Level) { c.minLevel = level }

// MinimumLevel returns the configured minimum level.
func (c *LoggerConfiguration) MinimumLevel() slog.Level { return c.minLevel }

// SetLevel overrides the minimum level for loggers whose SourceKey attribute equals
// source or starts with source followed by a dot.
func (c *LoggerConfiguration) SetLevel(source string, level slog.Level) {
	c.sourceLevels[source] = level
}

// SetConsole enables or disables the console sink.
func (c *LoggerConfiguration) SetConsole(enabled bool) { c.console = enabled }

// SetFormat selects LogFormatText or LogFormatJSON for the console sink.
func (c *LoggerConfiguration) SetFormat(format string) { c.format = format }

// AddHandler adds a sink receiving every record that passes the level filter.
func (c *LoggerConfiguration) AddHandler(h slog.Handler) {
	if h != nil {
		c.handlers = append(c.handlers, h)
	}
}

// Wrap adds middleware around the combined sinks. Wrappers added first run closest to
// the sinks.
func (c *LoggerConfiguration) Wrap(fn func(slog.Handler) slog.Handler) {
	if fn != nil {
		c.wrappers = append(c.wrappers, fn)
	}
}

// With adds attributes attached to every record.
func (c *LoggerConfiguration) With(attrs ...slog.Attr) {
	c.attrs = append(c.attrs, attrs...)
}

// Handler builds the final handler writing console output to w.
func (c *LoggerConfiguration) Handler(w io.Writer) slog.Handler {
	lowest := c.minLevel
	for _, l := range c.sourceLevels {
		lowest = min(lowest, l)
	}

	sinks := make([]slog.Handler, 0, len(c.handlers)+1)
	if c.console && w != nil {
		opts := &slog.HandlerOptions{Level: lowest}
		if strings.EqualFold(c.format, LogFormatJSON) {
			sinks = append(sinks, slog.NewJSONHandler(w, opts))
		} else {
			sinks = append(sinks, slog.NewTextHandler(w, opts))
		}
	}
	sinks = append(sinks, c.handlers...)

	var h slog.Handler
	switch len(sinks) {
	case 0:
		h = slog.NewTextHandler(io.Discard, nil)
	case 1:
		h = sinks[0]
	default:
		h = newMultiHandler(sinks...)
	}
	for _, wrap := range c.wrappers {
		h = wrap(h)
	}

	levels := make(map[string]slog.Level, len(c.sourceLevels))
	for k, v := range c.sourceLevels {
		levels[k] = v
	}
	h = &levelHandler{next: h, min: c.minLevel, levels: levels, effective: c.minLevel}
	if len(c.attrs) > 0 {
		h = h.WithAttrs(c.attrs)
	}
	return h
}

// levelHandler filters records by the minimum level, narrowed by the SourceKey
// attribute of the logger that produced them.
type levelHandler struct {
	next      slog.Handler
	min       slog.Level
	levels    map[string]slog.Level
	effective slog.Level
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.effective && h.next.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.effective {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	effective := h.effective
	for _, a := range attrs {
		if a.Key == SourceKey {
			effective = h.levelFor(a.Value.String())
		}
	}
	return &levelHandler{next: h.next.WithAttrs(attrs), min: h.min, levels: h.levels, effective: effective}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{next: h.next.WithGroup(name), min: h.min, levels: h.levels, effective: h.effective}
}

// levelFor picks the override with the longest matching source prefix.
func (h *levelHandler) levelFor(source string) slog.Level {
	level, best := h.min, -1
	for prefix, l := range h.levels {
		if (source == prefix || strings.HasPrefix(source, prefix+".")) && len(prefix) > best {
			level, best = l, len(prefix)
		}
	}
	return level
}

// multiHandler forwards log records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(handlers ...slog.Handler) slog.Handler {
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, rec.Level) {
			if err := handler.Handle(ctx, rec.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return newMultiHandler(handlers...)
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return newMultiHandler(handlers...)
}

// handlerSlot holds the handler currently behind a swappable logger.
type handlerSlot struct {
	current atomic.Pointer[slog.Handler]
}

func newHandlerSlot(h slog.Handler) *handlerSlot {
	s := &handlerSlot{}
	s.store(h)
	return s
}

func (s *handlerSlot) store(h slog.Handler) { s.current.Store(&h) }

func (s *handlerSlot) load() slog.Handler { return *s.current.Load() }

// swapHandler resolves the slot on every call and replays WithAttrs/WithGroup, so
// loggers derived before a swap follow the new handler.
type swapHandler struct {
	slot *handlerSlot
	ops  []func(slog.Handler) slog.Handler
}

func (h *swapHandler) resolve() slog.Handler {
	next := h.slot.load()
	for _, op := range h.ops {
		next = op(next)
	}
	return next
}

func (h *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.resolve().Enabled(ctx, level)
}

func (h *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *swapHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *swapHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &swapHandler{slot: h.slot, ops: append(ops, op)}
}

// ModuleLogger returns the application logger tagged with the module's type name, so
// per-source levels can target it.
func ModuleLogger(app *ApplicationContext, module any) *slog.Logger {
	return app.Logger().With(slog.String(SourceKey, sourceName(module)))
}

func sourceName(module any) string {
	t := reflect.TypeOf(module)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
