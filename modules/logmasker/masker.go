package logmasker

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Maskable is implemented by values that decide their own masking, regardless of the
// key they are logged under.
type Maskable interface {
	ShouldMask() bool
	MaskedValue() any
}

type compiledPattern struct {
	re   *regexp.Regexp
	rule PatternRule
}

// Masker applies field and pattern rules to log attributes.
type Masker struct {
	fields         map[string]FieldRule
	patterns       []compiledPattern
	defaultRule    Strategy
	defaultPartial PartialOptions
}

// NewMasker compiles the rules in options.
func NewMasker(options *Options) (*Masker, error) {
	m := &Masker{
		fields:         make(map[string]FieldRule, len(options.FieldRules)),
		defaultRule:    cmp.Or(options.DefaultStrategy, StrategyRedact),
		defaultPartial: options.DefaultPartial,
	}
	for _, r := range options.FieldRules {
		m.fields[strings.ToLower(r.Field)] = r
	}
	for _, r := range options.PatternRules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("logmasker: compile pattern %q: %w", r.Pattern, err)
		}
		m.patterns = append(m.patterns, compiledPattern{re: re, rule: r})
	}
	return m, nil
}

// Attr returns a masked copy of a. Group members are masked recursively.
func (m *Masker) Attr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindAny {
		if v, ok := a.Value.Any().(Maskable); ok {
			if v.ShouldMask() {
				return slog.Any(a.Key, v.MaskedValue())
			}
			return a
		}
	}

	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]slog.Attr, len(group))
		for i, ga := range group {
			masked[i] = m.Attr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	}

	if rule, ok := m.fields[strings.ToLower(a.Key)]; ok {
		return slog.Any(a.Key, m.apply(a.Value, rule.Strategy, rule.Partial))
	}
	if a.Value.Kind() == slog.KindString {
		s := a.Value.String()
		for _, p := range m.patterns {
			if p.re.MatchString(s) {
				return slog.Any(a.Key, m.apply(a.Value, p.rule.Strategy, p.rule.Partial))
			}
		}
	}
	return a
}

func (m *Masker) apply(v slog.Value, strategy Strategy, partial *PartialOptions) any {
	switch cmp.Or(strategy, m.defaultRule) {
	case StrategyNone:
		return v.Any()
	case StrategyPartial:
		if v.Kind() != slog.KindString {
			return redacted
		}
		if partial == nil {
			partial = &m.defaultPartial
		}
		return partialMask(v.String(), partial)
	case StrategyHash:
		sum := sha256.Sum256([]byte(v.String()))
		return "[HASH:" + hex.EncodeToString(sum[:8]) + "]"
	default:
		return redacted
	}
}

func partialMask(s string, o *PartialOptions) string {
	r := []rune(s)
	if len(r) < o.MinLength || o.ShowFirst+o.ShowLast >= len(r) {
		return s
	}
	mask := cmp.Or(o.MaskChar, "*")
	return string(r[:o.ShowFirst]) + strings.Repeat(mask, len(r)-o.ShowFirst-o.ShowLast) + string(r[len(r)-o.ShowLast:])
}

// Handler masks the attributes of every record before passing it on.
type Handler struct {
	next   slog.Handler
	masker *Masker
}

// NewHandler wraps next.
func NewHandler(next slog.Handler, masker *Masker) *Handler {
	return &Handler{next: next, masker: masker}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(h.masker.Attr(a))
		return true
	})
	return h.next.Handle(ctx, masked)
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.masker.Attr(a)
	}
	return &Handler{next: h.next.WithAttrs(masked), masker: h.masker}
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name), masker: h.masker}
}
