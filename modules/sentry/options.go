package sentry

import (
	"log/slog"
	"time"

	"github.com/GoCodeAlone/apphost"
)

// Options configures error reporting. Bound from the "Sentry" section.
type Options struct {
	apphost.BaseModuleOptions

	// DSN is the project key. Without one nothing is reported.
	DSN string

	// Environment defaults to the application environment.
	Environment string

	// Release defaults to "name@version" of the application.
	Release string

	// EventLevel is the lowest level turned into a Sentry issue.
	EventLevel string `default:"error"`

	// LogLevel is the lowest level stored as a Sentry log entry.
	LogLevel string `default:"warn"`

	SampleRate   float64       `default:"1"`
	Debug        bool
	FlushTimeout time.Duration `default:"2s"`
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.NewRuleValidator[*Options]().
		Rule("EventLevel", func(o *Options) bool { _, err := parseLevel(o.EventLevel); return err == nil }, "must be debug, info, warn or error").
		Rule("LogLevel", func(o *Options) bool { _, err := parseLevel(o.LogLevel); return err == nil }, "must be debug, info, warn or error").
		Rule("SampleRate", func(o *Options) bool { return o.SampleRate >= 0 && o.SampleRate <= 1 }, "must be between 0 and 1").
		Rule("FlushTimeout", func(o *Options) bool { return o.FlushTimeout > 0 }, "must be positive"), nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

// levelsFrom lists the standard levels at or above the named one.
func levelsFrom(name string) []slog.Level {
	lowest, err := parseLevel(name)
	if err != nil {
		return nil
	}
	var levels []slog.Level
	for _, l := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if l >= lowest {
			levels = append(levels, l)
		}
	}
	return levels
}
