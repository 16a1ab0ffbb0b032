package eventlogger

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/GoCodeAlone/apphost"
)

// Levels, lowest first.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Formats.
const (
	FormatText       = "text"
	FormatJSON       = "json"
	FormatStructured = "structured"
)

// Output target types.
const (
	OutputConsole = "console"
	OutputFile    = "file"
)

var levels = []string{LevelDebug, LevelInfo, LevelWarn, LevelError}

// Options configures the event logger. Bound from the "EventLogger" section.
type Options struct {
	apphost.BaseModuleOptions

	// LogLevel is the lowest event level written.
	LogLevel string `default:"INFO"`

	// EventTypeFilters limits logging to these event types; empty logs all of them.
	EventTypeFilters []string

	// BufferSize bounds events waiting to be written once the application runs.
	BufferSize int `default:"100"`

	// IncludeMetadata adds CloudEvent attributes and extensions to each entry.
	IncludeMetadata bool `default:"true"`

	// Outputs lists the targets; a console target is used when none is configured.
	Outputs []OutputOptions
}

// OutputOptions configures one output target.
type OutputOptions struct {
	// Type is "console" or "file".
	Type string

	// Level defaults to the logger's LogLevel.
	Level string

	// Format is "text", "json" or "structured".
	Format string

	// Path is the file written by a file target.
	Path string

	UseColor   bool
	Timestamps bool
}

// Configure fills in output defaults.
func (o *Options) Configure(*apphost.ApplicationContext) {
	if len(o.Outputs) == 0 {
		o.Outputs = []OutputOptions{{Type: OutputConsole, Timestamps: true}}
	}
	for i := range o.Outputs {
		out := &o.Outputs[i]
		out.Type = strings.ToLower(cmp.Or(out.Type, OutputConsole))
		out.Level = strings.ToUpper(cmp.Or(out.Level, o.LogLevel))
		out.Format = strings.ToLower(cmp.Or(out.Format, FormatStructured))
	}
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.ValidatorFunc[*Options](func(o *Options) apphost.ValidationErrors {
		var errs apphost.ValidationErrors
		add := func(field, format string, args ...any) {
			errs = append(errs, apphost.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
		}
		if !slices.Contains(levels, strings.ToUpper(o.LogLevel)) {
			add("LogLevel", "must be one of %s", strings.Join(levels, ", "))
		}
		if o.BufferSize <= 0 {
			add("BufferSize", "must be positive")
		}
		for i, out := range o.Outputs {
			field := fmt.Sprintf("Outputs:%d", i)
			switch out.Type {
			case OutputConsole:
			case OutputFile:
				if out.Path == "" {
					add(field+":Path", "is required for file outputs")
				}
			default:
				add(field+":Type", "must be console or file")
			}
			if !slices.Contains(levels, out.Level) {
				add(field+":Level", "must be one of %s", strings.Join(levels, ", "))
			}
			if !slices.Contains([]string{FormatText, FormatJSON, FormatStructured}, out.Format) {
				add(field+":Format", "must be text, json or structured")
			}
		}
		return errs
	}), nil
}

// shouldLogLevel reports whether eventLevel is at or above minLevel. Unknown levels are
// logged.
func shouldLogLevel(eventLevel, minLevel string) bool {
	e, m := slices.Index(levels, eventLevel), slices.Index(levels, strings.ToUpper(minLevel))
	if e < 0 || m < 0 {
		return true
	}
	return e >= m
}
