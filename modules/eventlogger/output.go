package eventlogger

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// LogEntry is one event as written by the output targets.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Data      any            `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// OutputTarget writes log entries somewhere.
type OutputTarget interface {
	WriteEvent(entry *LogEntry) error
	Flush() error
	Close() error
}

// NewOutputTarget creates the target described by config. Console targets write to
// console.
func NewOutputTarget(config OutputOptions, console io.Writer) (OutputTarget, error) {
	switch config.Type {
	case OutputConsole:
		return &ConsoleTarget{config: config, writer: console}, nil
	case OutputFile:
		return NewFileTarget(config)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutputTargetType, config.Type)
	}
}

// ConsoleTarget writes human-oriented output, optionally colored.
type ConsoleTarget struct {
	config OutputOptions
	writer io.Writer
}

// WriteEvent implements OutputTarget.
func (c *ConsoleTarget) WriteEvent(entry *LogEntry) error {
	if !shouldLogLevel(entry.Level, c.config.Level) {
		return nil
	}
	level := entry.Level
	if c.config.UseColor {
		level = colorizeLevel(level)
	}
	output, err := format(entry, c.config.Format, level, c.config.Timestamps, true)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(c.writer, output); err != nil {
		return fmt.Errorf("eventlogger: write to console: %w", err)
	}
	return nil
}

// Flush implements OutputTarget.
func (c *ConsoleTarget) Flush() error { return nil }

// Close implements OutputTarget.
func (c *ConsoleTarget) Close() error { return nil }

// FileTarget appends entries to a file, one per line.
type FileTarget struct {
	config OutputOptions
	file   *os.File
}

// NewFileTarget opens config.Path for appending, creating missing directories.
func NewFileTarget(config OutputOptions) (*FileTarget, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlogger: create log directory: %w", err)
	}
	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlogger: open log file %s: %w", config.Path, err)
	}
	return &FileTarget{config: config, file: file}, nil
}

// WriteEvent implements OutputTarget.
func (f *FileTarget) WriteEvent(entry *LogEntry) error {
	if f.file == nil {
		return ErrFileNotOpen
	}
	if !shouldLogLevel(entry.Level, f.config.Level) {
		return nil
	}
	output, err := format(entry, f.config.Format, entry.Level, true, false)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f.file, output); err != nil {
		return fmt.Errorf("eventlogger: write to file: %w", err)
	}
	return nil
}

// Flush implements OutputTarget.
func (f *FileTarget) Flush() error {
	if f.file == nil {
		return nil
	}
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("eventlogger: sync file: %w", err)
	}
	return nil
}

// Close implements OutputTarget.
func (f *FileTarget) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// format renders entry. Structured output spans several lines when multiline is set.
func format(entry *LogEntry, kind, level string, timestamps, multiline bool) (string, error) {
	if kind == FormatJSON {
		data, err := json.Marshal(entry)
		if err != nil {
			return "", fmt.Errorf("eventlogger: marshal entry: %w", err)
		}
		return string(data), nil
	}

	stamp := ""
	if timestamps {
		stamp = entry.Timestamp.Format(time.DateTime)
	}

	if kind == FormatText {
		var b strings.Builder
		if stamp != "" {
			b.WriteString(stamp + " ")
		}
		fmt.Fprintf(&b, "%s [%s] %s", level, entry.Type, entry.Source)
		if entry.Data != nil {
			fmt.Fprintf(&b, " %v", entry.Data)
		}
		return b.String(), nil
	}

	sep, indent := " | ", ""
	if multiline {
		sep, indent = "\n", "  "
	}
	var b strings.Builder
	if stamp != "" {
		fmt.Fprintf(&b, "[%s] ", stamp)
	}
	fmt.Fprintf(&b, "%s %s%s%sSource: %s", level, entry.Type, sep, indent, entry.Source)
	if entry.Data != nil {
		fmt.Fprintf(&b, "%s%sData: %v", sep, indent, entry.Data)
	}
	if len(entry.Metadata) > 0 {
		fmt.Fprintf(&b, "%s%sMetadata:", sep, indent)
		for _, k := range slices.Sorted(maps.Keys(entry.Metadata)) {
			fmt.Fprintf(&b, " %s=%v", k, entry.Metadata[k])
		}
	}
	return b.String(), nil
}

func colorizeLevel(level string) string {
	switch level {
	case LevelDebug:
		return "\033[36mDEBUG\033[0m"
	case LevelInfo:
		return "\033[32mINFO\033[0m"
	case LevelWarn:
		return "\033[33mWARN\033[0m"
	case LevelError:
		return "\033[31mERROR\033[0m"
	default:
		return level
	}
}
