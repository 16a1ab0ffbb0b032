// Package config provides hierarchical, case-insensitive configuration assembled from
// ordered providers (maps, environment, files, command-line arguments).
//
// Keys are paths separated by KeyDelimiter, e.g. "Postgres:Host". A provider added later
// overrides values of the same path supplied by earlier providers. Lookups ignore case, so
// "POSTGRES:HOST" from the environment and "Postgres:Host" from a YAML file address the
// same value.
package config

import (
	"slices"
	"sort"
	"strconv"
	"strings"
)

// KeyDelimiter separates the segments of a configuration path.
const KeyDelimiter = ":"

// Configuration is a read-only view over a configuration tree, rooted at Path.
type Configuration interface {
	// Path returns the full path of this section; empty for the root.
	Path() string

	// Key returns the last segment of Path.
	Key() string

	// Lookup returns the raw value stored at key relative to this section.
	Lookup(key string) (string, bool)

	// Get returns the value stored at key relative to this section, or "".
	Get(key string) string

	// Section returns the sub-tree rooted at key. It never returns nil; use Exists
	// to check whether anything is stored beneath it.
	Section(key string) Configuration

	// Children returns the immediate child sections in key order. Numeric keys sort
	// numerically so list entries keep their declared order.
	Children() []Configuration

	// Exists reports whether this section holds a value or has any children.
	Exists() bool

	// Source returns the name of the provider that supplied the value at key.
	Source(key string) (string, bool)

	// Bind populates target (a pointer to a struct) from this section.
	Bind(target any) error
}

// Bind populates target from the section at key of cfg.
func Bind(cfg Configuration, key string, target any) error {
	return cfg.Section(key).Bind(target)
}

// entry is one stored value; key keeps the casing of the provider that last set it.
type entry struct {
	key    string
	value  string
	source string
}

type store struct {
	values map[string]entry
}

func newStore() *store {
	return &store{values: make(map[string]entry)}
}

func (s *store) set(key, value, source string) {
	key = normalizePath(key)
	if key == "" {
		return
	}
	s.values[strings.ToLower(key)] = entry{key: key, value: value, source: source}
}

func (s *store) get(path string) (entry, bool) {
	e, ok := s.values[strings.ToLower(path)]
	return e, ok
}

// children returns the distinct next path segments below prefix, keeping the original
// casing of the first occurrence.
func (s *store) children(prefix string) []string {
	lower := strings.ToLower(prefix)
	if lower != "" {
		lower += KeyDelimiter
	}

	seen := make(map[string]string)
	for k, e := range s.values {
		if !strings.HasPrefix(k, lower) {
			continue
		}
		rest := k[len(lower):]
		seg, _, _ := strings.Cut(rest, KeyDelimiter)
		if seg == "" {
			continue
		}
		if _, ok := seen[seg]; ok {
			continue
		}
		original := e.key[len(lower):]
		original, _, _ = strings.Cut(original, KeyDelimiter)
		seen[seg] = original
	}

	keys := make([]string, 0, len(seen))
	for _, k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessKey(keys[i], keys[j]) })
	return keys
}

func (s *store) hasChildren(prefix string) bool {
	lower := strings.ToLower(prefix) + KeyDelimiter
	for k := range s.values {
		if strings.HasPrefix(k, lower) {
			return true
		}
	}
	return false
}

func lessKey(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return strings.ToLower(a) < strings.ToLower(b)
	}
}

// section implements Configuration over a shared store.
type section struct {
	data *store
	path string
}

func (s *section) Path() string { return s.path }

func (s *section) Key() string {
	if i := strings.LastIndex(s.path, KeyDelimiter); i >= 0 {
		return s.path[i+1:]
	}
	return s.path
}

func (s *section) Lookup(key string) (string, bool) {
	e, ok := s.data.get(JoinPath(s.path, key))
	return e.value, ok
}

func (s *section) Get(key string) string {
	v, _ := s.Lookup(key)
	return v
}

func (s *section) Section(key string) Configuration {
	return &section{data: s.data, path: JoinPath(s.path, key)}
}

func (s *section) Children() []Configuration {
	keys := s.data.children(s.path)
	out := make([]Configuration, 0, len(keys))
	for _, k := range keys {
		out = append(out, &section{data: s.data, path: JoinPath(s.path, k)})
	}
	return out
}

func (s *section) Exists() bool {
	if s.path == "" {
		return len(s.data.values) > 0
	}
	if _, ok := s.data.get(s.path); ok {
		return true
	}
	return s.data.hasChildren(s.path)
}

func (s *section) Source(key string) (string, bool) {
	e, ok := s.data.get(JoinPath(s.path, key))
	return e.source, ok
}

func (s *section) Bind(target any) error {
	return bind(s, target)
}

// value returns the value stored at the section's own path.
func (s *section) value() (string, bool) {
	if s.path == "" {
		return "", false
	}
	e, ok := s.data.get(s.path)
	return e.value, ok
}

// JoinPath joins non-empty segments with KeyDelimiter.
func JoinPath(segments ...string) string {
	parts := slices.DeleteFunc(slices.Clone(segments), func(s string) bool { return s == "" })
	return normalizePath(strings.Join(parts, KeyDelimiter))
}

func normalizePath(p string) string {
	return strings.Trim(p, KeyDelimiter)
}
