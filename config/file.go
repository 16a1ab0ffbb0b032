package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies a configuration file syntax.
type Format string

// Supported file formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatHCL  Format = "hcl"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileFormat, path)
	}
}

type fileProvider struct {
	path     string
	optional bool
	readFile func(string) ([]byte, error)
}

// File returns a provider reading path. A missing optional file yields no values; a
// missing required file is an error.
func File(path string, optional bool) Provider {
	return &fileProvider{path: path, optional: optional, readFile: os.ReadFile}
}

func (p *fileProvider) Name() string { return "file:" + p.path }

func (p *fileProvider) Load() (map[string]string, error) {
	format, err := FormatFromPath(p.path)
	if err != nil {
		return nil, err
	}

	data, err := p.readFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if p.optional {
				return map[string]string{}, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p.path)
		}
		return nil, fmt.Errorf("read %s: %w", p.path, err)
	}

	return Parse(format, p.path, data)
}

// Parse decodes data in the given format and flattens it into configuration paths.
func Parse(format Format, name string, data []byte) (map[string]string, error) {
	out := make(map[string]string)
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}

	var tree any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParseFile, name, err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParseFile, name, err)
		}
	case FormatTOML:
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParseFile, name, err)
		}
		tree = m
	case FormatHCL:
		if err := parseHCL(name, data, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileFormat, format)
	}

	flatten("", tree, out)
	return out, nil
}

// flatten walks a decoded document and writes its scalar leaves into out.
func flatten(prefix string, v any, out map[string]string) {
	switch t := v.(type) {
	case nil:
		if prefix != "" {
			out[prefix] = ""
		}
	case map[string]any:
		for k, child := range t {
			flatten(JoinPath(prefix, k), child, out)
		}
	case map[any]any:
		for k, child := range t {
			flatten(JoinPath(prefix, fmt.Sprint(k)), child, out)
		}
	case []any:
		for i, child := range t {
			flatten(JoinPath(prefix, strconv.Itoa(i)), child, out)
		}
	case []map[string]any:
		for i, child := range t {
			flatten(JoinPath(prefix, strconv.Itoa(i)), child, out)
		}
	default:
		if prefix != "" {
			out[prefix] = scalarString(t)
		}
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
