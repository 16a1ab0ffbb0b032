package jsonschema

import (
	"encoding/json"
	"strconv"

	"github.com/GoCodeAlone/apphost/config"
)

// Document converts a configuration section into a JSON value. Sections whose keys are
// 0..n-1 become arrays. Leaves that parse as JSON numbers or booleans become those; all
// other leaves stay strings. A missing section converts to nil.
func Document(section config.Configuration) any {
	if !section.Exists() {
		return nil
	}
	children := section.Children()
	if len(children) == 0 {
		return scalar(section)
	}

	if isArray(children) {
		out := make([]any, len(children))
		for i, c := range children {
			out[i] = Document(c)
		}
		return out
	}
	out := make(map[string]any, len(children))
	for _, c := range children {
		out[c.Key()] = Document(c)
	}
	return out
}

func scalar(section config.Configuration) any {
	raw, _ := section.Lookup("")
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if validNumber(raw) {
		return json.Number(raw)
	}
	return raw
}

func isArray(children []config.Configuration) bool {
	for i, c := range children {
		if c.Key() != strconv.Itoa(i) {
			return false
		}
	}
	return true
}

// validNumber reports whether raw is a JSON number literal.
func validNumber(raw string) bool {
	var n json.Number
	if raw == "" || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return false
	}
	return json.Unmarshal([]byte(raw), &n) == nil
}
