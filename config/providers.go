package config

import (
	"os"
	"strings"
)

type mapProvider struct {
	values map[string]string
}

// Map returns a provider serving a copy of values.
func Map(values map[string]string) Provider {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &mapProvider{values: copied}
}

func (p *mapProvider) Name() string { return "memory" }

func (p *mapProvider) Load() (map[string]string, error) {
	return p.values, nil
}

type envProvider struct {
	prefix  string
	environ func() []string
}

// Env returns a provider reading environment variables that start with prefix. The prefix
// is stripped and "__" is translated to KeyDelimiter, so APP_POSTGRES__HOST with prefix
// "APP_" becomes "POSTGRES:HOST".
func Env(prefix string) Provider {
	return &envProvider{prefix: prefix, environ: os.Environ}
}

func (p *envProvider) Name() string {
	if p.prefix == "" {
		return "env"
	}
	return "env:" + p.prefix
}

func (p *envProvider) Load() (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range p.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if p.prefix != "" {
			if !strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(p.prefix)) {
				continue
			}
			name = name[len(p.prefix):]
		}
		if name == "" {
			continue
		}
		out[strings.ReplaceAll(name, "__", KeyDelimiter)] = value
	}
	return out, nil
}

type argsProvider struct {
	args []string
}

// Args returns a provider parsing command-line arguments of the forms "--Key=value",
// "--Key value", "-Key value" and "Key=value". A switch without a value ("--verbose")
// is stored as "true".
func Args(args []string) Provider {
	return &argsProvider{args: append([]string(nil), args...)}
}

func (p *argsProvider) Name() string { return "args" }

func (p *argsProvider) Load() (map[string]string, error) {
	out := make(map[string]string)
	for i := 0; i < len(p.args); i++ {
		arg := p.args[i]

		var (
			key      string
			isSwitch bool
		)
		switch {
		case strings.HasPrefix(arg, "--"):
			key, isSwitch = arg[2:], true
		case strings.HasPrefix(arg, "-"):
			key, isSwitch = arg[1:], true
		default:
			key = arg
		}

		if k, v, ok := strings.Cut(key, "="); ok {
			if k != "" {
				out[k] = v
			}
			continue
		}
		if !isSwitch || key == "" {
			continue
		}

		if i+1 < len(p.args) && !isFlag(p.args[i+1]) {
			out[key] = p.args[i+1]
			i++
			continue
		}
		out[key] = "true"
	}
	return out, nil
}

func isFlag(arg string) bool {
	return strings.HasPrefix(arg, "-")
}
