package config

import (
	"fmt"
	"slices"
)

// Provider supplies a flat set of configuration values keyed by path.
type Provider interface {
	// Name identifies the provider in provenance lookups and errors.
	Name() string

	// Load returns the provider's values. Keys use KeyDelimiter between segments.
	Load() (map[string]string, error)
}

// Builder assembles a Configuration from an ordered list of providers. Values from
// providers added later win.
type Builder struct {
	providers []Provider
}

// NewBuilder creates a builder seeded with the given providers.
func NewBuilder(providers ...Provider) *Builder {
	return &Builder{providers: slices.Clone(providers)}
}

// Add appends providers to the builder.
func (b *Builder) Add(providers ...Provider) *Builder {
	b.providers = append(b.providers, providers...)
	return b
}

// AddMap appends an in-memory provider.
func (b *Builder) AddMap(values map[string]string) *Builder {
	return b.Add(Map(values))
}

// AddEnv appends an environment provider restricted to variables starting with prefix.
func (b *Builder) AddEnv(prefix string) *Builder {
	return b.Add(Env(prefix))
}

// AddFile appends a file provider; the format follows the file extension.
func (b *Builder) AddFile(path string, optional bool) *Builder {
	return b.Add(File(path, optional))
}

// AddArgs appends a command-line provider.
func (b *Builder) AddArgs(args []string) *Builder {
	return b.Add(Args(args))
}

// Providers returns a copy of the registered providers in order.
func (b *Builder) Providers() []Provider {
	return slices.Clone(b.providers)
}

// Clone returns an independent builder with the same providers.
func (b *Builder) Clone() *Builder {
	return NewBuilder(b.providers...)
}

// Build loads every provider in order and returns the merged configuration.
func (b *Builder) Build() (Configuration, error) {
	data := newStore()
	for _, p := range b.providers {
		values, err := p.Load()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, p.Name(), err)
		}
		for k, v := range values {
			data.set(k, v, p.Name())
		}
	}
	return &section{data: data}, nil
}

// Empty returns a configuration with no values.
func Empty() Configuration {
	return &section{data: newStore()}
}
