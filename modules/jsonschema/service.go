package jsonschema

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled JSON schema.
type Schema interface {
	Validate(value any) error
}

// Service compiles schemas and validates JSON documents against them.
type Service interface {
	// CompileSchema compiles the schema at source, a file path or URL. Compiled schemas
	// are cached by source.
	CompileSchema(source string) (Schema, error)

	ValidateBytes(schema Schema, data []byte) error
	ValidateReader(schema Schema, reader io.Reader) error
	ValidateValue(schema Schema, value any) error
}

type service struct {
	mu       sync.Mutex
	compiler *jsonschema.Compiler
}

// NewService creates a Service with its own compiler.
func NewService() Service {
	return &service{compiler: jsonschema.NewCompiler()}
}

func (s *service) CompileSchema(source string) (Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schema, err := s.compiler.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("jsonschema: compile %s: %w", source, err)
	}
	return schema, nil
}

func (s *service) ValidateBytes(schema Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("jsonschema: decode document: %w", err)
	}
	return s.ValidateValue(schema, v)
}

func (s *service) ValidateReader(schema Schema, reader io.Reader) error {
	v, err := jsonschema.UnmarshalJSON(reader)
	if err != nil {
		return fmt.Errorf("jsonschema: decode document: %w", err)
	}
	return s.ValidateValue(schema, v)
}

func (s *service) ValidateValue(schema Schema, value any) error {
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("jsonschema: %w", err)
	}
	return nil
}
