package apphost

import (
	"fmt"
	"strings"
)

// ValidationError is a single rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// ValidationErrors is the structured result of validating an options value. A nil or
// empty list means the value is valid.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, v := range e {
		parts = append(parts, v.Error())
	}
	return strings.Join(parts, "; ")
}

// Validator checks an options value after binding and self-configuration.
type Validator[T any] interface {
	Validate(options T) ValidationErrors
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc[T any] func(options T) ValidationErrors

// Validate implements Validator.
func (f ValidatorFunc[T]) Validate(options T) ValidationErrors { return f(options) }

// ValidatableOptions is implemented by options types that declare their validator.
// Constructing the validator may fail, e.g. when it depends on a resource that is not
// available; the registration then reports ErrValidatorUnavailable.
type ValidatableOptions[PO any] interface {
	Validator() (Validator[PO], error)
}

type rule[T any] struct {
	field   string
	when    func(T) bool
	check   func(T) bool
	message string
}

// RuleValidator is a small declarative Validator built from field rules.
//
//	apphost.NewRuleValidator[*Options]().
//	    NotEmpty("Host", func(o *Options) string { return o.Host }, "Postgres host is empty").
//	    Rule("Port", func(o *Options) bool { return o.Port > 0 }, "Postgres port is empty")
type RuleValidator[T any] struct {
	rules []rule[T]
}

// NewRuleValidator creates an empty RuleValidator.
func NewRuleValidator[T any]() *RuleValidator[T] {
	return &RuleValidator[T]{}
}

// Rule adds a check; message is reported for field when check returns false.
func (v *RuleValidator[T]) Rule(field string, check func(T) bool, message string) *RuleValidator[T] {
	v.rules = append(v.rules, rule[T]{field: field, check: check, message: message})
	return v
}

// RuleWhen adds a check that only applies when cond holds.
func (v *RuleValidator[T]) RuleWhen(cond func(T) bool, field string, check func(T) bool, message string) *RuleValidator[T] {
	v.rules = append(v.rules, rule[T]{field: field, when: cond, check: check, message: message})
	return v
}

// NotEmpty requires the string returned by get to be non-blank.
func (v *RuleValidator[T]) NotEmpty(field string, get func(T) string, message string) *RuleValidator[T] {
	return v.Rule(field, func(o T) bool { return strings.TrimSpace(get(o)) != "" }, message)
}

// Range requires the integer returned by get to lie within [minValue, maxValue].
func (v *RuleValidator[T]) Range(field string, get func(T) int, minValue, maxValue int) *RuleValidator[T] {
	return v.Rule(field, func(o T) bool {
		n := get(o)
		return n >= minValue && n <= maxValue
	}, fmt.Sprintf("must be between %d and %d", minValue, maxValue))
}

// OneOf requires the string returned by get to equal one of allowed, ignoring case.
func (v *RuleValidator[T]) OneOf(field string, get func(T) string, allowed ...string) *RuleValidator[T] {
	return v.Rule(field, func(o T) bool {
		value := get(o)
		for _, a := range allowed {
			if strings.EqualFold(a, value) {
				return true
			}
		}
		return false
	}, "must be one of "+strings.Join(allowed, ", "))
}

// Validate implements Validator.
func (v *RuleValidator[T]) Validate(options T) ValidationErrors {
	var errs ValidationErrors
	for _, r := range v.rules {
		if r.when != nil && !r.when(options) {
			continue
		}
		if !r.check(options) {
			errs = append(errs, ValidationError{Field: r.field, Message: r.message})
		}
	}
	return errs
}
