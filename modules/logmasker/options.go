package logmasker

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/GoCodeAlone/apphost"
)

// Strategy names how a matched value is masked.
type Strategy string

const (
	// StrategyRedact replaces the value with "[REDACTED]".
	StrategyRedact Strategy = "redact"

	// StrategyPartial keeps the first and last characters of a string.
	StrategyPartial Strategy = "partial"

	// StrategyHash replaces the value with a short SHA-256 digest, so equal values
	// can still be correlated.
	StrategyHash Strategy = "hash"

	// StrategyNone leaves the value alone.
	StrategyNone Strategy = "none"
)

var strategies = []Strategy{StrategyRedact, StrategyPartial, StrategyHash, StrategyNone}

// PartialOptions configures StrategyPartial.
type PartialOptions struct {
	ShowFirst int
	ShowLast  int
	MaskChar  string

	// MinLength is the length below which values are shown unmasked.
	MinLength int
}

// FieldRule masks attributes by key. Keys match case-insensitively.
type FieldRule struct {
	Field    string
	Strategy Strategy
	Partial  *PartialOptions
}

// PatternRule masks string attributes whose value matches Pattern.
type PatternRule struct {
	Pattern  string
	Strategy Strategy
	Partial  *PartialOptions
}

// Options configures masking. Bound from the "LogMasker" section.
type Options struct {
	apphost.BaseModuleOptions

	// DefaultStrategy applies to rules without a strategy.
	DefaultStrategy Strategy `default:"redact"`

	FieldRules     []FieldRule
	PatternRules   []PatternRule
	DefaultPartial PartialOptions
}

// SetDefaults implements apphost.Defaulter. Configured rules replace these.
func (o *Options) SetDefaults() {
	o.FieldRules = []FieldRule{
		{Field: "password", Strategy: StrategyRedact},
		{Field: "token", Strategy: StrategyRedact},
		{Field: "secret", Strategy: StrategyRedact},
		{Field: "apiKey", Strategy: StrategyRedact},
		{Field: "email", Strategy: StrategyPartial},
	}
	o.PatternRules = []PatternRule{
		{Pattern: `\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`, Strategy: StrategyRedact},
		{Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Strategy: StrategyRedact},
	}
	o.DefaultPartial = PartialOptions{ShowFirst: 2, ShowLast: 2, MaskChar: "*", MinLength: 4}
}

// Validator implements apphost.ValidatableOptions.
func (o *Options) Validator() (apphost.Validator[*Options], error) {
	return apphost.ValidatorFunc[*Options](func(o *Options) apphost.ValidationErrors {
		var errs apphost.ValidationErrors
		checkStrategy := func(field string, s Strategy, allowEmpty bool) {
			if s == "" && allowEmpty {
				return
			}
			if !slices.Contains(strategies, s) {
				errs = append(errs, apphost.ValidationError{Field: field, Message: fmt.Sprintf("unknown strategy %q", s)})
			}
		}

		checkStrategy("DefaultStrategy", o.DefaultStrategy, false)
		for i, r := range o.FieldRules {
			if r.Field == "" {
				errs = append(errs, apphost.ValidationError{Field: fmt.Sprintf("FieldRules:%d:Field", i), Message: "is required"})
			}
			checkStrategy(fmt.Sprintf("FieldRules:%d:Strategy", i), r.Strategy, true)
		}
		for i, r := range o.PatternRules {
			if _, err := regexp.Compile(r.Pattern); err != nil || r.Pattern == "" {
				errs = append(errs, apphost.ValidationError{Field: fmt.Sprintf("PatternRules:%d:Pattern", i), Message: "is not a valid regular expression"})
			}
			checkStrategy(fmt.Sprintf("PatternRules:%d:Strategy", i), r.Strategy, true)
		}
		return errs
	}), nil
}
