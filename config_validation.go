package apphost

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/apphost/config"
)

const (
	tagDefault  = "default"
	tagRequired = "required"
)

// ProcessOptionsDefaults applies `default:"value"` tags to zero-valued fields of the
// struct behind options. It runs on a fresh options value before configuration binding,
// so bound values always win over tag defaults.
//
//	type Options struct {
//	    Host     string            `default:"localhost"`
//	    Port     int               `default:"5432"`
//	    Timeout  time.Duration     `default:"5s"`
//	    Features []string          `default:"a,b"`
//	    Labels   map[string]string `default:"{\"team\":\"core\"}"`
//	}
func ProcessOptionsDefaults(options any) error {
	v, err := structValue(options)
	if err != nil {
		return err
	}
	return processStructDefaults(v)
}

func structValue(options any) (reflect.Value, error) {
	if options == nil {
		return reflect.Value{}, ErrOptionsNotPointer
	}
	v := reflect.ValueOf(options)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, ErrOptionsNotPointer
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrOptionsNotPointer
	}
	return v, nil
}

func processStructDefaults(v reflect.Value) error {
	for i := range v.NumField() {
		field, sf := v.Field(i), v.Type().Field(i)

		switch {
		case isNestedStruct(field.Type()):
			if err := processStructDefaults(field); err != nil {
				return err
			}
			continue
		case field.Kind() == reflect.Ptr && isNestedStruct(field.Type().Elem()):
			// Nil struct pointers stay nil.
			if !field.IsNil() {
				if err := processStructDefaults(field.Elem()); err != nil {
					return err
				}
			}
			continue
		}

		raw, ok := sf.Tag.Lookup(tagDefault)
		if !ok || !field.CanSet() || !isZeroValue(field) {
			continue
		}
		if err := setDefaultValue(field, raw); err != nil {
			return fmt.Errorf("default for %s: %w", sf.Name, err)
		}
	}
	return nil
}

// isNestedStruct reports whether t is walked for tags rather than set as a value.
func isNestedStruct(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t != reflect.TypeFor[time.Time]()
}

// requiredFieldErrors reports every `required:"true"` field still holding its zero value.
func requiredFieldErrors(options any) ValidationErrors {
	v, err := structValue(options)
	if err != nil {
		return nil
	}
	var errs ValidationErrors
	validateRequiredFields(v, "", &errs)
	return errs
}

func validateRequiredFields(v reflect.Value, prefix string, errs *ValidationErrors) {
	t := v.Type()

	for i := range v.NumField() {
		field := v.Field(i)
		fieldType := t.Field(i)
		fieldName := fieldType.Name
		switch {
		case fieldType.Anonymous:
			fieldName = prefix
		case prefix != "":
			fieldName = prefix + "." + fieldName
		}

		if isNestedStruct(fieldType.Type) {
			validateRequiredFields(field, fieldName, errs)
			continue
		}

		if !fieldType.IsExported() {
			continue
		}

		if field.Kind() == reflect.Ptr && isNestedStruct(field.Type().Elem()) {
			if !field.IsNil() {
				validateRequiredFields(field.Elem(), fieldName, errs)
			} else if isFieldRequired(&fieldType) {
				*errs = append(*errs, ValidationError{Field: fieldName, Message: ErrRequiredFieldMissing.Error()})
			}
			continue
		}

		if isFieldRequired(&fieldType) && isZeroValue(field) {
			*errs = append(*errs, ValidationError{Field: fieldName, Message: ErrRequiredFieldMissing.Error()})
		}
	}
}

func isFieldRequired(field *reflect.StructField) bool {
	required, exists := field.Tag.Lookup(tagRequired)
	return exists && required == "true"
}

func isZeroValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

// setDefaultValue parses a tag default the way configuration values are bound. Slice
// and map defaults written as JSON are decoded as JSON.
func setDefaultValue(field reflect.Value, raw string) error {
	if isJSONDefault(field.Kind(), raw) {
		target := reflect.New(field.Type())
		if err := json.Unmarshal([]byte(raw), target.Interface()); err != nil {
			return fmt.Errorf("failed to unmarshal JSON default: %w", err)
		}
		field.Set(target.Elem())
		return nil
	}

	err := config.SetValue(field, raw)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, strconv.ErrRange):
		return fmt.Errorf("%w: %q for %s", ErrDefaultValueOverflows, raw, field.Type())
	case errors.Is(err, config.ErrUnsupportedFieldType):
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Kind())
	default:
		return err
	}
}

func isJSONDefault(kind reflect.Kind, raw string) bool {
	raw = strings.TrimSpace(raw)
	switch kind {
	case reflect.Map:
		return true
	case reflect.Slice:
		return strings.HasPrefix(raw, "[")
	default:
		return false
	}
}
