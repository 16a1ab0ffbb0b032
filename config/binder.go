package config

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

const tagConfig = "config"

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	timeType            = reflect.TypeOf(time.Time{})
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// basicTypes maps a kind to the predeclared type cast converts into; named types are
// converted from it afterwards.
var basicTypes = map[reflect.Kind]reflect.Type{
	reflect.String:  reflect.TypeOf(""),
	reflect.Bool:    reflect.TypeOf(false),
	reflect.Int:     reflect.TypeOf(int(0)),
	reflect.Int8:    reflect.TypeOf(int8(0)),
	reflect.Int16:   reflect.TypeOf(int16(0)),
	reflect.Int32:   reflect.TypeOf(int32(0)),
	reflect.Int64:   reflect.TypeOf(int64(0)),
	reflect.Uint:    reflect.TypeOf(uint(0)),
	reflect.Uint8:   reflect.TypeOf(uint8(0)),
	reflect.Uint16:  reflect.TypeOf(uint16(0)),
	reflect.Uint32:  reflect.TypeOf(uint32(0)),
	reflect.Uint64:  reflect.TypeOf(uint64(0)),
	reflect.Float32: reflect.TypeOf(float32(0)),
	reflect.Float64: reflect.TypeOf(float64(0)),
}

// bind populates the struct behind target from s. Fields are matched by their `config`
// tag or, without one, by field name, ignoring case. Embedded structs are flattened into
// the parent section. Paths that are absent leave the field untouched, so values set
// before binding act as defaults.
func bind(s *section, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return ErrBindTargetNotPointer
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return ErrBindTargetNotStruct
	}
	return bindStruct(s, rv)
}

func bindStruct(s *section, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)

		if !sf.IsExported() && !sf.Anonymous {
			continue
		}

		tag := sf.Tag.Get(tagConfig)
		if tag == "-" {
			continue
		}

		if sf.Anonymous && tag == "" {
			if err := bindEmbedded(s, field); err != nil {
				return err
			}
			continue
		}
		if !field.CanSet() {
			continue
		}

		name := sf.Name
		if tag != "" {
			name = tag
		}
		child := &section{data: s.data, path: JoinPath(s.path, name)}
		if err := bindValue(child, field); err != nil {
			return fmt.Errorf("%s: %w", child.path, err)
		}
	}
	return nil
}

func bindEmbedded(s *section, field reflect.Value) error {
	switch {
	case field.Kind() == reflect.Struct:
		return bindStruct(s, field)
	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			if !field.CanSet() || !s.Exists() {
				return nil
			}
			field.Set(reflect.New(field.Type().Elem()))
		}
		return bindStruct(s, field.Elem())
	default:
		return nil
	}
}

func bindValue(s *section, field reflect.Value) error {
	if !s.Exists() {
		return nil
	}

	if raw, ok := s.value(); ok && isScalarTarget(field) {
		return setScalar(field, raw)
	}

	switch field.Kind() {
	case reflect.Ptr:
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return bindValue(s, field.Elem())
	case reflect.Struct:
		return bindStruct(s, field)
	case reflect.Slice:
		return bindSlice(s, field)
	case reflect.Map:
		return bindMap(s, field)
	case reflect.Interface:
		if raw, ok := s.value(); ok && field.NumMethod() == 0 {
			field.Set(reflect.ValueOf(raw))
		}
		return nil
	default:
		// A scalar field whose path only has children cannot be bound.
		return nil
	}
}

// isScalarTarget reports whether a single string value can be assigned to field.
func isScalarTarget(field reflect.Value) bool {
	t := field.Type()
	if t == durationType || t == timeType {
		return true
	}
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Interface, reflect.Chan, reflect.Func,
		reflect.UnsafePointer, reflect.Array:
		return false
	case reflect.Ptr:
		return isScalarTarget(reflect.New(t.Elem()).Elem())
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Struct && t.Elem().Kind() != reflect.Map
	default:
		return true
	}
}

// SetValue converts raw with the rules used for bound values and stores it in field.
// Slices take a comma separated list.
func SetValue(field reflect.Value, raw string) error {
	return setScalar(field, raw)
}

func setScalar(field reflect.Value, raw string) error {
	t := field.Type()

	if t.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(t.Elem()))
		}
		return setScalar(field.Elem(), raw)
	}

	if reflect.PointerTo(t).Implements(textUnmarshalerType) && field.CanAddr() {
		u, _ := field.Addr().Interface().(encoding.TextUnmarshaler)
		if err := u.UnmarshalText([]byte(raw)); err != nil {
			return fmt.Errorf("%w: %q to %s: %w", ErrBindConversion, raw, t, err)
		}
		return nil
	}

	switch t {
	case durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %q to %s: %w", ErrBindConversion, raw, t, err)
		}
		field.SetInt(int64(d))
		return nil
	case timeType:
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("%w: %q to %s: %w", ErrBindConversion, raw, t, err)
		}
		field.Set(reflect.ValueOf(ts))
		return nil
	}

	if t.Kind() == reflect.Slice {
		return setDelimited(field, raw)
	}

	base, ok := basicTypes[t.Kind()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFieldType, t)
	}
	converted, err := cast.FromType(raw, base)
	if err != nil {
		return fmt.Errorf("%w: %q to %s: %w", ErrBindConversion, raw, t, err)
	}
	cv := reflect.ValueOf(converted)
	if !cv.Type().ConvertibleTo(t) {
		return fmt.Errorf("%w: %q to %s", ErrBindConversion, raw, t)
	}
	field.Set(cv.Convert(t))
	return nil
}

// setDelimited binds a comma separated value into a slice.
func setDelimited(field reflect.Value, raw string) error {
	parts := strings.Split(raw, ",")
	out := reflect.MakeSlice(field.Type(), 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := setScalar(elem, p); err != nil {
			return err
		}
		out = reflect.Append(out, elem)
	}
	field.Set(out)
	return nil
}

func bindSlice(s *section, field reflect.Value) error {
	children := s.Children()
	if len(children) == 0 {
		return nil
	}

	out := reflect.MakeSlice(field.Type(), 0, len(children))
	for _, c := range children {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := bindValue(c.(*section), elem); err != nil {
			return err
		}
		out = reflect.Append(out, elem)
	}
	field.Set(out)
	return nil
}

func bindMap(s *section, field reflect.Value) error {
	t := field.Type()
	if t.Key().Kind() != reflect.String {
		return fmt.Errorf("%w: %s", ErrUnsupportedFieldType, t)
	}
	if field.IsNil() {
		field.Set(reflect.MakeMap(t))
	}
	for _, c := range s.Children() {
		elem := reflect.New(t.Elem()).Elem()
		if existing := field.MapIndex(reflect.ValueOf(c.Key()).Convert(t.Key())); existing.IsValid() {
			elem.Set(existing)
		}
		if err := bindValue(c.(*section), elem); err != nil {
			return err
		}
		field.SetMapIndex(reflect.ValueOf(c.Key()).Convert(t.Key()), elem)
	}
	return nil
}
