package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// field is one settable leaf field visited by walk.
type field struct {
	value  reflect.Value
	sf     reflect.StructField
	path   string // dotted Go field path, e.g. "Postgres.URI"
	envKey string // fully prefixed env var name, empty if untagged
}

// walk visits every settable non-struct field of rv depth-first. Nested
// structs contribute their env tag to the env key of their fields.
// time.Time and other structs with unexported fields are treated as
// leaves.
func walk(rv reflect.Value, path, envPrefix string, visit func(field) error) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		fv := rv.Field(i)
		sf := rt.Field(i)
		if !fv.CanSet() {
			continue
		}

		fieldPath := joinPath(path, ".", sf.Name)
		envTag := sf.Tag.Get("env")

		if nested(fv) {
			if err := walk(fv, fieldPath, joinPath(envPrefix, "_", envTag), visit); err != nil {
				return err
			}
			continue
		}

		f := field{value: fv, sf: sf, path: fieldPath}
		if envTag != "" {
			f.envKey = joinPath(envPrefix, "_", envTag)
		}
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func nested(v reflect.Value) bool {
	if v.Kind() != reflect.Struct || v.Type() == durationType {
		return false
	}
	t := v.Type()
	for i := range t.NumField() {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func joinPath(prefix, sep, name string) string {
	switch {
	case name == "":
		return prefix
	case prefix == "":
		return name
	default:
		return prefix + sep + name
	}
}

// applyDefaults sets zero-valued fields to their envDefault tag.
func applyDefaults(rv reflect.Value) error {
	return walk(rv, "", "", func(f field) error {
		def, ok := f.sf.Tag.Lookup("envDefault")
		if !ok || !f.value.IsZero() {
			return nil
		}
		if err := setField(f.value, def); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", f.path)
		}
		return nil
	})
}

// applyEnv sets fields from the environment variables named by their
// env tags.
func applyEnv(rv reflect.Value, prefix string, lookup LookupFunc) error {
	return walk(rv, "", prefix, func(f field) error {
		if f.envKey == "" {
			return nil
		}
		val, ok := lookup(f.envKey)
		if !ok {
			return nil
		}
		if err := setField(f.value, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", f.path, f.envKey)
		}
		return nil
	})
}

// setField parses value into v. Supported kinds are string (including
// named string types such as state names), bool, signed and unsigned
// integers, float64, time.Duration and string slices (comma separated).
func setField(v reflect.Value, value string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		v.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		v.SetInt(n)

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		v.SetUint(n)

	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		v.SetFloat(n)

	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", v.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		// MakeSlice keeps named element types such as []fsm state types.
		slice := reflect.MakeSlice(v.Type(), 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			elem := reflect.New(v.Type().Elem()).Elem()
			elem.SetString(p)
			slice = reflect.Append(slice, elem)
		}
		v.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", v.Kind())
	}
	return nil
}
