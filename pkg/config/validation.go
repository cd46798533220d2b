package config

import (
	"reflect"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// Validator is implemented by configuration structs with rules beyond
// `required` tags. Validate runs after tag validation succeeds. Errors
// that are already [*sserr.Error] are returned as-is; other errors are
// wrapped with [sserr.CodeValidation].
//
// Example:
//
//	func (c *Config) Validate() error {
//	    if c.MaxConns < 1 {
//	        return sserr.Newf(sserr.CodeValidation,
//	            "postgres: max conns %d must be positive", c.MaxConns)
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	err := walk(rv, "", "", func(f field) error {
		if f.sf.Tag.Get("required") == "true" && f.value.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			if _, isSSErr := sserr.AsError(err); isSSErr {
				return err
			}
			return sserr.Wrap(err, sserr.CodeValidation,
				"config: custom validation failed")
		}
	}
	return nil
}
