package stash

import (
	"reflect"

	"github.com/go-playground/validator/v10"
)

// Validator is implemented by bound types that can check themselves.
// A decoded value that fails validation is treated as corrupted durable data.
type Validator interface {
	Validate() error
}

// structValidator is the shared go-playground validator instance.
var structValidator = validator.New()

// validateValue runs T's Validate method when present and, if tags is set,
// go-playground/validator struct tags.
func validateValue[T any](v T, tags bool) error {
	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return err
		}
	}
	if !tags {
		return nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	return structValidator.Struct(rv.Interface())
}
