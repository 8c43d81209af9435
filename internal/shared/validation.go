package shared

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the process-wide struct validator. Field names are taken
// from json tags so error keys match request payloads.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateStruct runs struct tag validation and converts failures into a
// ValidationError.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if idx := strings.IndexByte(field, '.'); idx >= 0 {
			field = field[idx+1:]
		}
		out.Add(field, "failed %s%s", fe.Tag(), paramSuffix(fe.Param()))
	}
	return out
}

func paramSuffix(param string) string {
	if param == "" {
		return ""
	}
	return "=" + param
}
