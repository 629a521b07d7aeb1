package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/facevote-api/internal/domain"
	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. Field names in messages are the
// JSON names clients send.
var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return val
}

// Struct validates s using its validate tags. Failures wrap domain.ErrBadRequest.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrBadRequest)
	}
	return nil
}
