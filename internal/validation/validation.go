// Package validation checks user input structs and renders the failures
// as user-facing messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var Validate *validator.Validate

var (
	nonBlank = regexp.MustCompile(`\S`)
	// letters, digits and @/./+/-/_
	usernameChars = regexp.MustCompile(`^[\p{L}\p{N}@.+\-_]+$`)
)

func init() {
	Validate = validator.New()

	Validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})

	// "2024-12"
	_ = Validate.RegisterValidation("yearmonth", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01", fl.Field().String())
		return err == nil
	})

	_ = Validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return nonBlank.MatchString(fl.Field().String())
	})

	_ = Validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameChars.MatchString(fl.Field().String())
	})
}

// Struct validates v using its `validate` tags.
func Struct(v any) error {
	return Validate.Struct(v)
}

// Messages turns a validation error into one message per failing field.
// Errors of other kinds are returned as a single message.
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, message(fe))
	}
	return out
}

// Error joins Messages into one error, or returns nil.
func Error(err error) error {
	msgs := Messages(err)
	if len(msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(msgs, " "))
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("O campo %s é obrigatório.", field)
	case "email":
		return fmt.Sprintf("Informe um e-mail válido em %s.", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s deve ter pelo menos %s caracteres.", field, fe.Param())
		}
		return fmt.Sprintf("%s deve ser no mínimo %s.", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s deve ter no máximo %s caracteres.", field, fe.Param())
		}
		return fmt.Sprintf("%s deve ser no máximo %s.", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s deve ser maior ou igual a %s.", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s deve ser maior que %s.", field, fe.Param())
	case "eqfield":
		return "As senhas não conferem."
	case "yearmonth":
		return fmt.Sprintf("%s deve estar no formato AAAA-MM.", field)
	case "username":
		return fmt.Sprintf("%s aceita apenas letras, números e @/./+/-/_.", field)
	default:
		return fmt.Sprintf("%s é inválido.", field)
	}
}
