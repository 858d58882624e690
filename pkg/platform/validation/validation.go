// Package validation runs struct-tag validation on request DTOs and reports
// failures as coded validation errors.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	dErrors "loankyc/pkg/domain-errors"
)

// Request size limits shared by handlers.
const (
	MaxNotesLength    = 2000
	MaxReasonLength   = 1000
	MaxReturnedItems  = 50
	MaxContacts       = 10
	MaxFileNameLength = 255
)

var (
	once     sync.Once
	validate *validator.Validate
	e164     = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if val, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := val.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return e164.MatchString(strings.TrimSpace(fl.Field().String()))
		})
	})
	return validate
}

// Struct validates v and returns a CodeValidation error naming the first
// failing field.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if ok := asValidationErrors(err, &verrs); !ok || len(verrs) == 0 {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
	}
	return dErrors.New(dErrors.CodeValidation, describe(verrs[0]))
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func describe(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, e.Param())
	case "phone":
		return field + " must be an E.164 phone number"
	case "uuid":
		return field + " must be a UUID"
	}
	return fmt.Sprintf("%s failed %s validation", field, e.Tag())
}
