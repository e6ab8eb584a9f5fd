package shared

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their `form` tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateStruct runs v against s and converts failures into a ValidationError.
// It returns nil when s is valid.
func ValidateStruct(v *validator.Validate, s any) *ValidationError {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewValidationError("general", err.Error())
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		out.Add(fe.Field(), describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", label)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", label)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("The %s field must have at least %s items.", label, fe.Param())
		}
		return fmt.Sprintf("The %s field must be at least %s characters.", label, fe.Param())
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", label)
	default:
		return fmt.Sprintf("The %s field is invalid.", label)
	}
}
