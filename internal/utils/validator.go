// internal/utils/validator.go
package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var (
	periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	isbnPattern   = regexp.MustCompile(`^[0-9Xx-]{10,17}$`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	validate.RegisterValidation("period", validatePeriod)
	validate.RegisterValidation("isbn", validateISBN)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// Validate runs struct validation and converts failures into a field-scoped AppError.
func Validate(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	fields := GetValidationErrors(err)
	if len(fields) == 0 {
		return err
	}
	return NewValidationError("validation failed", fields)
}

func validatePeriod(fl validator.FieldLevel) bool {
	return periodPattern.MatchString(fl.Field().String())
}

func validateISBN(fl validator.FieldLevel) bool {
	return isbnPattern.MatchString(fl.Field().String())
}

func GetValidationErrors(err error) map[string]string {
	fields := make(map[string]string)

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			fields[toSnake(e.Field())] = getValidationMessage(e)
		}
	}

	return fields
}

func getValidationMessage(e validator.FieldError) string {
	field := toSnake(e.Field())
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return field + " must be at least " + e.Param()
	case "max":
		return field + " must be at most " + e.Param()
	case "gte":
		return field + " must be greater than or equal to " + e.Param()
	case "lte":
		return field + " must be less than or equal to " + e.Param()
	case "gtfield":
		return field + " must be after " + toSnake(e.Param())
	case "period":
		return field + " must be in YYYY-MM format"
	case "isbn":
		return field + " is not a valid ISBN"
	default:
		return field + " is invalid"
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
