package http_utils

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Validate runs v over s and renders each failed field as one message.
// A zero Errors slice means s is valid.
func Validate(v *validator.Validate, s interface{}) ValidationErrorResponse {
	err := v.Struct(s)
	if err == nil {
		return ValidationErrorResponse{}
	}

	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return ValidationErrorResponse{
			BaseResponse: NewBaseResponse(false, "invalid input"),
			Errors:       []string{err.Error()},
		}
	}

	return ValidationErrorResponse{
		BaseResponse: NewBaseResponse(false, "invalid input, validation failed"),
		Errors: lo.Map(vErrs, func(item validator.FieldError, index int) string {
			return item.Error()
		}),
	}
}
