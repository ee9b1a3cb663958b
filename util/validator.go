package util

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var Validate *validator.Validate

var squarePattern = regexp.MustCompile(`^[a-h][1-8]$`)

// InitValidator builds the shared validator and registers the custom tags:
//
//	square   - algebraic board square, a1..h8
//	seatpref - white, black or random
func InitValidator() {
	Validate = validator.New()

	Validate.RegisterValidation("square", func(fl validator.FieldLevel) bool {
		return squarePattern.MatchString(fl.Field().String())
	})

	Validate.RegisterValidation("seatpref", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "white", "black", "random":
			return true
		}
		return false
	})
}

func init() {
	InitValidator()
}
