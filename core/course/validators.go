package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/feedback"
)

var (
	toneTag  = "tone"
	toneText = "tone must be one of neutral, positive, urgent, direct, aggressive, supportive, collaborative or informative"
)

// RegisterValidators registers the course validators & their translations.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(toneTag, toneValidation)
	core.RegisterCustomTranslation(validate, translator, toneTag, toneText)
}

// toneValidation accepts any label ParseTone knows.
func toneValidation(fl validator.FieldLevel) bool {
	return feedback.ParseTone(fl.Field().String()).Valid()
}
