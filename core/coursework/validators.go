package coursework

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	courseKindTag  = "coursekind"
	courseKindText = "kind must be one of quiz, assignment"

	statusListTag  = "statuslist"
	statusListText = "status must be a comma separated list of upcoming, active, in-progress, completed, graded, past-due"
)

// InitValidators registers the coursework validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(courseKindTag, courseKindValidation)
	core.RegisterCustomTranslation(validate, translator, courseKindTag, courseKindText)

	_ = validate.RegisterValidation(statusListTag, statusListValidation)
	core.RegisterCustomTranslation(validate, translator, statusListTag, statusListText)
}

func courseKindValidation(fl validator.FieldLevel) bool {
	return Kind(fl.Field().String()).IsValid()
}

func statusListValidation(fl validator.FieldLevel) bool {
	_, err := ParseStatuses(fl.Field().String())
	return err == nil
}

// StatusQuery is the status filter of student listings, e.g. ?status=active,past-due
type StatusQuery struct {
	Status string `query:"status" json:"status" validate:"omitempty,statuslist"`
}
