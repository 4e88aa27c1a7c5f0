package account

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/cgpaboard/cgpaboard/core"
	"github.com/cgpaboard/cgpaboard/core/grade"
)

var (
	semesterTag  = "semester"
	semesterText = "semester must be 4 or 5"
)

// InitValidators registers the account validators on top of core.InitValidators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(semesterTag, semesterValidation)
	core.RegisterCustomTranslation(validate, translator, semesterTag, semesterText)
}

func semesterValidation(fl validator.FieldLevel) bool {
	if t, ok := fl.Field().Interface().(Term); ok {
		return t.Valid()
	}
	return false
}

// SaveActual carries an actual CGPA entered by its owner.
// A missing semester means semester 5.
type SaveActual struct {
	ActualCGPA *float64 `json:"actualCGPA" validate:"required,min=0,max=10"`
	Semester   Term     `json:"semester" validate:"semester"`
}

func (sa *SaveActual) Validate(validate *validator.Validate) error {
	if sa.Semester == 0 {
		sa.Semester = Term5
	}
	return validate.Struct(sa)
}

// SubmitSubjects computes an actual CGPA from marks and records it.
type SubmitSubjects struct {
	Subjects []grade.Subject `json:"subjects" validate:"dive"`
	Semester Term            `json:"semester" validate:"semester"`
}

func (ss *SubmitSubjects) Validate(validate *validator.Validate) error {
	if ss.Semester == 0 {
		ss.Semester = Term5
	}
	return validate.Struct(ss)
}

// Calculate is a stateless CGPA computation.
type Calculate struct {
	Subjects []grade.Subject `json:"subjects" validate:"dive"`
}

func (c *Calculate) Validate(validate *validator.Validate) error {
	return validate.Struct(c)
}
