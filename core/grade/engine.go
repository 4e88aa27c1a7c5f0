// Package grade turns subject marks into a credit-weighted CGPA.
package grade

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/cgpaboard/cgpaboard/core"
)

var (
	ErrNoCredits = errors.New("total credits must be greater than zero")

	// boundaries are checked in order, first match wins.
	boundaries = []struct {
		minMarks float64
		points   int
	}{
		{90, 10},
		{75, 9},
		{65, 8},
		{55, 7},
		{50, 6},
		{45, 5},
		{40, 4},
	}
)

const (
	MinMarks = 0
	MaxMarks = 100

	// MaxCredits bounds a single subject so the weighted sums cannot overflow.
	MaxCredits = 1000
)

// Subject is one line of a calculation request. Nil fields are "not filled in".
type Subject struct {
	Marks   *float64 `json:"marks" validate:"required,min=0,max=100"`
	Credits *int     `json:"credits" validate:"required,min=0,max=1000"`
}

func NewSubject(marks float64, credits int) Subject {
	return Subject{Marks: &marks, Credits: &credits}
}

// Point maps marks to a grade point.
func Point(marks float64) int {
	for _, b := range boundaries {
		if marks >= b.minMarks {
			return b.points
		}
	}
	return 0
}

// ComputeCGPA returns the credit-weighted average of the subjects' grade points, rounded to 2 decimals.
// A zero-credit subject is ignored; a set with no credits at all is rejected.
func ComputeCGPA(subjects []Subject) (float64, error) {
	var totalPoints, totalCredits int

	for i, sub := range subjects {
		if sub.Marks == nil || sub.Credits == nil {
			return 0, core.NewValidationError(
				fmt.Errorf("subject %d is incomplete", i+1),
				core.FieldError{Field: fmt.Sprintf("subjects[%d]", i), Error: "marks and credits are required"},
			)
		}
		marks, credits := *sub.Marks, *sub.Credits
		if marks < MinMarks || marks > MaxMarks || math.IsNaN(marks) {
			return 0, core.NewValidationError(
				fmt.Errorf("subject %d: marks out of range", i+1),
				core.FieldError{Field: fmt.Sprintf("subjects[%d].marks", i), Error: "marks must be between 0 and 100"},
			)
		}
		if credits < 0 {
			return 0, core.NewValidationError(
				fmt.Errorf("subject %d: negative credits", i+1),
				core.FieldError{Field: fmt.Sprintf("subjects[%d].credits", i), Error: "credits cannot be negative"},
			)
		}
		if credits > MaxCredits {
			return 0, core.NewValidationError(
				fmt.Errorf("subject %d: too many credits", i+1),
				core.FieldError{Field: fmt.Sprintf("subjects[%d].credits", i), Error: fmt.Sprintf("credits cannot exceed %d", MaxCredits)},
			)
		}
		totalPoints += Point(marks) * credits
		totalCredits += credits
	}

	if totalCredits == 0 {
		return 0, core.NewValidationError(ErrNoCredits, core.FieldError{Field: "subjects", Error: ErrNoCredits.Error()})
	}
	return Round2(float64(totalPoints) / float64(totalCredits)), nil
}

// Round2 rounds half away from zero to 2 decimal places.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
