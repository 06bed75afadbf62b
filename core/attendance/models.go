package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

type (
	StudentRef struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// Attendance is the presence record of a student on a given day.
	Attendance struct {
		ID        string      `json:"id" db:"id"`
		StudentID string      `json:"student_id" db:"student_id"`
		Date      core.Date   `json:"date" db:"date"`
		IsPresent bool        `json:"is_present" db:"is_present"`
		Reason    null.String `json:"reason" db:"reason"`
		CreatedAt time.Time   `json:"created_at" db:"created_at"`
		UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`

		Student *StudentRef `json:"student,omitempty" db:"-"`
	}
)

// MarkAttendance records the presence of a student; marking the same day twice replaces the record.
type MarkAttendance struct {
	StudentID string      `json:"student_id" validate:"required,uuid"`
	Date      core.Date   `json:"date" validate:"required"`
	IsPresent bool        `json:"is_present"`
	Reason    null.String `json:"reason" validate:"omitempty,max=255"`
}

// clean drops the reason of a present student.
func (ma *MarkAttendance) clean() {
	ma.StudentID = core.CleanString(ma.StudentID)
	if ma.Reason.Valid {
		ma.Reason.String = core.CleanString(ma.Reason.String)
		ma.Reason.Valid = ma.Reason.String != ""
	}
	if ma.IsPresent {
		ma.Reason = null.String{}
	}
}

func (ma *MarkAttendance) Validate(validate *validator.Validate) error {
	ma.clean()
	return validate.Struct(ma)
}

type BulkMarkAttendance struct {
	Records []MarkAttendance `json:"records" validate:"required,min=1,dive"`
}

func (bm *BulkMarkAttendance) Validate(validate *validator.Validate) error {
	for i := range bm.Records {
		bm.Records[i].clean()
	}
	return validate.Struct(bm)
}
