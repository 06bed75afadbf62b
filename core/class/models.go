package class

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/escola/core"
)

type Class struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	SchoolID  string    `json:"school_id" db:"school_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type NewClass struct {
	Name     string `json:"name" validate:"required,notblank,max=100"`
	SchoolID string `json:"school_id" validate:"required,uuid"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.SchoolID = core.CleanString(nc.SchoolID)
	return validate.Struct(nc)
}

// UpdateClass holds the new values of a Class; blank fields keep their current value.
type UpdateClass struct {
	Name     string `json:"name" validate:"omitempty,max=100"`
	SchoolID string `json:"school_id" validate:"omitempty,uuid"`
}

func (uc *UpdateClass) Validate(orig Class, validate *validator.Validate) error {
	if uc.Name = core.CleanString(uc.Name); uc.Name == "" {
		uc.Name = orig.Name
	}
	if uc.SchoolID = core.CleanString(uc.SchoolID); uc.SchoolID == "" {
		uc.SchoolID = orig.SchoolID
	}
	return validate.Struct(uc)
}

type classTeacher struct {
	ClassID   string `db:"class_id"`
	TeacherID string `db:"teacher_id"`
}
