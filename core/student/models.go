package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/escola/core"
)

type Student struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	ClassID   string    `json:"class_id" db:"class_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type NewStudent struct {
	Name    string `json:"name" validate:"required,notblank,max=100"`
	ClassID string `json:"class_id" validate:"required,uuid"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.ClassID = core.CleanString(ns.ClassID)
	return validate.Struct(ns)
}

// UpdateStudent holds the new values of a Student; blank fields keep their current value.
type UpdateStudent struct {
	Name    string `json:"name" validate:"omitempty,max=100"`
	ClassID string `json:"class_id" validate:"omitempty,uuid"`
}

func (us *UpdateStudent) Validate(orig Student, validate *validator.Validate) error {
	if us.Name = core.CleanString(us.Name); us.Name == "" {
		us.Name = orig.Name
	}
	if us.ClassID = core.CleanString(us.ClassID); us.ClassID == "" {
		us.ClassID = orig.ClassID
	}
	return validate.Struct(us)
}
