package teacher

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/escola/core"
)

type (
	UserRef struct {
		ID       string `json:"id" db:"id"`
		FullName string `json:"full_name" db:"full_name"`
		Email    string `json:"email" db:"email"`
	}

	SchoolRef struct {
		ID   string `json:"id" db:"id"`
		Name string `json:"name" db:"name"`
	}

	// Teacher links a user account to the school it teaches at.
	Teacher struct {
		ID        string    `json:"id" db:"id"`
		UserID    string    `json:"user_id" db:"user_id"`
		SchoolID  string    `json:"school_id" db:"school_id"`
		CreatedAt time.Time `json:"created_at" db:"created_at"`
		UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

		User   *UserRef   `json:"user,omitempty" db:"-"`
		School *SchoolRef `json:"school,omitempty" db:"-"`
	}
)

// RegisterTeacher contains what is needed to create a teacher and its user account.
type RegisterTeacher struct {
	FullName        string `json:"full_name" validate:"required,min=3,max=100"`
	Email           string `json:"email" validate:"required,email"`
	SchoolID        string `json:"school_id" validate:"required,uuid"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (rt *RegisterTeacher) Validate(validate *validator.Validate) error {
	rt.FullName = core.CleanString(rt.FullName)
	rt.Email = core.CleanString(rt.Email, true /* lower */)
	rt.SchoolID = core.CleanString(rt.SchoolID)
	return validate.Struct(rt)
}

type UpdateTeacher struct {
	SchoolID string `json:"school_id" validate:"required,uuid"`
}

func (ut *UpdateTeacher) Validate(validate *validator.Validate) error {
	ut.SchoolID = core.CleanString(ut.SchoolID)
	return validate.Struct(ut)
}
