package school

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

type School struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Address   null.String `json:"address" db:"address"`
	Phone     null.String `json:"phone" db:"phone"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

type NewSchool struct {
	Name    string      `json:"name" validate:"required,notblank,max=200"`
	Address null.String `json:"address" validate:"omitempty,max=300"`
	Phone   null.String `json:"phone" validate:"omitempty,phone"`
}

func cleanNullString(s null.String) null.String {
	if !s.Valid {
		return s
	}
	s.String = core.CleanString(s.String)
	s.Valid = s.String != ""
	return s
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Address = cleanNullString(ns.Address)
	ns.Phone = cleanNullString(ns.Phone)
	return validate.Struct(ns)
}

// UpdateSchool defines what information may be provided to modify an existing School.
// Blank fields keep their current value.
type UpdateSchool struct {
	Name    string      `json:"name" validate:"omitempty,max=200"`
	Address null.String `json:"address" validate:"omitempty,max=300"`
	Phone   null.String `json:"phone" validate:"omitempty,phone"`
}

func (us *UpdateSchool) Validate(orig School, validate *validator.Validate) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	if us.Address = cleanNullString(us.Address); !us.Address.Valid {
		us.Address = orig.Address
	}
	if us.Phone = cleanNullString(us.Phone); !us.Phone.Valid {
		us.Phone = orig.Phone
	}
	return validate.Struct(us)
}
