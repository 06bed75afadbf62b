package settings

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

// Setting is a system-wide key/value pair.
type Setting struct {
	ID          string      `json:"id" db:"id"`
	Key         string      `json:"key" db:"key"`
	Value       string      `json:"value" db:"value"`
	Description string      `json:"description" db:"description"`
	UpdatedBy   null.String `json:"updated_by" db:"updated_by"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

type UpdateSetting struct {
	Key         string `json:"key" validate:"required,alphanum_,max=100"`
	Value       string `json:"value" validate:"required"`
	Description string `json:"description" validate:"max=255"`
}

func (us *UpdateSetting) Validate(validate *validator.Validate) error {
	us.Key = core.CleanString(us.Key, true /* lower */)
	us.Value = core.CleanString(us.Value)
	us.Description = core.CleanString(us.Description)
	return validate.Struct(us)
}
