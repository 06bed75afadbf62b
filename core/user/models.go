package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

// Roles
const (
	RoleAdmin   = "admin"   // platform administrator
	RoleSchool  = "school"  // school operator
	RoleTeacher = "teacher" // teacher of a school
)

var (
	AllRoles = []string{RoleAdmin, RoleSchool, RoleTeacher}

	rolePriorities = map[string]int{
		RoleAdmin:   30,
		RoleSchool:  20,
		RoleTeacher: 10,
	}

	Roles = []Role{
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "School", Value: RoleSchool},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles ...string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the identity record of an authenticated account. Its ID is the account ID.
type User struct {
	ID        string      `json:"id" db:"id"`
	FullName  string      `json:"full_name" db:"full_name"`
	Email     string      `json:"email" db:"email"`
	Role      string      `json:"role" db:"role"`
	SchoolID  null.String `json:"school_id" db:"school_id"`
	Active    bool        `json:"active" db:"active"`
	LastLogin null.Time   `json:"last_login" db:"last_login"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsSchool() bool  { return u.Role == RoleSchool }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }

// HasAnyRole reports whether the user has one of roles. Any role matches an empty list.
func (u User) HasAnyRole(roles ...string) bool {
	return len(roles) == 0 || core.Contains(roles, u.Role)
}

// BelongsTo reports whether the user is attached to the school.
func (u User) BelongsTo(schoolID string) bool {
	return u.SchoolID.Valid && u.SchoolID.String == schoolID
}

// NewUser contains information needed to create a new User.
// A temporary password is generated when Password is empty.
type NewUser struct {
	FullName        string      `json:"full_name" validate:"required,min=3,max=100"`
	Email           string      `json:"email" validate:"required,email"`
	Role            string      `json:"role" validate:"required,userrole"`
	SchoolID        null.String `json:"school_id" validate:"omitempty,uuid"`
	Password        string      `json:"password"`
	PasswordConfirm string      `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (nu *NewUser) Clean() {
	nu.FullName = core.CleanString(nu.FullName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	if nu.SchoolID.Valid {
		nu.SchoolID.String = core.CleanString(nu.SchoolID.String)
		nu.SchoolID.Valid = nu.SchoolID.String != ""
	}
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Clean()
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FullName        string      `json:"full_name" validate:"omitempty,min=3,max=100"`
	Email           string      `json:"email" validate:"omitempty,email"`
	Role            string      `json:"role" validate:"omitempty,userrole"`
	SchoolID        null.String `json:"school_id" validate:"omitempty,uuid"`
	Active          *bool       `json:"active"`
	Password        string      `json:"password"`
	PasswordConfirm string      `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

// Validate fills blank fields from origUsr before validating.
func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	if name := core.CleanString(uu.FullName); name != "" {
		uu.FullName = name
	} else {
		uu.FullName = origUsr.FullName
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if role := core.CleanString(uu.Role, true /* lower */); role != "" {
		uu.Role = role
	} else {
		uu.Role = origUsr.Role
	}

	if !uu.SchoolID.Valid {
		uu.SchoolID = origUsr.SchoolID
	}

	return validate.Struct(uu)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	SchoolID string   `query:"school_id"`
	Active   *bool    `query:"active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.SchoolID == "" && qf.Active == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.SchoolID = core.CleanString(qf.SchoolID)
}
