package user

import (
	"testing"
	"testing/fstest"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestPasswordPolicyViolation(t *testing.T) {
	LoadCommonPasswords(fstest.MapFS{
		"common.txt": {Data: []byte("Password1\nqwerty\n\n Welcome123 \n")},
	}, "common.txt", nopLogger{})

	tests := []struct {
		name  string
		pwd   string
		uname string
		email string
		want  string
	}{
		{name: "too short", pwd: "Ab1", want: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcdef 123", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumTag},
		{name: "no upper", pwd: "abcdef123", want: pwdComplexityTag},
		{name: "no digit", pwd: "Abcdefghi", want: pwdComplexityTag},
		{name: "similar to name", pwd: "TeresaTembo1", uname: "Teresa Tembo", want: pwdAttrSimTag},
		{name: "similar to email", pwd: "Tembo1tere", email: "teresa.tembo@test.cd", want: pwdAttrSimTag},
		{name: "common", pwd: "Welcome123", want: pwdNoCommonTag},
		{name: "common (case)", pwd: "pAssword1", want: pwdNoCommonTag},
		{name: "valid", pwd: "Kinshasa2021", uname: "Teresa Tembo", email: "t@test.cd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := passwordPolicyViolation(tt.pwd, tt.uname, tt.email); got != tt.want {
				t.Errorf("passwordPolicyViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaxRolePriority(t *testing.T) {
	tests := []struct {
		roles []string
		want  int
	}{
		{roles: nil, want: 0},
		{roles: []string{"unknown"}, want: 0},
		{roles: []string{RoleTeacher}, want: 10},
		{roles: []string{RoleTeacher, RoleAdmin, RoleSchool}, want: 30},
	}
	for _, tt := range tests {
		if got := MaxRolePriority(tt.roles...); got != tt.want {
			t.Errorf("MaxRolePriority(%v) = %v, want %v", tt.roles, got, tt.want)
		}
	}
}
