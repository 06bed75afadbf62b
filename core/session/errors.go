package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

// Kind classifies the failures surfaced to the user.
type Kind int

const (
	GenericAuthError Kind = iota
	InvalidCredentials
	InvalidEmailFormat
	RateLimited
	ConnectionError
	IdentityNotFound
	AccountInactive
	SignOutError
)

var kindNames = map[Kind]string{
	GenericAuthError:   "generic_auth_error",
	InvalidCredentials: "invalid_credentials",
	InvalidEmailFormat: "invalid_email_format",
	RateLimited:        "rate_limited",
	ConnectionError:    "connection_error",
	IdentityNotFound:   "identity_not_found",
	AccountInactive:    "account_inactive",
	SignOutError:       "sign_out_error",
}

var kindMessages = map[Kind]string{
	GenericAuthError:   "authentication failed, please try again",
	InvalidCredentials: "invalid email or password",
	InvalidEmailFormat: "enter a valid email address",
	RateLimited:        "too many attempts, please wait a moment and try again",
	ConnectionError:    "could not reach the server, check your connection",
	IdentityNotFound:   "no user profile is associated with this account",
	AccountInactive:    "account deactivated",
	SignOutError:       "sign out failed, please try again",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[GenericAuthError]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a classified authentication failure. Message is meant for the user;
// Field names the form field the error belongs to, if any.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func newError(kind Kind, err error) *Error {
	e := &Error{Kind: kind, Message: kindMessages[kind], Err: err}
	if kind == InvalidEmailFormat {
		e.Field = "email"
	}
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationError maps e to form errors: a field error when Field is set, a form-wide error otherwise.
func (e *Error) ValidationError() *core.ValidationError {
	vErr := &core.ValidationError{Err: errors.New(e.Message)}
	if e.Field != "" {
		vErr.Fields = []core.FieldError{{Field: e.Field, Error: e.Message}}
	}
	return vErr
}

// IsKind reports whether err is a session Error of kind k.
func IsKind(err error, k Kind) bool {
	var sErr *Error
	return errors.As(err, &sErr) && sErr.Kind == k
}

var (
	rateLimitCodes   = []string{"over_request_rate_limit", "over_email_send_rate_limit", "rate_limited", "too_many_requests"}
	emailFormatCodes = []string{"email_address_invalid", "invalid_email"}
)

// classify maps a sign-in failure onto a Kind.
func classify(err error) Kind {
	if err == nil {
		return GenericAuthError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || core.IsConnectionError(err) {
		return ConnectionError
	}

	var rErr *core.RemoteError
	if !errors.As(err, &rErr) {
		return GenericAuthError
	}

	code := strings.ToLower(rErr.Code)
	msg := strings.ToLower(rErr.Message)
	switch {
	case rErr.StatusCode == http.StatusTooManyRequests || core.Contains(rateLimitCodes, code) ||
		strings.Contains(msg, "rate limit"):
		return RateLimited
	case (rErr.StatusCode == http.StatusBadRequest || rErr.StatusCode == http.StatusUnprocessableEntity) &&
		(core.Contains(emailFormatCodes, code) || isEmailFormatMessage(msg)):
		return InvalidEmailFormat
	case rErr.StatusCode >= 400 && rErr.StatusCode < 500:
		return InvalidCredentials
	}
	return GenericAuthError
}

func isEmailFormatMessage(msg string) bool {
	return strings.Contains(msg, "email") &&
		(strings.Contains(msg, "invalid format") || strings.Contains(msg, "valid email") || strings.Contains(msg, "is invalid"))
}
