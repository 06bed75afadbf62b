package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/class"
	"github.com/trezcool/escola/core/notification"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/settings"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/teacher"
	"github.com/trezcool/escola/core/user"
)

var (
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errSessionExpired     = echo.NewHTTPError(http.StatusUnauthorized, "session expired")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired     = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden      = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound       = echo.NewHTTPError(http.StatusNotFound, "not found")

	notFoundErrs = []error{
		user.ErrNotFound,
		school.ErrNotFound,
		teacher.ErrNotFound,
		class.ErrNotFound,
		student.ErrNotFound,
		notification.ErrNotFound,
		settings.ErrNotFound,
	}

	sessionErrCodes = map[session.Kind]int{
		session.GenericAuthError:   http.StatusBadRequest,
		session.InvalidCredentials: http.StatusBadRequest,
		session.InvalidEmailFormat: http.StatusBadRequest,
		session.IdentityNotFound:   http.StatusBadRequest,
		session.AccountInactive:    http.StatusForbidden,
		session.RateLimited:        http.StatusTooManyRequests,
		session.ConnectionError:    http.StatusServiceUnavailable,
		session.SignOutError:       http.StatusBadGateway,
	}
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func isNotFound(err error) bool {
	for _, nfErr := range notFoundErrs {
		if err == nfErr {
			return true
		}
	}
	return false
}

func fieldErrors(flds []core.FieldError) map[string]string {
	fldErrs := make(map[string]string, len(flds))
	for _, fErr := range flds {
		fldErrs[fErr.Field] = fErr.Error
	}
	return fldErrs
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				message = fieldErrors(origErr.Fields)
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *session.Error:
			code = sessionErrCodes[origErr.Kind]
			if origErr.Field != "" {
				message = fieldErrors(origErr.ValidationError().Fields)
			} else {
				message = ErrorResponse{Error: origErr.Message, Code: origErr.Kind.String()}
			}
		default:
			if isNotFound(cause) {
				code = http.StatusNotFound
				message = cause.Error()
				break
			}
			if core.IsConnectionError(err) {
				code = http.StatusServiceUnavailable
				message = ErrorResponse{Error: "could not reach the server", Code: session.ConnectionError.String()}
				logger.Warn("backend unreachable", err)
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			usr, _ := ctx.Get(contextUserKey).(user.User)
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = ErrorResponse{Error: m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
