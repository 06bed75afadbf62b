package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/user"
)

// roleMiddleware lets through the users having one of roles.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if usr.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin)
}

// staffMiddleware lets through admins and school operators.
func staffMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin, user.RoleSchool)
}

// canAccessSchool reports whether usr may see the records of a school: admins see all schools,
// other users only their own.
func canAccessSchool(usr user.User, schoolID string) bool {
	return usr.IsAdmin() || usr.BelongsTo(schoolID)
}

// checkSchoolAccess hides the records of the schools usr cannot access.
func checkSchoolAccess(ctx echo.Context, schoolID string) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !canAccessSchool(usr, schoolID) {
		return errHttpNotFound
	}
	return nil
}
