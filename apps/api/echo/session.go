package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/user"
)

type authApi struct {
	baseApi
	auth *authenticator
}

func registerAuthAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, auth *authenticator) {
	api := authApi{baseApi: base, auth: auth}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	sg := ag.Group("", authed...)
	sg.POST("/logout", api.logout)
	sg.GET("/session", api.session)
	sg.POST("/token-refresh", api.refreshToken)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}

	SessionResponse struct {
		State     session.State  `json:"state"`
		User      *user.User     `json:"user"`
		IsLoading bool           `json:"is_loading"`
		Error     *ErrorResponse `json:"error,omitempty"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
)

func (lr *LoginRequest) Validate(api baseApi) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return api.validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(api baseApi) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return api.validate.Struct(pr)
}

func newSessionResponse(snap session.Snapshot) SessionResponse {
	res := SessionResponse{State: snap.State, User: snap.Identity, IsLoading: snap.IsLoading}
	if snap.LastError != nil {
		res.Error = &ErrorResponse{Error: snap.LastError.Message, Code: snap.LastError.Kind.String()}
	}
	return res
}

// Handlers

// login signs in a new server session. Failures are classified by the session.
func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.baseApi); err != nil {
		return err
	}

	sessID, sess := api.auth.sessions.Create()
	snap := sess.SignIn(ctx.Request().Context(), data.Email, data.Password)
	if snap.LastError != nil {
		api.auth.sessions.Delete(sessID)
		return snap.LastError
	}

	usr, err := api.auth.usrSvc.SetLastLogin(ctx.Request().Context(), *snap.Identity)
	if err != nil {
		api.discard(ctx, sessID, sess)
		return errors.Wrap(err, "setting last login")
	}
	sess.SetIdentity(usr)

	token, err := api.auth.generateToken(api.auth.userClaims(usr, sessID))
	if err != nil {
		api.discard(ctx, sessID, sess)
		return errors.Wrap(err, "generating token")
	}

	ctx.Set(contextUserKey, usr)
	api.record(ctx, audit.ActionLogin, user.Table, usr.ID, nil, nil)
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: &usr})
}

// discard drops a signed-in session whose token could not be issued.
func (api *authApi) discard(ctx echo.Context, sessID string, sess *session.Session) {
	if snap := sess.SignOut(ctx.Request().Context()); snap.LastError != nil {
		api.logger.Warn("signing out discarded session", snap.LastError)
	}
	api.auth.sessions.Delete(sessID)
}

// logout signs the context session out; it stays signed in when the remote sign out fails.
func (api *authApi) logout(ctx echo.Context) error {
	sessID, sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	usr, _ := getContextUser(ctx)

	snap := sess.SignOut(ctx.Request().Context())
	if snap.LastError != nil {
		return snap.LastError
	}
	api.auth.sessions.Delete(sessID)

	api.record(ctx, audit.ActionLogout, user.Table, usr.ID, nil, nil)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) session(ctx echo.Context) error {
	_, sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(sess.Snapshot()))
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.baseApi); err != nil {
		return err
	}

	if err := api.auth.usrSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.auth.usrSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}
