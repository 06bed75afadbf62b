package echoapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/user"
	"github.com/trezcool/escola/storage/database/sqlx"
	"github.com/trezcool/escola/tests"
)

func TestAuthApi_Login(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	inactive := app.createUser(t, "Inactive", "inactive@test.cd", user.RoleAdmin, "")
	app.deactivate(t, inactive)

	// an account whose identity record was never created
	accounts := sqlxrepos.NewAuthenticator(app.db, time.Hour)
	_, err := accounts.CreateAccount(context.Background(), "orphan@test.cd", testPassword)
	require.NoError(t, err)

	tests := []httpTest{
		{
			name:     "missing fields",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, LoginRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"email":    "this field is required",
				"password": "this field is required",
			}),
		},
		{
			name:     "invalid email format",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, LoginRequest{Email: "not-an-email", Password: testPassword}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": "enter a valid email address"}),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, LoginRequest{Email: admin.Email, Password: "wrong"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, ErrorResponse{Error: "invalid email or password", Code: "invalid_credentials"}),
		},
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, LoginRequest{Email: "nobody@test.cd", Password: testPassword}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, ErrorResponse{Error: "invalid email or password", Code: "invalid_credentials"}),
		},
		{
			name:     "inactive account",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, LoginRequest{Email: inactive.Email, Password: testPassword}),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, ErrorResponse{Error: "account deactivated", Code: "account_inactive"}),
		},
		{
			name:     "no identity record",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, LoginRequest{Email: "orphan@test.cd", Password: testPassword}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, ErrorResponse{
				Error: "no user profile is associated with this account",
				Code:  "identity_not_found",
			}),
		},
	}
	app.run(t, tests)

	assert.Equal(t, 0, app.sessions.Len(), "failed sign ins must not keep sessions")

	t.Run("success", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/auth/login", "", marshallObj(t, LoginRequest{Email: " ADMIN@test.cd ", Password: testPassword}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		unmarshall(t, rec, &res)
		assert.NotEmpty(t, res.Token)
		require.NotNil(t, res.User)
		assert.Equal(t, admin.ID, res.User.ID)
		assert.True(t, res.User.LastLogin.Valid)
		assert.Equal(t, 1, app.sessions.Len())

		page, err := app.auditSvc.Query(context.Background(), audit.QueryFilter{Action: audit.ActionLogin})
		require.NoError(t, err)
		require.Len(t, page.Logs, 1)
		assert.Equal(t, admin.ID, page.Logs[0].EntityID)
		assert.Equal(t, admin.ID, page.Logs[0].UserID.String)
	})
}

func TestAuthApi_Login_lastLoginFailure(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	_, err := app.db.Exec(`CREATE TRIGGER users_lock_last_login BEFORE UPDATE OF last_login ON users
BEGIN SELECT RAISE(ABORT, 'users are locked'); END`)
	require.NoError(t, err)

	rec := app.do(http.MethodPost, "/v1/auth/login", "", marshallObj(t, LoginRequest{Email: admin.Email, Password: testPassword}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())

	assert.Equal(t, 0, app.sessions.Len())
	var remoteSessions int
	require.NoError(t, app.db.Get(&remoteSessions, "SELECT COUNT(*) FROM auth_sessions"))
	assert.Zero(t, remoteSessions, "the remote session must be signed out")
}

func TestAuthApi_Session(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	token := app.login(t, admin)

	t.Run("no token", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/auth/session", "")
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)}, rec)
	})

	t.Run("signed in", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/auth/session", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			State     string     `json:"state"`
			User      *user.User `json:"user"`
			IsLoading bool       `json:"is_loading"`
		}
		unmarshall(t, rec, &res)
		assert.Equal(t, session.SignedIn.String(), res.State)
		require.NotNil(t, res.User)
		assert.Equal(t, admin.Email, res.User.Email)
		assert.False(t, res.IsLoading)
	})
}

func TestAuthApi_Logout(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	token := app.login(t, admin)
	other := app.login(t, admin)
	require.Equal(t, 2, app.sessions.Len())

	rec := app.do(http.MethodPost, "/v1/auth/logout", token)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, 1, app.sessions.Len())

	tests := []httpTest{
		{
			name:     "signed out token",
			path:     "/v1/auth/session",
			token:    token,
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, ErrorResponse{Error: "session expired"}),
		},
		{
			name:     "other session",
			path:     "/v1/auth/session",
			token:    other,
			wantCode: http.StatusOK,
		},
	}
	app.run(t, tests)
}

func TestAuthApi_RefreshToken(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	school := app.createUser(t, "School", "school@test.cd", user.RoleSchool, testutil.CreateSchool(t, app.db, "Lycée Wima"))
	adminToken := app.login(t, admin)
	schoolToken := app.login(t, school)

	t.Run("success", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/auth/token-refresh", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res LoginResponse
		unmarshall(t, rec, &res)
		assert.NotEmpty(t, res.Token)

		rec = app.do(http.MethodGet, "/v1/auth/session", res.Token)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("refresh expired", func(t *testing.T) {
		defer func(orig func() time.Time) { nowFunc = orig }(nowFunc)
		nowFunc = func() time.Time { return time.Now().Add(app.conf.Server.JWTRefreshExpirationDelta + time.Minute) }

		rec := app.do(http.MethodPost, "/v1/auth/token-refresh", adminToken)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, ErrorResponse{Error: "refresh has expired"}),
		}, rec)
	})

	t.Run("deactivated account", func(t *testing.T) {
		app.deactivate(t, school)

		rec := app.do(http.MethodPost, "/v1/auth/token-refresh", schoolToken)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, ErrorResponse{Error: "account deactivated"}),
		}, rec)

		// the session is gone
		rec = app.do(http.MethodGet, "/v1/auth/session", schoolToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthApi_PasswordReset(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	sent := len(app.mail.Sent())

	tests := []httpTest{
		{
			name:     "invalid email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     marshallObj(t, PasswordResetRequest{Email: "bad"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": "email must be a valid email address"}),
		},
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     marshallObj(t, PasswordResetRequest{Email: "nobody@test.cd"}),
			wantCode: http.StatusOK,
		},
		{
			name:     "known email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     marshallObj(t, PasswordResetRequest{Email: admin.Email}),
			wantCode: http.StatusOK,
		},
		{
			name:     "confirm with bad token",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset-confirm",
			body:     marshallObj(t, user.ResetUserPassword{Token: "bad", UID: "bad", Password: "x", PasswordConfirm: "x"}),
			wantCode: http.StatusBadRequest,
		},
	}
	app.run(t, tests)

	assert.Len(t, app.mail.Sent(), sent+1, "only the known email gets a reset link")
}
