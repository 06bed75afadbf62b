package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/user"
	"github.com/trezcool/escola/tests"
)

func TestUserApi_Create(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	adminToken := app.login(t, admin)

	tests := []httpTest{
		{
			name:     "invalid data",
			method:   http.MethodPost,
			path:     "/v1/users",
			token:    adminToken,
			body:     marshallObj(t, user.NewUser{FullName: "Jo", Email: "bad", Role: "boss"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "duplicate email",
			method:   http.MethodPost,
			path:     "/v1/users",
			token:    adminToken,
			body:     marshallObj(t, user.NewUser{FullName: "Other Admin", Email: admin.Email, Role: user.RoleAdmin}),
			wantCode: http.StatusBadRequest,
		},
	}
	app.run(t, tests)

	t.Run("success", func(t *testing.T) {
		sent := len(app.mail.Sent())
		rec := app.do(http.MethodPost, "/v1/users", adminToken, marshallObj(t, user.NewUser{
			FullName: "Kabila Teacher",
			Email:    "TEACHER@test.cd",
			Role:     user.RoleTeacher,
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		unmarshall(t, rec, &usr)
		assert.Equal(t, "teacher@test.cd", usr.Email)
		assert.True(t, usr.Active)
		assert.Len(t, app.mail.Sent(), sent+1, "a welcome email is sent")

		page, err := app.auditSvc.Query(context.Background(), audit.QueryFilter{Action: audit.ActionCreate, EntityType: user.Table})
		require.NoError(t, err)
		require.Len(t, page.Logs, 1)
		assert.Equal(t, usr.ID, page.Logs[0].EntityID)
	})
}

func TestUserApi_Query(t *testing.T) {
	app := setup(t)
	schoolID := testutil.CreateSchool(t, app.db, "Lycée Wima")
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	operator := app.createUser(t, "Operator", "operator@test.cd", user.RoleSchool, schoolID)
	app.createUser(t, "Teacher", "teacher@test.cd", user.RoleTeacher, schoolID)
	adminToken := app.login(t, admin)
	operatorToken := app.login(t, operator)

	tests := []httpTest{
		{
			name:     "forbidden",
			path:     "/v1/users",
			token:    operatorToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "roles",
			path:     "/v1/users/roles",
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, user.Roles),
		},
	}
	app.run(t, tests)

	t.Run("all", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/users", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var users []user.User
		unmarshall(t, rec, &users)
		assert.Len(t, users, 3)
	})

	t.Run("ordered by email", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/users?ordering=-email", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var users []user.User
		unmarshall(t, rec, &users)
		require.Len(t, users, 3)
		assert.Equal(t, "teacher@test.cd", users[0].Email)
		assert.Equal(t, "admin@test.cd", users[2].Email)
	})
}

func TestUserApi_Detail(t *testing.T) {
	app := setup(t)
	schoolID := testutil.CreateSchool(t, app.db, "Lycée Wima")
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	operator := app.createUser(t, "Operator", "operator@test.cd", user.RoleSchool, schoolID)
	teacher := app.createUser(t, "Teacher", "teacher@test.cd", user.RoleTeacher, schoolID)
	adminToken := app.login(t, admin)
	operatorToken := app.login(t, operator)

	tests := []httpTest{
		{
			name:     "own profile",
			path:     "/v1/users/" + operator.ID,
			token:    operatorToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "other profile",
			path:     "/v1/users/" + teacher.ID,
			token:    operatorToken,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "admin sees all",
			path:     "/v1/users/" + teacher.ID,
			token:    adminToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "unknown",
			path:     "/v1/users/" + uuid.New().String(),
			token:    adminToken,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "non admin changes role",
			method:   http.MethodPut,
			path:     "/v1/users/" + operator.ID,
			token:    operatorToken,
			body:     marshallObj(t, map[string]string{"role": user.RoleAdmin}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "non admin deletes",
			method:   http.MethodDelete,
			path:     "/v1/users/" + operator.ID,
			token:    operatorToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "admin deletes self",
			method:   http.MethodDelete,
			path:     "/v1/users/" + admin.ID,
			token:    adminToken,
			wantCode: http.StatusForbidden,
		},
	}
	app.run(t, tests)

	t.Run("update own name", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/v1/users/"+operator.ID, operatorToken, marshallObj(t, user.UpdateUser{FullName: "Mama Operator"}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// the session follows the update
		rec = app.do(http.MethodGet, "/v1/auth/session", operatorToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res struct {
			User user.User `json:"user"`
		}
		unmarshall(t, rec, &res)
		assert.Equal(t, "Mama Operator", res.User.FullName)
	})

	t.Run("admin moves user", func(t *testing.T) {
		otherSchool := testutil.CreateSchool(t, app.db, "Collège Boboto")
		rec := app.do(http.MethodPut, "/v1/users/"+teacher.ID, adminToken, marshallObj(t, user.UpdateUser{SchoolID: null.StringFrom(otherSchool)}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated user.User
		unmarshall(t, rec, &updated)
		assert.Equal(t, otherSchool, updated.SchoolID.String)
		assert.Equal(t, teacher.FullName, updated.FullName)
	})

	t.Run("admin deletes", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/v1/users/"+teacher.ID, adminToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, "/v1/users/"+teacher.ID, adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUserApi_DestroyMultiple(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	usr1 := app.createUser(t, "User One", "one@test.cd", user.RoleTeacher, "")
	usr2 := app.createUser(t, "User Two", "two@test.cd", user.RoleTeacher, "")
	adminToken := app.login(t, admin)

	tests := []httpTest{
		{
			name:     "no ids",
			method:   http.MethodDelete,
			path:     "/v1/users",
			token:    adminToken,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "self",
			method:   http.MethodDelete,
			path:     "/v1/users?id=" + usr1.ID + "&id=" + admin.ID,
			token:    adminToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "invalid id",
			method:   http.MethodDelete,
			path:     "/v1/users?id=1",
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"id": "enter a valid identifier"}),
		},
		{
			name:     "success",
			method:   http.MethodDelete,
			path:     "/v1/users?id=" + usr1.ID + "&id=" + usr2.ID,
			token:    adminToken,
			wantCode: http.StatusNoContent,
		},
	}
	app.run(t, tests)

	users, err := app.usrSvc.QueryAll(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, admin.ID, users[0].ID)
}
