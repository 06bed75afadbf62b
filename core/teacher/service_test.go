package teacher_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
	"github.com/trezcool/escola/core/teacher"
	"github.com/trezcool/escola/core/user"
	"github.com/trezcool/escola/fs"
	"github.com/trezcool/escola/storage/database/sqlx"
	"github.com/trezcool/escola/tests"
)

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, testutil.NewConfig(), testutil.NopLogger{})
	os.Exit(m.Run())
}

func TestService(t *testing.T) {
	db := testutil.PrepareDB(t)
	store := sqlxrepos.NewStore(db)
	auth := sqlxrepos.NewAuthenticator(db, time.Hour)
	c := cache.New()
	mail := &testutil.MailRecorder{}
	usrSvc := user.NewService(testutil.NewConfig(), store, auth, c, mail)
	svc := teacher.NewService(store, c, usrSvc)
	ctx := context.Background()

	mwinda := testutil.CreateSchool(t, db, "Ecole Mwinda")
	bosangani := testutil.CreateSchool(t, db, "Bosangani")

	tchr, err := svc.Register(ctx, teacher.RegisterTeacher{FullName: "Teresa Tembo", Email: "teresa@test.cd", SchoolID: mwinda})
	require.NoError(t, err)
	require.NotNil(t, tchr.User)
	require.NotNil(t, tchr.School)
	assert.Equal(t, "Teresa Tembo", tchr.User.FullName)
	assert.Equal(t, "Ecole Mwinda", tchr.School.Name)

	// the user account was created and emailed
	usr, err := usrSvc.GetByID(ctx, tchr.UserID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, usr.Role)
	assert.Equal(t, mwinda, usr.SchoolID.String)
	require.Len(t, mail.Sent(), 1)
	assert.Contains(t, mail.Sent()[0].TextContent, "/password-reset/")

	t.Run("email taken", func(t *testing.T) {
		_, err := svc.Register(ctx, teacher.RegisterTeacher{FullName: "Teresa Bis", Email: "teresa@test.cd", SchoolID: mwinda})
		assert.Error(t, err)
		all, err := svc.QueryAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("unknown school rolls back the user", func(t *testing.T) {
		_, err := svc.Register(ctx, teacher.RegisterTeacher{FullName: "Ghost Teacher", Email: "ghost@test.cd", SchoolID: "f6d1f7c4-4d59-4c8b-8b37-9d8d3b0b7c55"})
		require.Error(t, err)
		_, err = usrSvc.GetByEmail(ctx, "ghost@test.cd")
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("queries", func(t *testing.T) {
		other := testutil.CreateUser(t, db, "Pascal Mbuyi", "pascal@test.cd", user.RoleTeacher, bosangani, true)
		otherID := testutil.CreateTeacher(t, db, other, bosangani)
		c.InvalidatePrefix("teachers:")

		all, err := svc.QueryAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		for _, tc := range all {
			assert.NotNil(t, tc.User)
			assert.NotNil(t, tc.School)
		}

		bySchool, err := svc.QueryBySchool(ctx, bosangani)
		require.NoError(t, err)
		require.Len(t, bySchool, 1)
		assert.Equal(t, otherID, bySchool[0].ID)
		assert.Equal(t, "Pascal Mbuyi", bySchool[0].User.FullName)

		byIDs, err := svc.QueryByIDs(ctx, tchr.ID, otherID)
		require.NoError(t, err)
		assert.Len(t, byIDs, 2)

		byUser, err := svc.GetByUserID(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, otherID, byUser.ID)

		_, err = svc.GetByID(ctx, "f6d1f7c4-4d59-4c8b-8b37-9d8d3b0b7c55")
		assert.Equal(t, teacher.ErrNotFound, err)
	})

	t.Run("update moves the user too", func(t *testing.T) {
		moved, err := svc.Update(ctx, tchr.ID, teacher.UpdateTeacher{SchoolID: bosangani})
		require.NoError(t, err)
		assert.Equal(t, bosangani, moved.SchoolID)
		assert.Equal(t, "Bosangani", moved.School.Name)

		usr, err := usrSvc.GetByID(ctx, tchr.UserID)
		require.NoError(t, err)
		assert.Equal(t, bosangani, usr.SchoolID.String)

		bySchool, err := svc.QueryBySchool(ctx, bosangani)
		require.NoError(t, err)
		assert.Len(t, bySchool, 2)
	})

	t.Run("delete keeps the user", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, tchr.ID))
		_, err := svc.GetByID(ctx, tchr.ID)
		assert.Equal(t, teacher.ErrNotFound, err)
		_, err = usrSvc.GetByID(ctx, tchr.UserID)
		assert.NoError(t, err)
	})
}
