package stats_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core/cache"
	"github.com/trezcool/escola/core/stats"
	"github.com/trezcool/escola/core/user"
	"github.com/trezcool/escola/storage/database/sqlx"
	"github.com/trezcool/escola/tests"
)

func TestService(t *testing.T) {
	db := testutil.PrepareDB(t)
	c := cache.New()
	svc := stats.NewService(sqlxrepos.NewStore(db), c)
	ctx := context.Background()

	schoolID := testutil.CreateSchool(t, db, "Ecole Mwinda")
	otherID := testutil.CreateSchool(t, db, "Bosangani")
	classID := testutil.CreateClass(t, db, "6A", schoolID)
	testutil.CreateClass(t, db, "1A", otherID)
	testutil.CreateStudent(t, db, "Zoe Kabila", classID)
	usr := testutil.CreateUser(t, db, "Teresa Tembo", "teresa@test.cd", user.RoleTeacher, schoolID, true)
	testutil.CreateTeacher(t, db, usr, schoolID)
	testutil.CreateUser(t, db, "Gone User", "gone@test.cd", user.RoleTeacher, "", false)

	sys, err := svc.System(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.System{
		TotalSchools:  2,
		TotalTeachers: 1,
		TotalStudents: 1,
		TotalClasses:  2,
		ActiveUsers:   1,
	}, sys)

	sch, err := svc.School(ctx, schoolID)
	require.NoError(t, err)
	assert.Equal(t, stats.School{SchoolID: schoolID, TotalTeachers: 1, TotalStudents: 1, TotalClasses: 1}, sch)

	// figures are served from the cache until they expire
	testutil.CreateSchool(t, db, "Athenee Royal")
	sys, err = svc.System(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sys.TotalSchools)

	c.InvalidateAll()
	sys, err = svc.System(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sys.TotalSchools)
}
