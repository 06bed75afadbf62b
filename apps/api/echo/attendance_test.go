package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/attendance"
	"github.com/trezcool/escola/tests"
)

func TestAttendanceApi(t *testing.T) {
	app := setup(t)
	f := newSchoolFixture(t, app)
	mbuyi := testutil.CreateStudent(t, app.db, "Mbuyi Kalala", f.wimaClass)
	ilunga := testutil.CreateStudent(t, app.db, "Ilunga Mwamba", f.wimaClass)
	bobotoStudent := testutil.CreateStudent(t, app.db, "Boboto Student", f.bobotoClass)

	monday := core.NewDate(time.Date(2024, time.September, 2, 0, 0, 0, 0, time.UTC))
	tuesday := core.NewDate(time.Date(2024, time.September, 3, 0, 0, 0, 0, time.UTC))

	tests := []httpTest{
		{
			name:     "missing date",
			method:   http.MethodPost,
			path:     "/v1/attendance",
			token:    f.teacherToken,
			body:     marshallObj(t, map[string]interface{}{"student_id": mbuyi, "is_present": true}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "other school student",
			method:   http.MethodPost,
			path:     "/v1/attendance",
			token:    f.teacherToken,
			body:     marshallObj(t, attendance.MarkAttendance{StudentID: bobotoStudent, Date: monday, IsPresent: true}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"student_id": "student not found"}),
		},
		{
			name:     "bulk: empty",
			method:   http.MethodPost,
			path:     "/v1/attendance/bulk",
			token:    f.teacherToken,
			body:     marshallObj(t, attendance.BulkMarkAttendance{}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "class of other school",
			path:     "/v1/attendance/class/" + f.bobotoClass,
			token:    f.teacherToken,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "invalid date",
			path:     "/v1/attendance/class/" + f.wimaClass + "?date=02/09/2024",
			token:    f.teacherToken,
			wantCode: http.StatusBadRequest,
		},
	}
	app.run(t, tests)

	t.Run("mark", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/attendance", f.teacherToken, marshallObj(t, attendance.MarkAttendance{
			StudentID: mbuyi,
			Date:      monday,
			IsPresent: false,
			Reason:    null.StringFrom("malade"),
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var a attendance.Attendance
		unmarshall(t, rec, &a)
		assert.False(t, a.IsPresent)
		assert.Equal(t, "malade", a.Reason.String)

		// marking the same day again replaces the record
		rec = app.do(http.MethodPost, "/v1/attendance", f.teacherToken, marshallObj(t, attendance.MarkAttendance{
			StudentID: mbuyi,
			Date:      monday,
			IsPresent: true,
			Reason:    null.StringFrom("ignored"),
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &a)
		assert.True(t, a.IsPresent)
		assert.False(t, a.Reason.Valid)
	})

	t.Run("bulk mark", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/attendance/bulk", f.operatorToken, marshallObj(t, attendance.BulkMarkAttendance{
			Records: []attendance.MarkAttendance{
				{StudentID: mbuyi, Date: tuesday, IsPresent: true},
				{StudentID: ilunga, Date: tuesday, IsPresent: false},
			},
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var records []attendance.Attendance
		unmarshall(t, rec, &records)
		assert.Len(t, records, 2)
	})

	t.Run("class day", func(t *testing.T) {
		var records []attendance.Attendance
		rec := app.do(http.MethodGet, "/v1/attendance/class/"+f.wimaClass+"?date="+tuesday.String(), f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &records)
		require.Len(t, records, 2)
		for _, r := range records {
			assert.Equal(t, tuesday.String(), r.Date.String())
			require.NotNil(t, r.Student)
		}

		rec = app.do(http.MethodGet, "/v1/attendance/class/"+f.wimaClass, f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &records)
		assert.Empty(t, records, "defaults to today")
	})

	t.Run("student range", func(t *testing.T) {
		var records []attendance.Attendance
		rec := app.do(http.MethodGet, "/v1/attendance/student/"+mbuyi, f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &records)
		assert.Len(t, records, 2)

		rec = app.do(http.MethodGet, "/v1/attendance/student/"+mbuyi+"?from="+tuesday.String(), f.teacherToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &records)
		require.Len(t, records, 1)
		assert.True(t, records[0].IsPresent)

		rec = app.do(http.MethodGet, "/v1/attendance/student/"+bobotoStudent, f.teacherToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
