package echoapi

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core/class"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/teacher"
	"github.com/trezcool/escola/core/user"
	"github.com/trezcool/escola/tests"
)

// schoolFixture holds two schools, each with its operator, a teacher and a class.
type schoolFixture struct {
	wima, boboto               string
	wimaClass, bobotoClass     string
	wimaTeacher, bobotoTeacher string
	adminToken, operatorToken  string
	teacherToken               string
}

func newSchoolFixture(t *testing.T, app *testApp) schoolFixture {
	t.Helper()
	f := schoolFixture{
		wima:   testutil.CreateSchool(t, app.db, "Lycée Wima"),
		boboto: testutil.CreateSchool(t, app.db, "Collège Boboto"),
	}
	f.wimaClass = testutil.CreateClass(t, app.db, "6e A", f.wima)
	f.bobotoClass = testutil.CreateClass(t, app.db, "5e B", f.boboto)

	admin := app.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, "")
	operator := app.createUser(t, "Operator", "operator@test.cd", user.RoleSchool, f.wima)
	wimaTeacher := app.createUser(t, "Wima Teacher", "teacher@wima.cd", user.RoleTeacher, f.wima)
	bobotoTeacher := testutil.CreateUser(t, app.db, "Boboto Teacher", "teacher@boboto.cd", user.RoleTeacher, f.boboto, true)
	f.wimaTeacher = testutil.CreateTeacher(t, app.db, wimaTeacher, f.wima)
	f.bobotoTeacher = testutil.CreateTeacher(t, app.db, bobotoTeacher, f.boboto)

	f.adminToken = app.login(t, admin)
	f.operatorToken = app.login(t, operator)
	f.teacherToken = app.login(t, wimaTeacher)
	return f
}

func TestTeacherApi(t *testing.T) {
	app := setup(t)
	f := newSchoolFixture(t, app)

	tests := []httpTest{
		{
			name:     "teachers are not staff",
			path:     "/v1/teachers",
			token:    f.teacherToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "other school teacher",
			path:     "/v1/teachers/" + f.bobotoTeacher,
			token:    f.operatorToken,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "own school teacher",
			path:     "/v1/teachers/" + f.wimaTeacher,
			token:    f.operatorToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "register in other school",
			method:   http.MethodPost,
			path:     "/v1/teachers",
			token:    f.operatorToken,
			body:     marshallObj(t, teacher.RegisterTeacher{FullName: "Intruder", Email: "intruder@test.cd", SchoolID: f.boboto}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "operator moves teacher",
			method:   http.MethodPut,
			path:     "/v1/teachers/" + f.wimaTeacher,
			token:    f.operatorToken,
			body:     marshallObj(t, teacher.UpdateTeacher{SchoolID: f.boboto}),
			wantCode: http.StatusForbidden,
		},
	}
	app.run(t, tests)

	t.Run("list", func(t *testing.T) {
		var teachers []teacher.Teacher
		rec := app.do(http.MethodGet, "/v1/teachers", f.operatorToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &teachers)
		require.Len(t, teachers, 1)
		assert.Equal(t, f.wimaTeacher, teachers[0].ID)
		require.NotNil(t, teachers[0].User)
		assert.Equal(t, "teacher@wima.cd", teachers[0].User.Email)

		rec = app.do(http.MethodGet, "/v1/teachers", f.adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &teachers)
		assert.Len(t, teachers, 2)

		rec = app.do(http.MethodGet, "/v1/teachers?school_id="+f.boboto, f.adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &teachers)
		require.Len(t, teachers, 1)
		assert.Equal(t, f.bobotoTeacher, teachers[0].ID)
	})

	t.Run("register in own school", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/teachers", f.operatorToken, marshallObj(t, teacher.RegisterTeacher{
			FullName: "New Teacher",
			Email:    "new@wima.cd",
		}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var created teacher.Teacher
		unmarshall(t, rec, &created)
		assert.Equal(t, f.wima, created.SchoolID)
	})

	t.Run("admin moves teacher", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/v1/teachers/"+f.bobotoTeacher, f.adminToken, marshallObj(t, teacher.UpdateTeacher{SchoolID: f.wima}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated teacher.Teacher
		unmarshall(t, rec, &updated)
		assert.Equal(t, f.wima, updated.SchoolID)
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/v1/teachers/"+f.bobotoTeacher, f.operatorToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = app.do(http.MethodGet, "/v1/teachers/"+f.bobotoTeacher, f.adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestClassApi(t *testing.T) {
	app := setup(t)
	f := newSchoolFixture(t, app)

	tests := []httpTest{
		{
			name:     "other school class",
			path:     "/v1/classes/" + f.bobotoClass,
			token:    f.operatorToken,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "create in other school",
			method:   http.MethodPost,
			path:     "/v1/classes",
			token:    f.operatorToken,
			body:     marshallObj(t, class.NewClass{Name: "4e C", SchoolID: f.boboto}),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "assign teacher of other school",
			method:   http.MethodPost,
			path:     "/v1/classes/" + f.wimaClass + "/teachers",
			token:    f.adminToken,
			body:     marshallObj(t, AssignTeacherRequest{TeacherID: f.bobotoTeacher}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"teacher_id": "the teacher does not teach at the class school"}),
		},
		{
			name:     "assign unknown teacher",
			method:   http.MethodPost,
			path:     "/v1/classes/" + f.wimaClass + "/teachers",
			token:    f.adminToken,
			body:     marshallObj(t, AssignTeacherRequest{TeacherID: uuid.New().String()}),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unassign teacher not assigned",
			method:   http.MethodDelete,
			path:     "/v1/classes/" + f.wimaClass + "/teachers/" + f.wimaTeacher,
			token:    f.adminToken,
			wantCode: http.StatusNotFound,
		},
	}
	app.run(t, tests)

	t.Run("list", func(t *testing.T) {
		var classes []class.Class
		rec := app.do(http.MethodGet, "/v1/classes", f.operatorToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &classes)
		require.Len(t, classes, 1)
		assert.Equal(t, f.wimaClass, classes[0].ID)

		rec = app.do(http.MethodGet, "/v1/classes", f.adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &classes)
		assert.Len(t, classes, 2)
	})

	var created class.Class
	t.Run("create in own school", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/classes", f.operatorToken, marshallObj(t, class.NewClass{Name: " 4e C "}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshall(t, rec, &created)
		assert.Equal(t, "4e C", created.Name)
		assert.Equal(t, f.wima, created.SchoolID)
	})

	t.Run("assign teachers", func(t *testing.T) {
		path := "/v1/classes/" + created.ID + "/teachers"
		rec := app.do(http.MethodPost, path, f.operatorToken, marshallObj(t, AssignTeacherRequest{TeacherID: f.wimaTeacher}))
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.do(http.MethodPost, path, f.operatorToken, marshallObj(t, AssignTeacherRequest{TeacherID: f.wimaTeacher}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		var teachers []teacher.Teacher
		rec = app.do(http.MethodGet, path, f.operatorToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &teachers)
		require.Len(t, teachers, 1)
		assert.Equal(t, f.wimaTeacher, teachers[0].ID)

		rec = app.do(http.MethodDelete, path+"/"+f.wimaTeacher, f.operatorToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, path, f.operatorToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &teachers)
		assert.Empty(t, teachers)
	})

	t.Run("update", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/v1/classes/"+created.ID, f.operatorToken, marshallObj(t, class.UpdateClass{SchoolID: f.boboto}))
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

		rec = app.do(http.MethodPut, "/v1/classes/"+created.ID, f.operatorToken, marshallObj(t, class.UpdateClass{Name: "4e D"}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated class.Class
		unmarshall(t, rec, &updated)
		assert.Equal(t, "4e D", updated.Name)
		assert.Equal(t, f.wima, updated.SchoolID)
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/v1/classes/"+created.ID, f.operatorToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = app.do(http.MethodGet, "/v1/classes/"+created.ID, f.operatorToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStudentApi(t *testing.T) {
	app := setup(t)
	f := newSchoolFixture(t, app)
	bobotoStudent := testutil.CreateStudent(t, app.db, "Boboto Student", f.bobotoClass)

	tests := []httpTest{
		{
			name:     "operator without class",
			path:     "/v1/students",
			token:    f.operatorToken,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"class_id": "this field is required"}),
		},
		{
			name:     "other school class",
			path:     "/v1/students?class_id=" + f.bobotoClass,
			token:    f.operatorToken,
			wantCode: http.StatusOK,
			wantData: []byte("[]"),
		},
		{
			name:     "other school student",
			path:     "/v1/students/" + bobotoStudent,
			token:    f.operatorToken,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "enroll in other school",
			method:   http.MethodPost,
			path:     "/v1/students",
			token:    f.operatorToken,
			body:     marshallObj(t, student.NewStudent{Name: "Intruder", ClassID: f.bobotoClass}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"class_id": class.ErrNotFound.Error()}),
		},
	}
	app.run(t, tests)

	var created student.Student
	t.Run("enroll", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/students", f.operatorToken, marshallObj(t, student.NewStudent{Name: "Mbuyi Kalala", ClassID: f.wimaClass}))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshall(t, rec, &created)
		assert.Equal(t, f.wimaClass, created.ClassID)

		var students []student.Student
		rec = app.do(http.MethodGet, "/v1/students?class_id="+f.wimaClass, f.operatorToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &students)
		require.Len(t, students, 1)
		assert.Equal(t, created.ID, students[0].ID)

		rec = app.do(http.MethodGet, "/v1/classes/"+f.wimaClass+"/students", f.operatorToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &students)
		assert.Len(t, students, 1)
	})

	t.Run("admin lists all", func(t *testing.T) {
		var students []student.Student
		rec := app.do(http.MethodGet, "/v1/students", f.adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &students)
		assert.Len(t, students, 2)
	})

	t.Run("transfer", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/v1/students/"+created.ID, f.operatorToken, marshallObj(t, student.UpdateStudent{ClassID: f.bobotoClass}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		rec = app.do(http.MethodPut, "/v1/students/"+created.ID, f.adminToken, marshallObj(t, student.UpdateStudent{ClassID: f.bobotoClass}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// the class listings follow the transfer
		var students []student.Student
		rec = app.do(http.MethodGet, "/v1/students?class_id="+f.wimaClass, f.adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &students)
		assert.Empty(t, students)

		rec = app.do(http.MethodGet, "/v1/students?class_id="+f.bobotoClass, f.adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshall(t, rec, &students)
		assert.Len(t, students, 2)
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/v1/students/"+created.ID, f.adminToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = app.do(http.MethodGet, "/v1/students/"+created.ID, f.adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
