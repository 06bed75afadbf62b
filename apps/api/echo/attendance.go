package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/attendance"
	"github.com/trezcool/escola/core/class"
	"github.com/trezcool/escola/core/student"
)

type attendanceApi struct {
	baseApi
	svc        *attendance.Service
	studentSvc *student.Service
	classSvc   *class.Service
}

func registerAttendanceAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	base baseApi,
	svc *attendance.Service,
	studentSvc *student.Service,
	classSvc *class.Service,
) {
	api := attendanceApi{baseApi: base, svc: svc, studentSvc: studentSvc, classSvc: classSvc}

	ag := g.Group("/attendance", authed...)
	ag.GET("/student/:id", api.queryStudent)
	ag.GET("/class/:id", api.queryClass)
	ag.POST("", api.mark)
	ag.POST("/bulk", api.bulkMark)
}

type (
	StudentAttendanceQuery struct {
		From core.Date `query:"from"`
		To   core.Date `query:"to"`
	}

	ClassAttendanceQuery struct {
		Date core.Date `query:"date"`
	}
)

// checkStudentAccess returns the student, if the context user may see its school.
func (api *attendanceApi) checkStudentAccess(ctx echo.Context, id string) (student.Student, error) {
	st, err := api.studentSvc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	if _, err = getClass(ctx, api.classSvc, st.ClassID); err != nil {
		if errors.Cause(err) == class.ErrNotFound {
			return student.Student{}, errHttpNotFound
		}
		return student.Student{}, err
	}
	return st, nil
}

// checkMarks rejects the records of students the context user cannot see.
func (api *attendanceApi) checkMarks(ctx echo.Context, marks []attendance.MarkAttendance) error {
	checked := make(map[string]bool, len(marks))
	for _, ma := range marks {
		if checked[ma.StudentID] {
			continue
		}
		if _, err := api.checkStudentAccess(ctx, ma.StudentID); err != nil {
			if errors.Cause(err) == student.ErrNotFound || err == errHttpNotFound {
				return core.NewValidationError(student.ErrNotFound, core.FieldError{Field: "student_id", Error: student.ErrNotFound.Error()})
			}
			return err
		}
		checked[ma.StudentID] = true
	}
	return nil
}

// Handlers

// queryStudent lists the attendance of a student between the `from` and `to` days (both optional).
func (api *attendanceApi) queryStudent(ctx echo.Context) error {
	id, err := api.pathID(ctx)
	if err != nil {
		return err
	}
	var query StudentAttendanceQuery
	if err := ctx.Bind(&query); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "from", Error: "enter a valid date (YYYY-MM-DD)"})
	}
	st, err := api.checkStudentAccess(ctx, id)
	if err != nil {
		return err
	}

	records, err := api.svc.QueryStudent(ctx.Request().Context(), st.ID, query.From, query.To)
	if err != nil {
		return errors.Wrap(err, "querying student attendance")
	}
	return ctx.JSON(http.StatusOK, records)
}

// queryClass lists the attendance of a class on the `date` day, today by default.
func (api *attendanceApi) queryClass(ctx echo.Context) error {
	id, err := api.pathID(ctx)
	if err != nil {
		return err
	}
	var query ClassAttendanceQuery
	if err := ctx.Bind(&query); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "date", Error: "enter a valid date (YYYY-MM-DD)"})
	}
	if query.Date.IsZero() {
		query.Date = core.NewDate(time.Now().UTC())
	}
	cls, err := getClass(ctx, api.classSvc, id)
	if err != nil {
		return err
	}

	records, err := api.svc.QueryClass(ctx.Request().Context(), cls.ID, query.Date)
	if err != nil {
		return errors.Wrap(err, "querying class attendance")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.MarkAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.checkMarks(ctx, []attendance.MarkAttendance{data}); err != nil {
		return err
	}

	record, err := api.svc.Mark(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, record)
}

func (api *attendanceApi) bulkMark(ctx echo.Context) error {
	var data attendance.BulkMarkAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkMarkAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.checkMarks(ctx, data.Records); err != nil {
		return err
	}

	records, err := api.svc.BulkMark(ctx.Request().Context(), data.Records)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, records)
}
