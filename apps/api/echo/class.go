package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/class"
	"github.com/trezcool/escola/core/teacher"
)

type classApi struct {
	baseApi
	svc        *class.Service
	teacherSvc *teacher.Service
}

func registerClassAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *class.Service, teacherSvc *teacher.Service) {
	api := classApi{baseApi: base, svc: svc, teacherSvc: teacherSvc}

	cg := g.Group("/classes", append(authed, staffMiddleware())...)
	cg.GET("", api.query)
	cg.POST("", api.create)
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update)
	cg.DELETE("/:id", api.destroy)
	cg.GET("/:id/students", api.queryStudents)
	cg.GET("/:id/teachers", api.queryTeachers)
	cg.POST("/:id/teachers", api.addTeacher)
	cg.DELETE("/:id/teachers/:teacherID", api.removeTeacher)
}

type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required,uuid"`
}

func (ar *AssignTeacherRequest) Validate(api baseApi) error {
	ar.TeacherID = core.CleanString(ar.TeacherID)
	return api.validate.Struct(ar)
}

// object returns the class of the `id` path param, if visible by the context user.
func (api *classApi) object(ctx echo.Context) (class.Class, error) {
	id, err := api.pathID(ctx)
	if err != nil {
		return class.Class{}, err
	}
	return getClass(ctx, api.svc, id)
}

func getClass(ctx echo.Context, svc *class.Service, id string) (class.Class, error) {
	cls, err := svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return class.Class{}, errors.Wrap(err, "getting class")
	}
	if err = checkSchoolAccess(ctx, cls.SchoolID); err != nil {
		return class.Class{}, err
	}
	return cls, nil
}

// Handlers

// query lists the classes of the `school_id` query param; school operators only see their school.
func (api *classApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	schoolID := ctx.QueryParam("school_id")
	if !usr.IsAdmin() {
		schoolID = usr.SchoolID.String
	}

	var classes []class.Class
	if schoolID == "" && usr.IsAdmin() {
		classes, err = api.svc.QueryAll(ctx.Request().Context())
	} else if err = api.validate.Var(schoolID, "uuid"); err != nil {
		classes, err = []class.Class{}, nil
	} else {
		classes, err = api.svc.QueryBySchool(ctx.Request().Context(), schoolID)
	}
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) create(ctx echo.Context) error {
	var data class.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if usr, err := getContextUser(ctx); err == nil && usr.IsSchool() && data.SchoolID == "" {
		data.SchoolID = usr.SchoolID.String
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := checkSchoolAccess(ctx, data.SchoolID); err != nil {
		return errHttpForbidden
	}

	cls, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}

	api.record(ctx, audit.ActionCreate, class.Table, cls.ID, nil, cls)
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	cls, err := api.object(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) update(ctx echo.Context) error {
	cls, err := api.object(ctx)
	if err != nil {
		return err
	}

	var data class.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(cls, api.validate); err != nil {
		return err
	}
	if err := checkSchoolAccess(ctx, data.SchoolID); err != nil {
		return errHttpForbidden
	}

	updated, err := api.svc.Update(ctx.Request().Context(), cls.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}

	api.record(ctx, audit.ActionUpdate, class.Table, cls.ID, cls, updated)
	return ctx.JSON(http.StatusOK, updated)
}

func (api *classApi) destroy(ctx echo.Context) error {
	cls, err := api.object(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), cls.ID); err != nil {
		return errors.Wrap(err, "deleting class")
	}

	api.record(ctx, audit.ActionDelete, class.Table, cls.ID, cls, nil)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) queryStudents(ctx echo.Context) error {
	cls, err := api.object(ctx)
	if err != nil {
		return err
	}
	students, err := api.svc.QueryStudents(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "querying class students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *classApi) queryTeachers(ctx echo.Context) error {
	cls, err := api.object(ctx)
	if err != nil {
		return err
	}
	teachers, err := api.svc.QueryTeachers(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "querying class teachers")
	}
	return ctx.JSON(http.StatusOK, teachers)
}

// addTeacher assigns a teacher of the class school to the class.
func (api *classApi) addTeacher(ctx echo.Context) error {
	cls, err := api.object(ctx)
	if err != nil {
		return err
	}

	var data AssignTeacherRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignTeacherRequest")
	}
	if err := data.Validate(api.baseApi); err != nil {
		return err
	}

	t, err := api.teacherSvc.GetByID(ctx.Request().Context(), data.TeacherID)
	if err != nil {
		if errors.Cause(err) == teacher.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "teacher_id", Error: err.Error()})
		}
		return errors.Wrap(err, "getting teacher")
	}
	if t.SchoolID != cls.SchoolID {
		msg := "the teacher does not teach at the class school"
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: "teacher_id", Error: msg})
	}

	if err := api.svc.AddTeacher(ctx.Request().Context(), cls.ID, t.ID); err != nil {
		if errors.Cause(err) == class.ErrTeacherAssigned {
			return core.NewValidationError(err, core.FieldError{Field: "teacher_id", Error: err.Error()})
		}
		return errors.Wrap(err, "assigning teacher")
	}

	api.record(ctx, audit.ActionUpdate, class.TeachersTable, cls.ID, nil, data)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) removeTeacher(ctx echo.Context) error {
	cls, err := api.object(ctx)
	if err != nil {
		return err
	}
	teacherID, err := api.pathID(ctx, "teacherID")
	if err != nil {
		return err
	}

	if err := api.svc.RemoveTeacher(ctx.Request().Context(), cls.ID, teacherID); err != nil {
		if errors.Cause(err) == class.ErrTeacherUnassigned {
			return errHttpNotFound
		}
		return errors.Wrap(err, "unassigning teacher")
	}

	api.record(ctx, audit.ActionUpdate, class.TeachersTable, cls.ID, AssignTeacherRequest{TeacherID: teacherID}, nil)
	return ctx.NoContent(http.StatusNoContent)
}
