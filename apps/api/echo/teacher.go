package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/teacher"
)

type teacherApi struct {
	baseApi
	svc *teacher.Service
}

func registerTeacherAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *teacher.Service) {
	api := teacherApi{baseApi: base, svc: svc}

	tg := g.Group("/teachers", append(authed, staffMiddleware())...)
	tg.GET("", api.query)
	tg.POST("", api.register)
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.DELETE("/:id", api.destroy)
}

// object returns the teacher of the `id` path param, if visible by the context user.
func (api *teacherApi) object(ctx echo.Context) (teacher.Teacher, error) {
	id, err := api.pathID(ctx)
	if err != nil {
		return teacher.Teacher{}, err
	}
	t, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "getting teacher")
	}
	if err = checkSchoolAccess(ctx, t.SchoolID); err != nil {
		return teacher.Teacher{}, err
	}
	return t, nil
}

// Handlers

// query lists the teachers of the `school_id` query param; school operators only see their school.
func (api *teacherApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	schoolID := ctx.QueryParam("school_id")
	if !usr.IsAdmin() {
		schoolID = usr.SchoolID.String
	}

	var teachers []teacher.Teacher
	if schoolID == "" && usr.IsAdmin() {
		teachers, err = api.svc.QueryAll(ctx.Request().Context())
	} else if err = api.validate.Var(schoolID, "uuid"); err != nil {
		teachers, err = []teacher.Teacher{}, nil
	} else {
		teachers, err = api.svc.QueryBySchool(ctx.Request().Context(), schoolID)
	}
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *teacherApi) register(ctx echo.Context) error {
	var data teacher.RegisterTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterTeacher")
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

	t, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering teacher")
	}

	api.record(ctx, audit.ActionCreate, teacher.Table, t.ID, nil, t)
	return ctx.JSON(http.StatusCreated, t)
}

func (api *teacherApi) retrieve(ctx echo.Context) error {
	t, err := api.object(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

// update moves a teacher to another school. Only admins may move teachers across schools.
func (api *teacherApi) update(ctx echo.Context) error {
	t, err := api.object(ctx)
	if err != nil {
		return err
	}

	var data teacher.UpdateTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTeacher")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if usr, _ := getContextUser(ctx); !usr.IsAdmin() && data.SchoolID != t.SchoolID {
		return errHttpForbidden
	}

	updated, err := api.svc.Update(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating teacher")
	}

	api.record(ctx, audit.ActionUpdate, teacher.Table, t.ID, t, updated)
	return ctx.JSON(http.StatusOK, updated)
}

func (api *teacherApi) destroy(ctx echo.Context) error {
	t, err := api.object(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), t.ID); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}

	api.record(ctx, audit.ActionDelete, teacher.Table, t.ID, t, nil)
	return ctx.NoContent(http.StatusNoContent)
}
