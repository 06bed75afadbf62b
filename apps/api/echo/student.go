package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/class"
	"github.com/trezcool/escola/core/student"
)

type studentApi struct {
	baseApi
	svc      *student.Service
	classSvc *class.Service
}

func registerStudentAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *student.Service, classSvc *class.Service) {
	api := studentApi{baseApi: base, svc: svc, classSvc: classSvc}

	sg := g.Group("/students", append(authed, staffMiddleware())...)
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy)
}

// classField checks that the context user may enroll students in classID.
func (api *studentApi) classField(ctx echo.Context, classID string) error {
	if _, err := getClass(ctx, api.classSvc, classID); err != nil {
		if errors.Cause(err) == class.ErrNotFound || err == errHttpNotFound {
			return core.NewValidationError(class.ErrNotFound, core.FieldError{Field: "class_id", Error: class.ErrNotFound.Error()})
		}
		return err
	}
	return nil
}

// object returns the student of the `id` path param, if its class is visible by the context user.
func (api *studentApi) object(ctx echo.Context) (student.Student, error) {
	id, err := api.pathID(ctx)
	if err != nil {
		return student.Student{}, err
	}
	st, err := api.svc.GetByID(ctx.Request().Context(), id)
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

// Handlers

// query lists the students of the `class_id` query param. Only admins may list every student.
func (api *studentApi) query(ctx echo.Context) error {
	classID := ctx.QueryParam("class_id")
	if classID == "" {
		usr, err := getContextUser(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context user")
		}
		if !usr.IsAdmin() {
			return core.NewValidationError(nil, core.FieldError{Field: "class_id", Error: "this field is required"})
		}
		students, err := api.svc.QueryAll(ctx.Request().Context())
		if err != nil {
			return errors.Wrap(err, "querying students")
		}
		return ctx.JSON(http.StatusOK, students)
	}

	if err := api.validate.Var(classID, "uuid"); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	cls, err := getClass(ctx, api.classSvc, classID)
	if err != nil {
		if errors.Cause(err) == class.ErrNotFound || err == errHttpNotFound {
			return ctx.JSON(http.StatusOK, []student.Student{})
		}
		return err
	}
	students, err := api.classSvc.QueryStudents(ctx.Request().Context(), cls.ID)
	if err != nil {
		return errors.Wrap(err, "querying class students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.classField(ctx, data.ClassID); err != nil {
		return err
	}

	st, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}

	api.record(ctx, audit.ActionCreate, student.Table, st.ID, nil, st)
	return ctx.JSON(http.StatusCreated, st)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	st, err := api.object(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *studentApi) update(ctx echo.Context) error {
	st, err := api.object(ctx)
	if err != nil {
		return err
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(st, api.validate); err != nil {
		return err
	}
	if data.ClassID != st.ClassID {
		if err := api.classField(ctx, data.ClassID); err != nil {
			return err
		}
	}

	updated, err := api.svc.Update(ctx.Request().Context(), st, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}

	api.record(ctx, audit.ActionUpdate, student.Table, st.ID, st, updated)
	return ctx.JSON(http.StatusOK, updated)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	st, err := api.object(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), st); err != nil {
		return errors.Wrap(err, "deleting student")
	}

	api.record(ctx, audit.ActionDelete, student.Table, st.ID, st, nil)
	return ctx.NoContent(http.StatusNoContent)
}
