package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/school"
)

type schoolApi struct {
	baseApi
	svc *school.Service
}

func registerSchoolAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *school.Service) {
	api := schoolApi{baseApi: base, svc: svc}

	sg := g.Group("/schools", append(authed, adminMiddleware())...)
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy)
}

func (api *schoolApi) object(ctx echo.Context) (school.School, error) {
	id, err := api.pathID(ctx)
	if err != nil {
		return school.School{}, err
	}
	sch, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return school.School{}, errors.Wrap(err, "getting school")
	}
	return sch, nil
}

// Handlers

func (api *schoolApi) query(ctx echo.Context) error {
	schools, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sch, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}

	api.record(ctx, audit.ActionCreate, school.Table, sch.ID, nil, sch)
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	sch, err := api.object(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) update(ctx echo.Context) error {
	sch, err := api.object(ctx)
	if err != nil {
		return err
	}

	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	if err := data.Validate(sch, api.validate); err != nil {
		return err
	}

	updated, err := api.svc.Update(ctx.Request().Context(), sch.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}

	api.record(ctx, audit.ActionUpdate, school.Table, sch.ID, sch, updated)
	return ctx.JSON(http.StatusOK, updated)
}

func (api *schoolApi) destroy(ctx echo.Context) error {
	sch, err := api.object(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), sch.ID); err != nil {
		return errors.Wrap(err, "deleting school")
	}

	api.record(ctx, audit.ActionDelete, school.Table, sch.ID, sch, nil)
	return ctx.NoContent(http.StatusNoContent)
}
