package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/stats"
)

type statsApi struct {
	baseApi
	svc *stats.Service
}

func registerStatsAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *stats.Service) {
	api := statsApi{baseApi: base, svc: svc}

	sg := g.Group("/stats", authed...)
	sg.GET("", api.system, adminMiddleware())
	sg.GET("/schools/:id", api.school, staffMiddleware())
}

// Handlers

func (api *statsApi) system(ctx echo.Context) error {
	st, err := api.svc.System(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting system stats")
	}
	return ctx.JSON(http.StatusOK, st)
}

// school returns the figures of a school; school operators only see their own.
func (api *statsApi) school(ctx echo.Context) error {
	id, err := api.pathID(ctx)
	if err != nil {
		return err
	}
	if err = checkSchoolAccess(ctx, id); err != nil {
		return err
	}

	st, err := api.svc.School(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting school stats")
	}
	return ctx.JSON(http.StatusOK, st)
}
