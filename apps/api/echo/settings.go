package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/settings"
)

type settingsApi struct {
	baseApi
	svc *settings.Service
}

func registerSettingsAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *settings.Service) {
	api := settingsApi{baseApi: base, svc: svc}

	sg := g.Group("/settings", append(authed, adminMiddleware())...)
	sg.GET("", api.query)
	sg.PUT("", api.update)
	sg.GET("/:key", api.retrieve)
}

// Handlers

func (api *settingsApi) query(ctx echo.Context) error {
	all, err := api.svc.QueryAll(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying settings")
	}
	return ctx.JSON(http.StatusOK, all)
}

func (api *settingsApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("key"))
	if err != nil {
		return errors.Wrap(err, "getting setting")
	}
	return ctx.JSON(http.StatusOK, s)
}

// update sets the value of a setting, creating it if needed.
func (api *settingsApi) update(ctx echo.Context) error {
	var data settings.UpdateSetting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSetting")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var orig interface{}
	if s, err := api.svc.Get(ctx.Request().Context(), data.Key); err == nil {
		orig = s
	}
	s, err := api.svc.Update(ctx.Request().Context(), data, usr.ID)
	if err != nil {
		return errors.Wrap(err, "updating setting")
	}

	api.record(ctx, audit.ActionUpdate, settings.Table, s.Key, orig, s)
	return ctx.JSON(http.StatusOK, s)
}
