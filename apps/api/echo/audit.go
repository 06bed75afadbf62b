package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/audit"
)

type auditApi struct {
	baseApi
}

func registerAuditAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi) {
	api := auditApi{baseApi: base}

	ag := g.Group("/audit-logs", append(authed, adminMiddleware())...)
	ag.GET("", api.query)
}

// query returns a page of audit logs, latest first.
func (api *auditApi) query(ctx echo.Context) error {
	var filter audit.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return core.NewValidationError(errors.New("invalid audit log filter"))
	}

	page, err := api.auditSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying audit logs")
	}
	return ctx.JSON(http.StatusOK, page)
}
