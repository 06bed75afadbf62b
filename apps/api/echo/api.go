package echoapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/audit"
)

// baseApi holds what every api needs.
type baseApi struct {
	validate *validator.Validate
	logger   core.Logger
	auditSvc *audit.Service
}

func (api baseApi) pathID(ctx echo.Context, name ...string) (string, error) {
	param := "id"
	if len(name) > 0 {
		param = name[0]
	}
	return pathID(ctx, api.validate, param)
}

// record stores an audit log of a change made by the context user.
// Failures are logged: the change already happened.
func (api baseApi) record(ctx echo.Context, action, entityType, entityID string, oldVal, newVal interface{}) {
	usr, _ := getContextUser(ctx)
	entry := audit.Entry{
		UserID:     usr.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Old:        oldVal,
		New:        newVal,
		IPAddress:  ctx.RealIP(),
	}
	if _, err := api.auditSvc.Record(ctx.Request().Context(), entry); err != nil {
		api.logger.Error("recording audit log", errors.Wrap(err, "recording audit log"), usr)
	}
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)
