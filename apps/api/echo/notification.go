package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core/notification"
)

type notificationApi struct {
	baseApi
	svc *notification.Service
}

func registerNotificationAPI(g *echo.Group, authed []echo.MiddlewareFunc, base baseApi, svc *notification.Service) {
	api := notificationApi{baseApi: base, svc: svc}

	ng := g.Group("/notifications", authed...)
	ng.GET("", api.query)
	ng.GET("/unread-count", api.countUnread)
	ng.POST("", api.create, adminMiddleware())
	ng.PUT("/read-all", api.markAllAsRead)
	ng.PUT("/:id/read", api.markAsRead)
	ng.DELETE("/:id", api.destroy)
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

// Handlers

// query lists the notifications of the context user; `unread=true` keeps the unread ones only.
func (api *notificationApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	unreadOnly, _ := strconv.ParseBool(ctx.QueryParam("unread"))

	notifs, err := api.svc.QueryForUser(ctx.Request().Context(), usr.ID, unreadOnly)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ctx.JSON(http.StatusOK, notifs)
}

func (api *notificationApi) countUnread(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	count, err := api.svc.CountUnread(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, UnreadCountResponse{Count: count})
}

func (api *notificationApi) create(ctx echo.Context) error {
	var data notification.NewNotification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotification")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	n, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating notification")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *notificationApi) markAsRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	id, err := api.pathID(ctx)
	if err != nil {
		return err
	}

	n, err := api.svc.MarkAsRead(ctx.Request().Context(), usr.ID, id)
	if err != nil {
		return errors.Wrap(err, "marking notification as read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markAllAsRead(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.MarkAllAsRead(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "marking notifications as read")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *notificationApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	id, err := api.pathID(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), usr.ID, id); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return ctx.NoContent(http.StatusNoContent)
}
