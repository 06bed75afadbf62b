// Package notification manages the in-app notifications of users.
// Notifications are read straight from the remote store: they change too often to be cached.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

const Table = "notifications"

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("notification not found")
)

type Service struct {
	data core.DataService
}

func NewService(data core.DataService) *Service {
	return &Service{data: data}
}

// QueryForUser returns the notifications of a user, latest first.
func (svc *Service) QueryForUser(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	q := core.NewQuery(Table).Where(core.Eq("user_id", userID)).OrderBy(core.Desc("created_at"))
	if unreadOnly {
		q = q.Where(core.Eq("read", false))
	}
	notifs := make([]Notification, 0)
	if err := svc.data.Select(ctx, q, &notifs); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return notifs, nil
}

// CountUnread returns the number of unread notifications of a user.
func (svc *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	count, err := svc.data.Count(ctx, core.NewQuery(Table).Where(core.Eq("user_id", userID), core.Eq("read", false)))
	if err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return count, nil
}

func (svc *Service) Create(ctx context.Context, nn NewNotification) (Notification, error) {
	now := nowFunc().UTC()
	vals := core.Values{
		"id":         uuid.New().String(),
		"user_id":    nn.UserID,
		"title":      nn.Title,
		"message":    nn.Message,
		"read":       false,
		"created_at": now,
		"updated_at": now,
	}
	var n Notification
	if err := svc.data.Insert(ctx, Table, vals, &n); err != nil {
		return Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

// MarkAsRead marks a notification of userID as read.
func (svc *Service) MarkAsRead(ctx context.Context, userID, id string) (Notification, error) {
	vals := core.Values{"read": true, "updated_at": nowFunc().UTC()}
	filters := []core.Filter{core.Eq("id", id), core.Eq("user_id", userID)}
	var n Notification
	if err := svc.data.Update(ctx, Table, vals, filters, &n); err != nil {
		if errors.Cause(err) == core.ErrNoRows {
			return Notification{}, ErrNotFound
		}
		return Notification{}, errors.Wrap(err, "marking notification as read")
	}
	return n, nil
}

func (svc *Service) MarkAllAsRead(ctx context.Context, userID string) error {
	vals := core.Values{"read": true, "updated_at": nowFunc().UTC()}
	filters := []core.Filter{core.Eq("user_id", userID), core.Eq("read", false)}
	if err := svc.data.Update(ctx, Table, vals, filters, nil); err != nil {
		return errors.Wrap(err, "marking notifications as read")
	}
	return nil
}

func (svc *Service) Delete(ctx context.Context, userID, id string) error {
	if err := svc.data.Delete(ctx, Table, []core.Filter{core.Eq("id", id), core.Eq("user_id", userID)}); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return nil
}
