// Package audit records who changed what in the admin console.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
)

const Table = "audit_logs"

// Actions
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionLogin  = "login"
	ActionLogout = "logout"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var nowFunc = time.Now // mockable

type (
	Log struct {
		ID         string             `json:"id" db:"id"`
		UserID     null.String        `json:"user_id" db:"user_id"`
		Action     string             `json:"action" db:"action"`
		EntityType string             `json:"entity_type" db:"entity_type"`
		EntityID   string             `json:"entity_id" db:"entity_id"`
		OldValues  types.NullJSONText `json:"old_values" db:"old_values"`
		NewValues  types.NullJSONText `json:"new_values" db:"new_values"`
		IPAddress  string             `json:"ip_address" db:"ip_address"`
		CreatedAt  time.Time          `json:"created_at" db:"created_at"`
		UpdatedAt  time.Time          `json:"updated_at" db:"updated_at"`
	}

	// Entry is a change to record. Old and New are marshalled to JSON; nil values are stored as NULL.
	Entry struct {
		UserID     string
		Action     string
		EntityType string
		EntityID   string
		Old        interface{}
		New        interface{}
		IPAddress  string
	}

	QueryFilter struct {
		Page       int       `query:"page"`
		Limit      int       `query:"limit"`
		EntityType string    `query:"entity_type"`
		Action     string    `query:"action"`
		UserID     string    `query:"user_id"`
		From       core.Date `query:"from"`
		To         core.Date `query:"to"`
	}

	Page struct {
		Logs  []Log `json:"logs"`
		Total int   `json:"total"`
		Page  int   `json:"page"`
		Limit int   `json:"limit"`
	}

	Service struct {
		data core.DataService
	}
)

func NewService(data core.DataService) *Service {
	return &Service{data: data}
}

func jsonValue(v interface{}) (types.NullJSONText, error) {
	if v == nil {
		return types.NullJSONText{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return types.NullJSONText{}, err
	}
	return types.NullJSONText{JSONText: b, Valid: true}, nil
}

// Record stores an audit log entry.
func (svc *Service) Record(ctx context.Context, e Entry) (Log, error) {
	oldVals, err := jsonValue(e.Old)
	if err != nil {
		return Log{}, errors.Wrap(err, "marshalling old values")
	}
	newVals, err := jsonValue(e.New)
	if err != nil {
		return Log{}, errors.Wrap(err, "marshalling new values")
	}

	now := nowFunc().UTC()
	vals := core.Values{
		"id":          uuid.New().String(),
		"user_id":     null.NewString(e.UserID, e.UserID != ""),
		"action":      e.Action,
		"entity_type": e.EntityType,
		"entity_id":   e.EntityID,
		"old_values":  oldVals,
		"new_values":  newVals,
		"ip_address":  e.IPAddress,
		"created_at":  now,
		"updated_at":  now,
	}
	var l Log
	if err = svc.data.Insert(ctx, Table, vals, &l); err != nil {
		return Log{}, errors.Wrap(err, "inserting audit log")
	}
	return l, nil
}

func (f *QueryFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.Limit < 1:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
}

// Query returns a page of logs matching filter, latest first.
func (svc *Service) Query(ctx context.Context, filter QueryFilter) (Page, error) {
	filter.normalize()

	q := core.NewQuery(Table)
	if filter.EntityType != "" {
		q = q.Where(core.Eq("entity_type", filter.EntityType))
	}
	if filter.Action != "" {
		q = q.Where(core.Eq("action", filter.Action))
	}
	if filter.UserID != "" {
		q = q.Where(core.Eq("user_id", filter.UserID))
	}
	if !filter.From.IsZero() {
		q = q.Where(core.Gte("created_at", filter.From.Time))
	}
	if !filter.To.IsZero() {
		q = q.Where(core.Lt("created_at", filter.To.AddDate(0, 0, 1)))
	}

	total, err := svc.data.Count(ctx, q)
	if err != nil {
		return Page{}, errors.Wrap(err, "counting audit logs")
	}

	logs := make([]Log, 0, filter.Limit)
	q = q.OrderBy(core.Desc("created_at")).Range(filter.Limit, (filter.Page-1)*filter.Limit)
	if err = svc.data.Select(ctx, q, &logs); err != nil {
		return Page{}, errors.Wrap(err, "querying audit logs")
	}
	return Page{Logs: logs, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}
