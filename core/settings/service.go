package settings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
)

const Table = "system_settings"

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("setting not found")
)

type Service struct {
	data  core.DataService
	cache *cache.Cache
}

func NewService(data core.DataService, c *cache.Cache) *Service {
	return &Service{data: data, cache: c}
}

func keyAll() string { return cache.Key("settings", "all") }

// QueryAll returns every setting, by key.
func (svc *Service) QueryAll(ctx context.Context) ([]Setting, error) {
	return cache.Fetch(ctx, svc.cache, keyAll(), func(ctx context.Context) ([]Setting, error) {
		settings := make([]Setting, 0)
		if err := svc.data.Select(ctx, core.NewQuery(Table).OrderBy(core.Asc("key")), &settings); err != nil {
			return nil, errors.Wrap(err, "querying settings")
		}
		return settings, nil
	})
}

// Get returns the setting named key.
func (svc *Service) Get(ctx context.Context, key string) (Setting, error) {
	settings, err := svc.QueryAll(ctx)
	if err != nil {
		return Setting{}, err
	}
	key = core.CleanString(key, true /* lower */)
	for _, s := range settings {
		if s.Key == key {
			return s, nil
		}
	}
	return Setting{}, ErrNotFound
}

// Update sets the value of a setting, creating it if needed. An empty description keeps the current one.
func (svc *Service) Update(ctx context.Context, us UpdateSetting, updatedBy string) (Setting, error) {
	now := nowFunc().UTC()
	row := core.Values{
		"id":         uuid.New().String(),
		"key":        us.Key,
		"value":      us.Value,
		"updated_by": null.NewString(updatedBy, updatedBy != ""),
		"created_at": now,
		"updated_at": now,
	}
	if us.Description != "" {
		row["description"] = us.Description
	}

	updated := make([]Setting, 0, 1)
	if err := svc.data.Upsert(ctx, Table, []string{"key"}, []core.Values{row}, &updated); err != nil {
		return Setting{}, errors.Wrap(err, "upserting setting")
	}
	svc.cache.Invalidate(keyAll())
	if len(updated) == 0 {
		return Setting{}, errors.New("upserting setting: no row stored")
	}
	return updated[0], nil
}
