package school

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
)

const Table = "schools"

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("school not found")
)

type Service struct {
	data  core.DataService
	cache *cache.Cache
}

func NewService(data core.DataService, c *cache.Cache) *Service {
	return &Service{data: data, cache: c}
}

func keyAll() string             { return cache.Key(Table, "all") }
func keySchool(id string) string { return cache.Key(Table, id) }

// trapNoRowsErr maps core.ErrNoRows to ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == core.ErrNoRows {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// QueryAll returns every school, by name.
func (svc *Service) QueryAll(ctx context.Context) ([]School, error) {
	return cache.Fetch(ctx, svc.cache, keyAll(), func(ctx context.Context) ([]School, error) {
		schools := make([]School, 0)
		if err := svc.data.Select(ctx, core.NewQuery(Table).OrderBy(core.Asc("name")), &schools); err != nil {
			return nil, errors.Wrap(err, "querying schools")
		}
		return schools, nil
	})
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return cache.Fetch(ctx, svc.cache, keySchool(id), func(ctx context.Context) (School, error) {
		var sch School
		if err := svc.data.Get(ctx, core.NewQuery(Table).Where(core.Eq("id", id)), &sch); err != nil {
			return School{}, trapNoRowsErr(err, "getting school")
		}
		return sch, nil
	})
}

func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	now := nowFunc().UTC()
	vals := core.Values{
		"id":         uuid.New().String(),
		"name":       ns.Name,
		"address":    ns.Address,
		"phone":      ns.Phone,
		"created_at": now,
		"updated_at": now,
	}
	var sch School
	if err := svc.data.Insert(ctx, Table, vals, &sch); err != nil {
		return School{}, errors.Wrap(err, "inserting school")
	}
	svc.cache.Invalidate(keyAll())
	return sch, nil
}

// Update modifies a school. School names show in teachers, classes and stats: the whole cache is dropped.
func (svc *Service) Update(ctx context.Context, id string, us UpdateSchool) (School, error) {
	vals := core.Values{
		"name":       us.Name,
		"address":    us.Address,
		"phone":      us.Phone,
		"updated_at": nowFunc().UTC(),
	}
	var sch School
	if err := svc.data.Update(ctx, Table, vals, []core.Filter{core.Eq("id", id)}, &sch); err != nil {
		return School{}, trapNoRowsErr(err, "updating school")
	}
	svc.cache.InvalidateAll()
	return sch, nil
}

// Delete deletes a school along with its teachers, classes and students.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.data.Delete(ctx, Table, []core.Filter{core.Eq("id", id)}); err != nil {
		return errors.Wrap(err, "deleting school")
	}
	svc.cache.InvalidateAll()
	return nil
}
