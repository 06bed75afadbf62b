package student

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
)

const Table = "students"

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("student not found")
)

type Service struct {
	data  core.DataService
	cache *cache.Cache
}

func NewService(data core.DataService, c *cache.Cache) *Service {
	return &Service{data: data, cache: c}
}

func keyAll() string              { return cache.Key(Table, "all") }
func keyStudent(id string) string { return cache.Key(Table, id) }

// ClassKey is the cache key of the students of a class.
func ClassKey(classID string) string { return cache.Key("classes", classID, "students") }

// classAttendancePrefix prefixes the cache keys of the daily attendance of a class, built from its roster.
func classAttendancePrefix(classID string) string {
	return cache.Key("attendance", "class", classID) + ":"
}

func (svc *Service) invalidate(id string, classIDs ...string) {
	svc.cache.Invalidate(keyAll())
	svc.cache.Invalidate(keyStudent(id))
	for _, classID := range classIDs {
		svc.cache.Invalidate(ClassKey(classID))
		svc.cache.InvalidatePrefix(classAttendancePrefix(classID))
	}
}

// trapNoRowsErr maps core.ErrNoRows to ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == core.ErrNoRows {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// QueryAll returns every student, by name.
func (svc *Service) QueryAll(ctx context.Context) ([]Student, error) {
	return cache.Fetch(ctx, svc.cache, keyAll(), func(ctx context.Context) ([]Student, error) {
		students := make([]Student, 0)
		if err := svc.data.Select(ctx, core.NewQuery(Table).OrderBy(core.Asc("name")), &students); err != nil {
			return nil, errors.Wrap(err, "querying students")
		}
		return students, nil
	})
}

// QueryByClass returns the students of a class, by name.
func (svc *Service) QueryByClass(ctx context.Context, classID string) ([]Student, error) {
	return cache.Fetch(ctx, svc.cache, ClassKey(classID), func(ctx context.Context) ([]Student, error) {
		students := make([]Student, 0)
		q := core.NewQuery(Table).Where(core.Eq("class_id", classID)).OrderBy(core.Asc("name"))
		if err := svc.data.Select(ctx, q, &students); err != nil {
			return nil, errors.Wrap(err, "querying class students")
		}
		return students, nil
	})
}

// QueryByIDs returns the students with the given IDs, bypassing the cache.
func (svc *Service) QueryByIDs(ctx context.Context, ids ...string) ([]Student, error) {
	students := make([]Student, 0, len(ids))
	if len(ids) == 0 {
		return students, nil
	}
	if err := svc.data.Select(ctx, core.NewQuery(Table).Where(core.InStrings("id", ids...)), &students); err != nil {
		return nil, errors.Wrap(err, "querying students by ID")
	}
	return students, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return cache.Fetch(ctx, svc.cache, keyStudent(id), func(ctx context.Context) (Student, error) {
		var st Student
		if err := svc.data.Get(ctx, core.NewQuery(Table).Where(core.Eq("id", id)), &st); err != nil {
			return Student{}, trapNoRowsErr(err, "getting student")
		}
		return st, nil
	})
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := nowFunc().UTC()
	vals := core.Values{
		"id":         uuid.New().String(),
		"name":       ns.Name,
		"class_id":   ns.ClassID,
		"created_at": now,
		"updated_at": now,
	}
	var st Student
	if err := svc.data.Insert(ctx, Table, vals, &st); err != nil {
		return Student{}, errors.Wrap(err, "inserting student")
	}
	svc.invalidate(st.ID, st.ClassID)
	return st, nil
}

// Update modifies a student; a class change invalidates the rosters and attendance of both classes.
func (svc *Service) Update(ctx context.Context, orig Student, us UpdateStudent) (Student, error) {
	vals := core.Values{
		"name":       us.Name,
		"class_id":   us.ClassID,
		"updated_at": nowFunc().UTC(),
	}
	var st Student
	if err := svc.data.Update(ctx, Table, vals, []core.Filter{core.Eq("id", orig.ID)}, &st); err != nil {
		return Student{}, trapNoRowsErr(err, "updating student")
	}
	svc.invalidate(st.ID, orig.ClassID, st.ClassID)
	return st, nil
}

func (svc *Service) Delete(ctx context.Context, st Student) error {
	if err := svc.data.Delete(ctx, Table, []core.Filter{core.Eq("id", st.ID)}); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	svc.invalidate(st.ID, st.ClassID)
	svc.cache.InvalidatePrefix(cache.Key("attendance", "student", st.ID) + ":")
	return nil
}
