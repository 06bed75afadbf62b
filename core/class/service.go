package class

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/teacher"
)

const (
	Table         = "classes"
	TeachersTable = "class_teachers"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound          = errors.New("class not found")
	ErrTeacherAssigned   = errors.New("teacher already assigned to this class")
	ErrTeacherUnassigned = errors.New("teacher not assigned to this class")
)

type Service struct {
	data       core.DataService
	cache      *cache.Cache
	studentSvc *student.Service
	teacherSvc *teacher.Service
}

func NewService(data core.DataService, c *cache.Cache, studentSvc *student.Service, teacherSvc *teacher.Service) *Service {
	return &Service{data: data, cache: c, studentSvc: studentSvc, teacherSvc: teacherSvc}
}

func keyAll() string                    { return cache.Key(Table, "all") }
func keyClass(id string) string         { return cache.Key(Table, id) }
func keyClassTeachers(id string) string { return cache.Key(Table, id, "teachers") }

// trapNoRowsErr maps core.ErrNoRows to ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == core.ErrNoRows {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// QueryAll returns every class, by name.
func (svc *Service) QueryAll(ctx context.Context) ([]Class, error) {
	return cache.Fetch(ctx, svc.cache, keyAll(), func(ctx context.Context) ([]Class, error) {
		classes := make([]Class, 0)
		if err := svc.data.Select(ctx, core.NewQuery(Table).OrderBy(core.Asc("name")), &classes); err != nil {
			return nil, errors.Wrap(err, "querying classes")
		}
		return classes, nil
	})
}

// QueryBySchool returns the classes of a school, by name.
func (svc *Service) QueryBySchool(ctx context.Context, schoolID string) ([]Class, error) {
	classes := make([]Class, 0)
	q := core.NewQuery(Table).Where(core.Eq("school_id", schoolID)).OrderBy(core.Asc("name"))
	if err := svc.data.Select(ctx, q, &classes); err != nil {
		return nil, errors.Wrap(err, "querying school classes")
	}
	return classes, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Class, error) {
	return cache.Fetch(ctx, svc.cache, keyClass(id), func(ctx context.Context) (Class, error) {
		var cls Class
		if err := svc.data.Get(ctx, core.NewQuery(Table).Where(core.Eq("id", id)), &cls); err != nil {
			return Class{}, trapNoRowsErr(err, "getting class")
		}
		return cls, nil
	})
}

// QueryStudents returns the students of a class, by name.
func (svc *Service) QueryStudents(ctx context.Context, classID string) ([]student.Student, error) {
	return svc.studentSvc.QueryByClass(ctx, classID)
}

// QueryTeachers returns the teachers assigned to a class.
func (svc *Service) QueryTeachers(ctx context.Context, classID string) ([]teacher.Teacher, error) {
	return cache.Fetch(ctx, svc.cache, keyClassTeachers(classID), func(ctx context.Context) ([]teacher.Teacher, error) {
		links := make([]classTeacher, 0)
		q := core.NewQuery(TeachersTable, "class_id", "teacher_id").Where(core.Eq("class_id", classID))
		if err := svc.data.Select(ctx, q, &links); err != nil {
			return nil, errors.Wrap(err, "querying class teachers")
		}
		ids := make([]string, 0, len(links))
		for _, l := range links {
			ids = append(ids, l.TeacherID)
		}
		return svc.teacherSvc.QueryByIDs(ctx, ids...)
	})
}

func (svc *Service) Create(ctx context.Context, nc NewClass) (Class, error) {
	now := nowFunc().UTC()
	vals := core.Values{
		"id":         uuid.New().String(),
		"name":       nc.Name,
		"school_id":  nc.SchoolID,
		"created_at": now,
		"updated_at": now,
	}
	var cls Class
	if err := svc.data.Insert(ctx, Table, vals, &cls); err != nil {
		return Class{}, errors.Wrap(err, "inserting class")
	}
	svc.cache.Invalidate(keyAll())
	return cls, nil
}

func (svc *Service) Update(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	vals := core.Values{
		"name":       uc.Name,
		"school_id":  uc.SchoolID,
		"updated_at": nowFunc().UTC(),
	}
	var cls Class
	if err := svc.data.Update(ctx, Table, vals, []core.Filter{core.Eq("id", id)}, &cls); err != nil {
		return Class{}, trapNoRowsErr(err, "updating class")
	}
	svc.cache.Invalidate(keyAll())
	svc.cache.Invalidate(keyClass(id))
	return cls, nil
}

// Delete deletes a class along with its students and their attendance.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.data.Delete(ctx, Table, []core.Filter{core.Eq("id", id)}); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	svc.cache.Invalidate(keyAll())
	svc.cache.InvalidatePrefix(keyClass(id))
	svc.cache.InvalidatePrefix("students:")
	svc.cache.InvalidatePrefix("attendance:")
	return nil
}

func (svc *Service) AddTeacher(ctx context.Context, classID, teacherID string) error {
	q := core.NewQuery(TeachersTable).Where(core.Eq("class_id", classID), core.Eq("teacher_id", teacherID))
	count, err := svc.data.Count(ctx, q)
	if err != nil {
		return errors.Wrap(err, "checking class teacher")
	}
	if count > 0 {
		return ErrTeacherAssigned
	}

	now := nowFunc().UTC()
	vals := core.Values{
		"id":         uuid.New().String(),
		"class_id":   classID,
		"teacher_id": teacherID,
		"created_at": now,
		"updated_at": now,
	}
	if err = svc.data.Insert(ctx, TeachersTable, vals, nil); err != nil {
		return errors.Wrap(err, "assigning teacher")
	}
	svc.cache.Invalidate(keyClassTeachers(classID))
	return nil
}

func (svc *Service) RemoveTeacher(ctx context.Context, classID, teacherID string) error {
	filters := []core.Filter{core.Eq("class_id", classID), core.Eq("teacher_id", teacherID)}
	count, err := svc.data.Count(ctx, core.NewQuery(TeachersTable).Where(filters...))
	if err != nil {
		return errors.Wrap(err, "checking class teacher")
	}
	if count == 0 {
		return ErrTeacherUnassigned
	}
	if err = svc.data.Delete(ctx, TeachersTable, filters); err != nil {
		return errors.Wrap(err, "unassigning teacher")
	}
	svc.cache.Invalidate(keyClassTeachers(classID))
	return nil
}
