package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
	"github.com/trezcool/escola/core/student"
)

const Table = "attendance"

var (
	nowFunc = time.Now // mockable

	// errors
	ErrInvalidRange = errors.New("the start date must not be after the end date")
)

type Service struct {
	data       core.DataService
	cache      *cache.Cache
	studentSvc *student.Service
}

func NewService(data core.DataService, c *cache.Cache, studentSvc *student.Service) *Service {
	return &Service{data: data, cache: c, studentSvc: studentSvc}
}

func keyStudent(studentID string, from, to core.Date) string {
	return cache.Key(Table, "student", studentID, from.String(), to.String())
}

func keyClass(classID string, date core.Date) string {
	return cache.Key(Table, "class", classID, date.String())
}

// QueryStudent returns the attendance of a student between two days (inclusive), latest first.
// A zero bound leaves that side of the range open.
func (svc *Service) QueryStudent(ctx context.Context, studentID string, from, to core.Date) ([]Attendance, error) {
	if !from.IsZero() && !to.IsZero() && from.After(to.Time) {
		return nil, core.NewValidationError(ErrInvalidRange, core.FieldError{Field: "from", Error: ErrInvalidRange.Error()})
	}
	return cache.Fetch(ctx, svc.cache, keyStudent(studentID, from, to), func(ctx context.Context) ([]Attendance, error) {
		q := core.NewQuery(Table).Where(core.Eq("student_id", studentID)).OrderBy(core.Desc("date"))
		if !from.IsZero() {
			q = q.Where(core.Gte("date", from))
		}
		if !to.IsZero() {
			q = q.Where(core.Lte("date", to))
		}
		records := make([]Attendance, 0)
		if err := svc.data.Select(ctx, q, &records); err != nil {
			return nil, errors.Wrap(err, "querying student attendance")
		}
		return records, nil
	})
}

// QueryClass returns the attendance of the students of a class on a given day, by student name.
func (svc *Service) QueryClass(ctx context.Context, classID string, date core.Date) ([]Attendance, error) {
	return cache.Fetch(ctx, svc.cache, keyClass(classID, date), func(ctx context.Context) ([]Attendance, error) {
		students, err := svc.studentSvc.QueryByClass(ctx, classID)
		if err != nil {
			return nil, err
		}
		records := make([]Attendance, 0, len(students))
		if len(students) == 0 {
			return records, nil
		}

		ids := make([]string, 0, len(students))
		for _, st := range students {
			ids = append(ids, st.ID)
		}
		q := core.NewQuery(Table).Where(core.Eq("date", date), core.InStrings("student_id", ids...))
		if err = svc.data.Select(ctx, q, &records); err != nil {
			return nil, errors.Wrap(err, "querying class attendance")
		}

		byStudent := make(map[string]Attendance, len(records))
		for _, rec := range records {
			byStudent[rec.StudentID] = rec
		}
		sorted := records[:0]
		for _, st := range students { // students are sorted by name
			if rec, ok := byStudent[st.ID]; ok {
				rec.Student = &StudentRef{ID: st.ID, Name: st.Name}
				sorted = append(sorted, rec)
			}
		}
		return sorted, nil
	})
}

// Mark records the attendance of a student.
func (svc *Service) Mark(ctx context.Context, ma MarkAttendance) (Attendance, error) {
	records, err := svc.BulkMark(ctx, []MarkAttendance{ma})
	if err != nil {
		return Attendance{}, err
	}
	if len(records) == 0 {
		return Attendance{}, errors.New("marking attendance: no record stored")
	}
	return records[0], nil
}

// BulkMark records the attendance of many students at once.
func (svc *Service) BulkMark(ctx context.Context, marks []MarkAttendance) ([]Attendance, error) {
	records := make([]Attendance, 0, len(marks))
	if len(marks) == 0 {
		return records, nil
	}

	now := nowFunc().UTC()
	rows := make([]core.Values, 0, len(marks))
	studentIDs := make([]string, 0, len(marks))
	for _, ma := range marks {
		rows = append(rows, core.Values{
			"id":         uuid.New().String(),
			"student_id": ma.StudentID,
			"date":       ma.Date,
			"is_present": ma.IsPresent,
			"reason":     ma.Reason,
			"created_at": now,
			"updated_at": now,
		})
		if !core.Contains(studentIDs, ma.StudentID) {
			studentIDs = append(studentIDs, ma.StudentID)
		}
	}
	if err := svc.data.Upsert(ctx, Table, []string{"student_id", "date"}, rows, &records); err != nil {
		return nil, errors.Wrap(err, "upserting attendance")
	}

	if err := svc.invalidate(ctx, studentIDs, marks); err != nil {
		return nil, err
	}
	return records, nil
}

func (svc *Service) invalidate(ctx context.Context, studentIDs []string, marks []MarkAttendance) error {
	students, err := svc.studentSvc.QueryByIDs(ctx, studentIDs...)
	if err != nil {
		return errors.Wrap(err, "querying marked students")
	}
	classByStudent := make(map[string]string, len(students))
	for _, st := range students {
		classByStudent[st.ID] = st.ClassID
	}

	for _, id := range studentIDs {
		svc.cache.InvalidatePrefix(cache.Key(Table, "student", id) + ":")
	}
	for _, ma := range marks {
		if classID, ok := classByStudent[ma.StudentID]; ok {
			svc.cache.Invalidate(keyClass(classID, ma.Date))
		}
	}
	return nil
}
