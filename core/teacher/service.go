package teacher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
	"github.com/trezcool/escola/core/user"
)

const Table = "teachers"

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("teacher not found")
)

type Service struct {
	data   core.DataService
	cache  *cache.Cache
	usrSvc *user.Service
}

func NewService(data core.DataService, c *cache.Cache, usrSvc *user.Service) *Service {
	return &Service{data: data, cache: c, usrSvc: usrSvc}
}

func keyAll() string                   { return cache.Key(Table, "all") }
func keyTeacher(id string) string      { return cache.Key(Table, id) }
func keySchool(schoolID string) string { return cache.Key(Table, "school", schoolID) }

// invalidate drops the teachers entries and the class rosters they show in.
func (svc *Service) invalidate() {
	svc.cache.InvalidatePrefix(Table + ":")
	svc.cache.InvalidatePrefix("classes:")
}

// trapNoRowsErr maps core.ErrNoRows to ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == core.ErrNoRows {
		return ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// attach sets the User and School references of teachers.
func (svc *Service) attach(ctx context.Context, teachers []Teacher) error {
	if len(teachers) == 0 {
		return nil
	}
	usrIDs := make([]string, 0, len(teachers))
	schoolIDs := make([]string, 0, len(teachers))
	for _, t := range teachers {
		usrIDs = append(usrIDs, t.UserID)
		if !core.Contains(schoolIDs, t.SchoolID) {
			schoolIDs = append(schoolIDs, t.SchoolID)
		}
	}

	users := make([]UserRef, 0, len(usrIDs))
	q := core.NewQuery(user.Table, "id", "full_name", "email").Where(core.InStrings("id", usrIDs...))
	if err := svc.data.Select(ctx, q, &users); err != nil {
		return errors.Wrap(err, "querying teacher users")
	}
	schools := make([]SchoolRef, 0, len(schoolIDs))
	q = core.NewQuery("schools", "id", "name").Where(core.InStrings("id", schoolIDs...))
	if err := svc.data.Select(ctx, q, &schools); err != nil {
		return errors.Wrap(err, "querying teacher schools")
	}

	usrByID := make(map[string]*UserRef, len(users))
	for i := range users {
		usrByID[users[i].ID] = &users[i]
	}
	schoolByID := make(map[string]*SchoolRef, len(schools))
	for i := range schools {
		schoolByID[schools[i].ID] = &schools[i]
	}
	for i := range teachers {
		teachers[i].User = usrByID[teachers[i].UserID]
		teachers[i].School = schoolByID[teachers[i].SchoolID]
	}
	return nil
}

func (svc *Service) query(ctx context.Context, q core.Query) ([]Teacher, error) {
	teachers := make([]Teacher, 0)
	if err := svc.data.Select(ctx, q.OrderBy(core.Asc("created_at")), &teachers); err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	if err := svc.attach(ctx, teachers); err != nil {
		return nil, err
	}
	return teachers, nil
}

// QueryAll returns every teacher, oldest first.
func (svc *Service) QueryAll(ctx context.Context) ([]Teacher, error) {
	return cache.Fetch(ctx, svc.cache, keyAll(), func(ctx context.Context) ([]Teacher, error) {
		return svc.query(ctx, core.NewQuery(Table))
	})
}

func (svc *Service) QueryBySchool(ctx context.Context, schoolID string) ([]Teacher, error) {
	return cache.Fetch(ctx, svc.cache, keySchool(schoolID), func(ctx context.Context) ([]Teacher, error) {
		return svc.query(ctx, core.NewQuery(Table).Where(core.Eq("school_id", schoolID)))
	})
}

// QueryByIDs returns the teachers with the given IDs, bypassing the cache.
func (svc *Service) QueryByIDs(ctx context.Context, ids ...string) ([]Teacher, error) {
	if len(ids) == 0 {
		return make([]Teacher, 0), nil
	}
	return svc.query(ctx, core.NewQuery(Table).Where(core.InStrings("id", ids...)))
}

func (svc *Service) GetByID(ctx context.Context, id string) (Teacher, error) {
	return cache.Fetch(ctx, svc.cache, keyTeacher(id), func(ctx context.Context) (Teacher, error) {
		teachers, err := svc.query(ctx, core.NewQuery(Table).Where(core.Eq("id", id)))
		if err != nil {
			return Teacher{}, err
		}
		if len(teachers) == 0 {
			return Teacher{}, ErrNotFound
		}
		return teachers[0], nil
	})
}

// GetByUserID returns the teacher record of a user.
func (svc *Service) GetByUserID(ctx context.Context, userID string) (Teacher, error) {
	var t Teacher
	if err := svc.data.Get(ctx, core.NewQuery(Table).Where(core.Eq("user_id", userID)), &t); err != nil {
		return Teacher{}, trapNoRowsErr(err, "getting teacher by user")
	}
	return t, nil
}

// Register creates the user account of a teacher (emailed its credentials), then the teacher record.
func (svc *Service) Register(ctx context.Context, rt RegisterTeacher) (Teacher, error) {
	usr, err := svc.usrSvc.Create(ctx, user.NewUser{
		FullName:        rt.FullName,
		Email:           rt.Email,
		Role:            user.RoleTeacher,
		SchoolID:        null.StringFrom(rt.SchoolID),
		Password:        rt.Password,
		PasswordConfirm: rt.PasswordConfirm,
	})
	if err != nil {
		return Teacher{}, err
	}

	now := nowFunc().UTC()
	vals := core.Values{
		"id":         uuid.New().String(),
		"user_id":    usr.ID,
		"school_id":  rt.SchoolID,
		"created_at": now,
		"updated_at": now,
	}
	var t Teacher
	if err = svc.data.Insert(ctx, Table, vals, &t); err != nil {
		if dErr := svc.usrSvc.Delete(ctx, usr.ID); dErr != nil {
			err = errors.Wrapf(err, "deleting user: %v", dErr)
		}
		return Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	svc.invalidate()

	created := []Teacher{t}
	if err = svc.attach(ctx, created); err != nil {
		return Teacher{}, err
	}
	return created[0], nil
}

// Update moves a teacher to another school; its user follows.
func (svc *Service) Update(ctx context.Context, id string, ut UpdateTeacher) (Teacher, error) {
	vals := core.Values{"school_id": ut.SchoolID, "updated_at": nowFunc().UTC()}
	var t Teacher
	if err := svc.data.Update(ctx, Table, vals, []core.Filter{core.Eq("id", id)}, &t); err != nil {
		return Teacher{}, trapNoRowsErr(err, "updating teacher")
	}
	usr, err := svc.usrSvc.GetByID(ctx, t.UserID)
	if err != nil {
		return Teacher{}, errors.Wrap(err, "getting teacher user")
	}
	if _, err = svc.usrSvc.Update(ctx, usr.ID, user.UpdateUser{
		FullName: usr.FullName,
		Email:    usr.Email,
		Role:     usr.Role,
		SchoolID: null.StringFrom(ut.SchoolID),
	}); err != nil {
		return Teacher{}, errors.Wrap(err, "updating teacher user")
	}
	svc.invalidate()

	updated := []Teacher{t}
	if err = svc.attach(ctx, updated); err != nil {
		return Teacher{}, err
	}
	return updated[0], nil
}

// Delete deletes the teacher record; its user account stays.
func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.data.Delete(ctx, Table, []core.Filter{core.Eq("id", id)}); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	svc.invalidate()
	return nil
}
