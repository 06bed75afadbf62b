// Package stats reads the dashboard figures computed by the remote procedures.
package stats

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
)

// Remote procedures
const (
	SystemProcedure = "fn_get_system_stats"
	SchoolProcedure = "fn_get_school_stats"
)

type (
	System struct {
		TotalSchools   int     `json:"total_schools" db:"total_schools"`
		TotalTeachers  int     `json:"total_teachers" db:"total_teachers"`
		TotalStudents  int     `json:"total_students" db:"total_students"`
		TotalClasses   int     `json:"total_classes" db:"total_classes"`
		ActiveUsers    int     `json:"active_users" db:"active_users"`
		AttendanceRate float64 `json:"system_attendance_rate" db:"system_attendance_rate"`
	}

	School struct {
		SchoolID       string  `json:"school_id" db:"-"`
		TotalTeachers  int     `json:"total_teachers" db:"total_teachers"`
		TotalStudents  int     `json:"total_students" db:"total_students"`
		TotalClasses   int     `json:"total_classes" db:"total_classes"`
		AttendanceRate float64 `json:"attendance_rate" db:"attendance_rate"`
	}
)

// Service caches the figures until they expire: mutations elsewhere do not refresh them.
type Service struct {
	data  core.DataService
	cache *cache.Cache
}

func NewService(data core.DataService, c *cache.Cache) *Service {
	return &Service{data: data, cache: c}
}

func (svc *Service) System(ctx context.Context) (System, error) {
	return cache.Fetch(ctx, svc.cache, cache.Key("stats", "system"), func(ctx context.Context) (System, error) {
		var st System
		if err := svc.data.Call(ctx, SystemProcedure, nil, &st); err != nil {
			return System{}, errors.Wrap(err, "getting system stats")
		}
		return st, nil
	})
}

func (svc *Service) School(ctx context.Context, schoolID string) (School, error) {
	return cache.Fetch(ctx, svc.cache, cache.Key("stats", "school", schoolID), func(ctx context.Context) (School, error) {
		var st School
		if err := svc.data.Call(ctx, SchoolProcedure, core.Values{"school_id": schoolID}, &st); err != nil {
			return School{}, errors.Wrap(err, "getting school stats")
		}
		st.SchoolID = schoolID
		return st, nil
	})
}
