package sqlxrepos

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

// Stored procedures, ran with named parameters.
var procedures = map[string]string{
	"fn_get_system_stats": `
SELECT
	(SELECT COUNT(*) FROM schools) AS total_schools,
	(SELECT COUNT(*) FROM teachers) AS total_teachers,
	(SELECT COUNT(*) FROM students) AS total_students,
	(SELECT COUNT(*) FROM classes) AS total_classes,
	(SELECT COUNT(*) FROM users WHERE active) AS active_users,
	COALESCE((SELECT AVG(CASE WHEN is_present THEN 100.0 ELSE 0 END) FROM attendance), 0) AS system_attendance_rate`,

	"fn_get_school_stats": `
SELECT
	(SELECT COUNT(*) FROM teachers WHERE school_id = :school_id) AS total_teachers,
	(SELECT COUNT(*) FROM students s JOIN classes c ON c.id = s.class_id WHERE c.school_id = :school_id) AS total_students,
	(SELECT COUNT(*) FROM classes WHERE school_id = :school_id) AS total_classes,
	COALESCE((
		SELECT AVG(CASE WHEN a.is_present THEN 100.0 ELSE 0 END)
		FROM attendance a
			JOIN students s ON s.id = a.student_id
			JOIN classes c ON c.id = s.class_id
		WHERE c.school_id = :school_id
	), 0) AS attendance_rate`,
}

// Store is a core.DataService over a SQL database.
type Store struct {
	db *sqlx.DB
}

var _ core.DataService = (*Store)(nil) // interface compliance check

func NewStore(db *sqlx.DB) *Store {
	// rows are decoded into structs that may not map every column
	return &Store{db: db.Unsafe()}
}

func (s *Store) driver() string {
	return s.db.DriverName()
}

// trapNoRowsErr maps sql.ErrNoRows to core.ErrNoRows
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return core.ErrNoRows
	}
	return errors.Wrap(err, msg)
}

func (s *Store) Select(ctx context.Context, q core.Query, dest interface{}) error {
	query, args, err := selectSQL(s.driver(), q)
	if err != nil {
		return errors.Wrap(err, "building select")
	}
	if err = s.db.SelectContext(ctx, dest, query, args...); err != nil {
		return errors.Wrapf(err, "selecting %s", q.Table)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, q core.Query, dest interface{}) error {
	if q.Limit == 0 {
		q.Limit = 1
	}
	query, args, err := selectSQL(s.driver(), q)
	if err != nil {
		return errors.Wrap(err, "building select")
	}
	if err = s.db.GetContext(ctx, dest, query, args...); err != nil {
		return trapNoRowsErr(err, "getting "+q.Table)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, q core.Query) (int, error) {
	query, args, err := countSQL(s.driver(), q)
	if err != nil {
		return 0, errors.Wrap(err, "building count")
	}
	var count int
	if err = s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, errors.Wrapf(err, "counting %s", q.Table)
	}
	return count, nil
}

func (s *Store) Insert(ctx context.Context, table string, vals core.Values, dest interface{}) error {
	query, args, err := insertSQL(s.driver(), table, []core.Values{vals}, nil)
	if err != nil {
		return errors.Wrap(err, "building insert")
	}
	if dest == nil {
		_, err = s.db.ExecContext(ctx, query, args...)
	} else {
		err = s.db.GetContext(ctx, dest, query, args...)
	}
	if err != nil {
		return errors.Wrapf(err, "inserting into %s", table)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, vals core.Values, filters []core.Filter, dest interface{}) error {
	query, args, err := updateSQL(s.driver(), table, vals, filters)
	if err != nil {
		return errors.Wrap(err, "building update")
	}
	if dest == nil {
		if _, err = s.db.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrapf(err, "updating %s", table)
		}
		return nil
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(err, "updating %s", table)
	}
	defer func() { _ = rows.Close() }()

	// decode the first updated row, drain the others
	found := false
	for rows.Next() {
		if found {
			continue
		}
		if err = rows.StructScan(dest); err != nil {
			return errors.Wrapf(err, "scanning %s", table)
		}
		found = true
	}
	if err = rows.Err(); err != nil {
		return errors.Wrapf(err, "updating %s", table)
	}
	if !found {
		return core.ErrNoRows
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, table string, onConflict []string, rows []core.Values, dest interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := insertSQL(s.driver(), table, rows, onConflict)
	if err != nil {
		return errors.Wrap(err, "building upsert")
	}
	if dest == nil {
		_, err = s.db.ExecContext(ctx, query, args...)
	} else {
		err = s.db.SelectContext(ctx, dest, query, args...)
	}
	if err != nil {
		return errors.Wrapf(err, "upserting into %s", table)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, filters []core.Filter) error {
	query, args, err := deleteSQL(s.driver(), table, filters)
	if err != nil {
		return errors.Wrap(err, "building delete")
	}
	if _, err = s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "deleting from %s", table)
	}
	return nil
}

func (s *Store) Call(ctx context.Context, fn string, params core.Values, dest interface{}) error {
	proc, ok := procedures[fn]
	if !ok {
		return errors.Errorf("unknown procedure %q", fn)
	}
	if params == nil {
		params = core.Values{}
	}
	query, args, err := sqlx.Named(proc, map[string]interface{}(params))
	if err != nil {
		return errors.Wrapf(err, "binding %s parameters", fn)
	}
	query = s.db.Rebind(query)

	// scalar or struct result
	if rv := reflect.ValueOf(dest); rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Slice {
		err = s.db.SelectContext(ctx, dest, query, args...)
	} else {
		err = s.db.GetContext(ctx, dest, query, args...)
	}
	if err != nil {
		return trapNoRowsErr(err, "calling "+fn)
	}
	return nil
}
