package sqlxrepos

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	comparisons = map[core.Operator]string{
		core.OpEq:  "=",
		core.OpNeq: "<>",
		core.OpGt:  ">",
		core.OpGte: ">=",
		core.OpLt:  "<",
		core.OpLte: "<=",
	}
)

// builder compiles core queries to SQL with "?" bindvars, rebound for the driver at the end.
type builder struct {
	driver  string
	sql     strings.Builder
	args    []interface{}
	usesIn  bool
	failure error
}

func newBuilder(driver string) *builder {
	return &builder{driver: driver}
}

func (b *builder) write(parts ...string) *builder {
	for _, p := range parts {
		b.sql.WriteString(p)
	}
	return b
}

func (b *builder) fail(err error) {
	if b.failure == nil {
		b.failure = err
	}
}

func (b *builder) ident(name string) string {
	if !identRe.MatchString(name) {
		b.fail(errors.Errorf("invalid identifier %q", name))
		return `""`
	}
	return `"` + name + `"`
}

func (b *builder) idents(names []string) string {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, b.ident(n))
	}
	return strings.Join(quoted, ", ")
}

func (b *builder) bind(val interface{}) string {
	b.args = append(b.args, val)
	return "?"
}

func (b *builder) columns(cols []string) string {
	if len(cols) == 0 {
		return "*"
	}
	return b.idents(cols)
}

func (b *builder) where(filters []core.Filter) *builder {
	if len(filters) == 0 {
		return b
	}
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		conds = append(conds, b.condition(f))
	}
	return b.write(" WHERE ", strings.Join(conds, " AND "))
}

func (b *builder) condition(f core.Filter) string {
	if op, ok := comparisons[f.Op]; ok {
		return fmt.Sprintf("%s %s %s", b.ident(f.Column), op, b.bind(f.Value))
	}

	switch f.Op {
	case core.OpILike:
		if b.driver == "postgres" {
			return fmt.Sprintf("%s ILIKE %s", b.ident(f.Column), b.bind(f.Value))
		}
		// LIKE is case-insensitive (ASCII) in SQLite
		return fmt.Sprintf("%s LIKE %s", b.ident(f.Column), b.bind(f.Value))
	case core.OpIs:
		if f.Value != nil {
			b.fail(errors.Errorf("unsupported %q value for %s", f.Op, f.Column))
		}
		return b.ident(f.Column) + " IS NULL"
	case core.OpIn:
		rv := reflect.ValueOf(f.Value)
		if rv.Kind() != reflect.Slice {
			b.fail(errors.Errorf("%q value for %s must be a slice", f.Op, f.Column))
			return "1=0"
		}
		if rv.Len() == 0 {
			return "1=0"
		}
		b.usesIn = true
		return fmt.Sprintf("%s IN (%s)", b.ident(f.Column), b.bind(f.Value))
	case core.OpOr:
		subs, ok := f.Value.([]core.Filter)
		if !ok || len(subs) == 0 {
			b.fail(errors.Errorf("%q value must be a non-empty []Filter", f.Op))
			return "1=0"
		}
		conds := make([]string, 0, len(subs))
		for _, sub := range subs {
			conds = append(conds, b.condition(sub))
		}
		return "(" + strings.Join(conds, " OR ") + ")"
	}

	b.fail(errors.Errorf("unsupported operator %q", f.Op))
	return "1=0"
}

func (b *builder) orderBy(ordering []core.DBOrdering) *builder {
	if len(ordering) == 0 {
		return b
	}
	terms := make([]string, 0, len(ordering))
	for _, o := range ordering {
		dir := "DESC"
		if o.Ascending {
			dir = "ASC"
		}
		terms = append(terms, b.ident(o.Field)+" "+dir)
	}
	return b.write(" ORDER BY ", strings.Join(terms, ", "))
}

func (b *builder) limit(limit, offset int) *builder {
	if limit > 0 {
		b.write(fmt.Sprintf(" LIMIT %d", limit))
	}
	if offset > 0 {
		if limit <= 0 && b.driver != "postgres" {
			// SQLite requires a LIMIT clause before OFFSET
			b.write(" LIMIT -1")
		}
		b.write(fmt.Sprintf(" OFFSET %d", offset))
	}
	return b
}

// sortedColumns returns the keys of vals, sorted.
func sortedColumns(vals core.Values) []string {
	cols := make([]string, 0, len(vals))
	for col := range vals {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func (b *builder) build() (string, []interface{}, error) {
	if b.failure != nil {
		return "", nil, b.failure
	}
	query, args := b.sql.String(), b.args
	if b.usesIn {
		var err error
		if query, args, err = sqlx.In(query, args...); err != nil {
			return "", nil, errors.Wrap(err, "expanding IN clause")
		}
	}
	return sqlx.Rebind(sqlx.BindType(b.driver), query), args, nil
}

func selectSQL(driver string, q core.Query) (string, []interface{}, error) {
	b := newBuilder(driver)
	b.write("SELECT ", b.columns(q.Columns), " FROM ", b.ident(q.Table))
	return b.where(q.Filters).orderBy(q.Order).limit(q.Limit, q.Offset).build()
}

func countSQL(driver string, q core.Query) (string, []interface{}, error) {
	b := newBuilder(driver)
	b.write("SELECT COUNT(*) FROM ", b.ident(q.Table))
	return b.where(q.Filters).build()
}

func insertSQL(driver, table string, rows []core.Values, onConflict []string) (string, []interface{}, error) {
	b := newBuilder(driver)
	if len(rows) == 0 || len(rows[0]) == 0 {
		return "", nil, errors.New("nothing to insert")
	}
	cols := sortedColumns(rows[0])
	b.write("INSERT INTO ", b.ident(table), " (", b.idents(cols), ") VALUES ")

	for i, row := range rows {
		if len(row) != len(cols) {
			return "", nil, errors.Errorf("row %d: columns differ from the first row", i)
		}
		params := make([]string, 0, len(cols))
		for _, col := range cols {
			val, ok := row[col]
			if !ok {
				return "", nil, errors.Errorf("row %d: missing column %q", i, col)
			}
			params = append(params, b.bind(val))
		}
		if i > 0 {
			b.write(", ")
		}
		b.write("(", strings.Join(params, ", "), ")")
	}

	if len(onConflict) > 0 {
		b.write(" ON CONFLICT (", b.idents(onConflict), ")")
		updates := make([]string, 0, len(cols))
		for _, col := range cols {
			// keep the original ID and creation time
			if col == "id" || col == "created_at" || core.Contains(onConflict, col) {
				continue
			}
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", b.ident(col), b.ident(col)))
		}
		if len(updates) == 0 {
			b.write(" DO NOTHING")
		} else {
			b.write(" DO UPDATE SET ", strings.Join(updates, ", "))
		}
	}
	b.write(" RETURNING *")
	return b.build()
}

func updateSQL(driver, table string, vals core.Values, filters []core.Filter) (string, []interface{}, error) {
	b := newBuilder(driver)
	if len(vals) == 0 {
		return "", nil, errors.New("nothing to update")
	}
	sets := make([]string, 0, len(vals))
	for _, col := range sortedColumns(vals) {
		sets = append(sets, fmt.Sprintf("%s = %s", b.ident(col), b.bind(vals[col])))
	}
	b.write("UPDATE ", b.ident(table), " SET ", strings.Join(sets, ", "))
	b.where(filters).write(" RETURNING *")
	return b.build()
}

func deleteSQL(driver, table string, filters []core.Filter) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, errors.New("refusing to delete without filters")
	}
	b := newBuilder(driver)
	b.write("DELETE FROM ", b.ident(table))
	return b.where(filters).build()
}
