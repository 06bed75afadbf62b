package core

import "context"

// Filter operators
const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpIn    Operator = "in"
	OpILike Operator = "ilike"
	OpIs    Operator = "is" // Value must be nil
	OpOr    Operator = "or" // Value is a []Filter; Column is ignored
)

type (
	Operator string

	// Filter is a single "column <op> value" condition. Filters of a Query are ANDed.
	Filter struct {
		Column string
		Op     Operator
		Value  interface{}
	}

	// Values maps column names to values for inserts and updates.
	Values map[string]interface{}

	// Query describes a read on a single table.
	Query struct {
		Table   string
		Columns []string // defaults to all columns
		Filters []Filter
		Order   []DBOrdering
		Limit   int // 0: no limit
		Offset  int
	}

	// DataService is the generic remote data collaborator: a relational store addressed by table name.
	// Rows are decoded into structs carrying `json` and `db` tags.
	DataService interface {
		// Select decodes all rows matching q into dest (pointer to a slice).
		Select(ctx context.Context, q Query, dest interface{}) error
		// Get decodes the single row matching q into dest (pointer to a struct); ErrNoRows if none.
		Get(ctx context.Context, q Query, dest interface{}) error
		// Count returns the number of rows matching q, ignoring its ordering and range.
		Count(ctx context.Context, q Query) (int, error)
		// Insert inserts a row and decodes the stored row into dest, unless dest is nil.
		Insert(ctx context.Context, table string, vals Values, dest interface{}) error
		// Update updates the rows matching filters and decodes the updated row into dest, unless dest is nil.
		// ErrNoRows if dest is not nil and nothing matched.
		Update(ctx context.Context, table string, vals Values, filters []Filter, dest interface{}) error
		// Upsert inserts rows, updating those conflicting on the onConflict columns.
		// The stored rows are decoded into dest (pointer to a slice), unless dest is nil.
		Upsert(ctx context.Context, table string, onConflict []string, rows []Values, dest interface{}) error
		// Delete deletes the rows matching filters.
		Delete(ctx context.Context, table string, filters []Filter) error
		// Call invokes the named remote procedure and decodes its single-row result into dest.
		Call(ctx context.Context, fn string, params Values, dest interface{}) error
	}
)

func NewQuery(table string, columns ...string) Query {
	return Query{Table: table, Columns: columns}
}

func (q Query) Where(filters ...Filter) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), filters...)
	return q
}

func (q Query) OrderBy(ordering ...DBOrdering) Query {
	q.Order = append(append([]DBOrdering(nil), q.Order...), ordering...)
	return q
}

func (q Query) Range(limit, offset int) Query {
	q.Limit = limit
	q.Offset = offset
	return q
}

func Eq(col string, val interface{}) Filter     { return Filter{Column: col, Op: OpEq, Value: val} }
func Neq(col string, val interface{}) Filter    { return Filter{Column: col, Op: OpNeq, Value: val} }
func Gt(col string, val interface{}) Filter     { return Filter{Column: col, Op: OpGt, Value: val} }
func Gte(col string, val interface{}) Filter    { return Filter{Column: col, Op: OpGte, Value: val} }
func Lt(col string, val interface{}) Filter     { return Filter{Column: col, Op: OpLt, Value: val} }
func Lte(col string, val interface{}) Filter    { return Filter{Column: col, Op: OpLte, Value: val} }
func ILike(col string, val string) Filter       { return Filter{Column: col, Op: OpILike, Value: val} }
func IsNull(col string) Filter                  { return Filter{Column: col, Op: OpIs, Value: nil} }
func In(col string, vals ...interface{}) Filter { return Filter{Column: col, Op: OpIn, Value: vals} }

// Or matches rows matching any of filters.
func Or(filters ...Filter) Filter { return Filter{Op: OpOr, Value: filters} }

// InStrings is In for string values.
func InStrings(col string, vals ...string) Filter {
	ivals := make([]interface{}, 0, len(vals))
	for _, v := range vals {
		ivals = append(ivals, v)
	}
	return In(col, ivals...)
}

func Asc(field string) DBOrdering  { return DBOrdering{Field: field, Ascending: true} }
func Desc(field string) DBOrdering { return DBOrdering{Field: field} }
