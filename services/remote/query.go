package remotesvc

import (
	"database/sql/driver"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

// formatValue renders a filter value the way the data API expects it in a query string.
func formatValue(v interface{}) (string, error) {
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return "", err
		}
		v = dv
	}
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return val.String(), nil
	}
	return fmt.Sprint(v), nil
}

// quote protects list items holding reserved characters.
func quote(s string) string {
	if strings.ContainsAny(s, `,.:()" `) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

// condition renders f as "<op>.<value>".
func condition(f core.Filter) (string, error) {
	switch f.Op {
	case core.OpEq, core.OpNeq, core.OpGt, core.OpGte, core.OpLt, core.OpLte:
		v, err := formatValue(f.Value)
		if err != nil {
			return "", err
		}
		return string(f.Op) + "." + v, nil
	case core.OpILike:
		pattern, ok := f.Value.(string)
		if !ok {
			return "", errors.Errorf("ilike on %q: want a string pattern, got %T", f.Column, f.Value)
		}
		return "ilike." + strings.ReplaceAll(pattern, "%", "*"), nil
	case core.OpIs:
		return "is.null", nil
	case core.OpIn:
		vals, ok := f.Value.([]interface{})
		if !ok {
			return "", errors.Errorf("in on %q: want a list, got %T", f.Column, f.Value)
		}
		items := make([]string, 0, len(vals))
		for _, val := range vals {
			v, err := formatValue(val)
			if err != nil {
				return "", err
			}
			items = append(items, quote(v))
		}
		return "in.(" + strings.Join(items, ",") + ")", nil
	}
	return "", errors.Errorf("unsupported operator %q", f.Op)
}

// or renders the alternatives of an OpOr filter as "(<col>.<op>.<value>,...)".
func or(f core.Filter) (string, error) {
	filters, ok := f.Value.([]core.Filter)
	if !ok || len(filters) == 0 {
		return "", errors.New("or: want a non-empty filter list")
	}
	parts := make([]string, 0, len(filters))
	for _, sub := range filters {
		if sub.Op == core.OpOr {
			return "", errors.New("or: nested alternatives are not supported")
		}
		cond, err := condition(sub)
		if err != nil {
			return "", err
		}
		parts = append(parts, sub.Column+"."+cond)
	}
	return "(" + strings.Join(parts, ",") + ")", nil
}

func filterParams(params url.Values, filters []core.Filter) error {
	for _, f := range filters {
		if f.Op == core.OpOr {
			cond, err := or(f)
			if err != nil {
				return err
			}
			params.Add("or", cond)
			continue
		}
		cond, err := condition(f)
		if err != nil {
			return err
		}
		params.Add(f.Column, cond)
	}
	return nil
}

// queryParams renders q as data API query parameters.
func queryParams(q core.Query) (url.Values, error) {
	params := url.Values{}
	if len(q.Columns) > 0 {
		params.Set("select", strings.Join(q.Columns, ","))
	}
	if err := filterParams(params, q.Filters); err != nil {
		return nil, err
	}
	if len(q.Order) > 0 {
		order := make([]string, 0, len(q.Order))
		for _, ord := range q.Order {
			dir := "desc"
			if ord.Ascending {
				dir = "asc"
			}
			order = append(order, ord.Field+"."+dir)
		}
		params.Set("order", strings.Join(order, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	return params, nil
}

func tablePath(table string, params url.Values) string {
	p := restPath + "/" + url.PathEscape(table)
	if len(params) > 0 {
		p += "?" + params.Encode()
	}
	return p
}

// jsonValues prepares vals for a JSON body: Valuers holding NULL become null.
func jsonValues(vals core.Values) (map[string]interface{}, error) {
	res := make(map[string]interface{}, len(vals))
	for col, v := range vals {
		if valuer, ok := v.(driver.Valuer); ok {
			dv, err := valuer.Value()
			if err != nil {
				return nil, errors.Wrapf(err, "column %q", col)
			}
			if dv == nil {
				res[col] = nil
				continue
			}
		}
		res[col] = v
	}
	return res, nil
}
