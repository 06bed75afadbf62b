package echoapi

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/escola/core"
)

var orderingParam = "ordering"

// Ordering binds the `ordering` query param: comma separated fields, descending when prefixed with "-".
// Fields outside of allowed are dropped.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !core.Contains(allowed, field) {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// pathID returns the path param name, when it is a valid ID.
func pathID(ctx echo.Context, validate *validator.Validate, name string) (string, error) {
	id := strings.TrimSpace(ctx.Param(name))
	if err := validate.Var(id, "required,uuid"); err != nil {
		return "", errHttpNotFound
	}
	return id, nil
}
