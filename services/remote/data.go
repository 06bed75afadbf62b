package remotesvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/escola/core"
)

var _ core.DataService = (*Client)(nil) // interface compliance check

// noRowsCode is the data API error code of a single-row read that matched nothing.
const noRowsCode = "PGRST116"

func (c *Client) Select(ctx context.Context, q core.Query, dest interface{}) error {
	params, err := queryParams(q)
	if err != nil {
		return errors.Wrap(err, "building select")
	}
	res, err := c.do(ctx, request{method: http.MethodGet, path: tablePath(q.Table, params)})
	if err != nil {
		return errors.Wrapf(err, "selecting %s", q.Table)
	}
	return decode(res, dest)
}

func (c *Client) Get(ctx context.Context, q core.Query, dest interface{}) error {
	if q.Limit == 0 {
		q.Limit = 1
	}
	params, err := queryParams(q)
	if err != nil {
		return errors.Wrap(err, "building select")
	}
	res, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    tablePath(q.Table, params),
		headers: map[string]string{"Accept": mimeObject},
	})
	if err != nil {
		var rErr *core.RemoteError
		if errors.As(err, &rErr) && (rErr.StatusCode == http.StatusNotAcceptable || rErr.Code == noRowsCode) {
			return core.ErrNoRows
		}
		return errors.Wrapf(err, "getting %s", q.Table)
	}
	return decode(res, dest)
}

func (c *Client) Count(ctx context.Context, q core.Query) (int, error) {
	params := url.Values{}
	if err := filterParams(params, q.Filters); err != nil {
		return 0, errors.Wrap(err, "building count")
	}
	res, err := c.do(ctx, request{
		method:  http.MethodHead,
		path:    tablePath(q.Table, params),
		headers: map[string]string{"Prefer": "count=exact"},
	})
	if err != nil {
		return 0, errors.Wrapf(err, "counting %s", q.Table)
	}
	return parseContentRange(http.Header(res.Headers).Get("Content-Range"))
}

// parseContentRange reads the total of a "0-24/3573" or "*/0" header.
func parseContentRange(h string) (int, error) {
	i := strings.LastIndex(h, "/")
	if i < 0 {
		return 0, errors.Errorf("invalid content range %q", h)
	}
	total, err := strconv.Atoi(h[i+1:])
	if err != nil {
		return 0, errors.Errorf("invalid content range %q", h)
	}
	return total, nil
}

func preferReturn(dest interface{}) string {
	if dest == nil {
		return "return=minimal"
	}
	return "return=representation"
}

func (c *Client) Insert(ctx context.Context, table string, vals core.Values, dest interface{}) error {
	body, err := jsonValues(vals)
	if err != nil {
		return errors.Wrap(err, "building insert")
	}
	req := request{
		method:  http.MethodPost,
		path:    tablePath(table, nil),
		headers: map[string]string{"Prefer": preferReturn(dest)},
		body:    body,
	}
	if dest != nil {
		req.headers["Accept"] = mimeObject
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "inserting into %s", table)
	}
	return decode(res, dest)
}

func (c *Client) Update(ctx context.Context, table string, vals core.Values, filters []core.Filter, dest interface{}) error {
	if len(filters) == 0 {
		return errors.Errorf("updating %s: refusing to update without filters", table)
	}
	body, err := jsonValues(vals)
	if err != nil {
		return errors.Wrap(err, "building update")
	}
	params := url.Values{}
	if err = filterParams(params, filters); err != nil {
		return errors.Wrap(err, "building update")
	}
	res, err := c.do(ctx, request{
		method:  http.MethodPatch,
		path:    tablePath(table, params),
		headers: map[string]string{"Prefer": preferReturn(dest)},
		body:    body,
	})
	if err != nil {
		return errors.Wrapf(err, "updating %s", table)
	}
	if dest == nil {
		return nil
	}

	var rows []json.RawMessage
	if err = json.Unmarshal([]byte(res.Body), &rows); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	if len(rows) == 0 {
		return core.ErrNoRows
	}
	return errors.Wrap(json.Unmarshal(rows[0], dest), "decoding response")
}

func (c *Client) Upsert(ctx context.Context, table string, onConflict []string, rows []core.Values, dest interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	body := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		vals, err := jsonValues(row)
		if err != nil {
			return errors.Wrap(err, "building upsert")
		}
		// the original id is kept on conflict
		delete(vals, "id")
		delete(vals, "created_at")
		body = append(body, vals)
	}
	params := url.Values{}
	if len(onConflict) > 0 {
		params.Set("on_conflict", strings.Join(onConflict, ","))
	}
	res, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    tablePath(table, params),
		headers: map[string]string{"Prefer": "resolution=merge-duplicates," + preferReturn(dest)},
		body:    body,
	})
	if err != nil {
		return errors.Wrapf(err, "upserting into %s", table)
	}
	return decode(res, dest)
}

func (c *Client) Delete(ctx context.Context, table string, filters []core.Filter) error {
	if len(filters) == 0 {
		return errors.Errorf("deleting from %s: refusing to delete without filters", table)
	}
	params := url.Values{}
	if err := filterParams(params, filters); err != nil {
		return errors.Wrap(err, "building delete")
	}
	if _, err := c.do(ctx, request{method: http.MethodDelete, path: tablePath(table, params)}); err != nil {
		return errors.Wrapf(err, "deleting from %s", table)
	}
	return nil
}

// Call invokes a remote procedure. A set-returning procedure yields its first row,
// unless dest points to a slice.
func (c *Client) Call(ctx context.Context, fn string, params core.Values, dest interface{}) error {
	if params == nil {
		params = core.Values{}
	}
	body, err := jsonValues(params)
	if err != nil {
		return errors.Wrapf(err, "binding %s parameters", fn)
	}
	res, err := c.do(ctx, request{method: http.MethodPost, path: restPath + "/rpc/" + url.PathEscape(fn), body: body})
	if err != nil {
		return errors.Wrapf(err, "calling %s", fn)
	}
	if dest == nil {
		return nil
	}

	raw := strings.TrimSpace(res.Body)
	isSlice := reflect.TypeOf(dest).Kind() == reflect.Ptr && reflect.TypeOf(dest).Elem().Kind() == reflect.Slice
	if strings.HasPrefix(raw, "[") && !isSlice {
		var rows []json.RawMessage
		if err = json.Unmarshal([]byte(raw), &rows); err != nil {
			return errors.Wrap(err, "decoding response")
		}
		if len(rows) == 0 {
			return core.ErrNoRows
		}
		raw = string(rows[0])
	}
	return errors.Wrap(json.Unmarshal([]byte(raw), dest), "decoding response")
}
