package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Query builds a request against one row collection.
type Query struct {
	c      *Client
	table  string
	params url.Values
}

// From starts a query on table.
func (c *Client) From(table string) *Query {
	return &Query{c: c, table: table, params: url.Values{}}
}

// Select sets the returned columns, including embedded relations.
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq filters rows where column equals value.
func (q *Query) Eq(column string, value any) *Query {
	q.params.Add(column, "eq."+fmt.Sprint(value))
	return q
}

// Order sorts by column.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.params.Add("order", column+"."+dir)
	return q
}

// Limit caps the number of rows returned.
func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

func (q *Query) path() string {
	return "/rest/v1/" + url.PathEscape(q.table)
}

// Execute runs the query and decodes the row array into dest.
func (q *Query) Execute(ctx context.Context, dest any) error {
	token, err := q.c.bearer(ctx)
	if err != nil {
		return err
	}
	if err := q.c.do(ctx, request{method: http.MethodGet, path: q.path(), query: q.params, token: token}, dest); err != nil {
		return fmt.Errorf("selecting %s: %w", q.table, err)
	}
	return nil
}

// Single runs the query expecting at most one row. It reports whether a
// row was found and decodes it into dest.
func (q *Query) Single(ctx context.Context, dest any) (bool, error) {
	q.Limit(1)
	var rows []json.RawMessage
	if err := q.Execute(ctx, &rows); err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return false, fmt.Errorf("decoding %s row: %w", q.table, err)
	}
	return true, nil
}

// Insert adds row and decodes the stored representation into dest when
// dest is non-nil.
func (q *Query) Insert(ctx context.Context, row any, dest any) error {
	return q.write(ctx, http.MethodPost, row, "", dest)
}

// Upsert inserts row or merges it into the existing row that conflicts on
// onConflict.
func (q *Query) Upsert(ctx context.Context, row any, onConflict string, dest any) error {
	if onConflict != "" {
		q.params.Set("on_conflict", onConflict)
	}
	return q.write(ctx, http.MethodPost, row, "resolution=merge-duplicates", dest)
}

// Update applies patch to every row matching the filters.
func (q *Query) Update(ctx context.Context, patch any, dest any) error {
	return q.write(ctx, http.MethodPatch, patch, "", dest)
}

// Delete removes every row matching the filters.
func (q *Query) Delete(ctx context.Context) error {
	return q.write(ctx, http.MethodDelete, nil, "", nil)
}

func (q *Query) write(ctx context.Context, method string, body any, resolution string, dest any) error {
	token, err := q.c.bearer(ctx)
	if err != nil {
		return err
	}

	prefer := "return=minimal"
	if dest != nil {
		prefer = "return=representation"
	}
	if resolution != "" {
		prefer = resolution + "," + prefer
	}

	req := request{
		method: method,
		path:   q.path(),
		query:  q.params,
		body:   body,
		token:  token,
		header: http.Header{headerPrefer: {prefer}},
	}
	if err := q.c.do(ctx, req, dest); err != nil {
		return fmt.Errorf("writing %s: %w", q.table, err)
	}
	return nil
}
