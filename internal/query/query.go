// Package query is a chainable client for the generic /api/<table> backend.
//
// A Query accumulates state and performs exactly one HTTP call when executed:
//
//	id + update  -> PUT    /api/<table>/<id>
//	id + delete  -> DELETE /api/<table>/<id>
//	id only      -> GET    /api/<table>/<id>
//	insert       -> POST   /api/<table>
//	otherwise    -> GET    /api/<table>
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/router-for-me/promptdock/internal/filter"
	"github.com/router-for-me/promptdock/internal/httpclient"
	"resty.dev/v3"
)

var (
	// ErrNotFound is reported when a row does not exist or Single finds zero rows.
	ErrNotFound = errors.New("query: not found")
	// ErrMultipleRows is reported when Single finds more than one row.
	ErrMultipleRows = errors.New("query: multiple rows")
	// ErrMissingID is reported for Update or Delete without Eq("id", ...).
	ErrMissingID = errors.New("query: update and delete require an id")
)

// Result is the outcome of an executed query. Exactly one of Data and Error is set.
type Result struct {
	Data  json.RawMessage
	Error error
}

// Decode unmarshals Data into v, or returns Error.
func (r Result) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("query: decode: %w", err)
	}
	return nil
}

// BackendError is a non-2xx or {error} reply from the backend.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("query: backend returned %d: %s", e.Status, e.Message)
}

// Unwrap maps 404 replies to ErrNotFound.
func (e *BackendError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client talks to one backend.
type Client struct {
	http    *resty.Client
	baseURL string
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default resty client.
func WithHTTPClient(c *resty.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithToken sends "Authorization: Bearer <token>" on every call.
func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// NewClient targets the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.New("query", 0)
	}
	return c
}

// From starts a query on table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table}
}

type columnFilter struct {
	column string
	filter filter.Filter
}

// Query is a deferred request builder. It is not safe for concurrent use.
type Query struct {
	client *Client
	table  string

	columns   []string
	id        string
	hasID     bool
	ignored   []columnFilter
	filters   []columnFilter
	orderBy   string
	ascending bool

	insert   any
	update   any
	deleting bool
}

// Select records the requested columns. The backend always returns full rows.
func (q *Query) Select(columns ...string) *Query {
	q.columns = append(q.columns, columns...)
	return q
}

// Eq targets a single row when column is "id". Other columns are recorded and have no effect.
func (q *Query) Eq(column string, value any) *Query {
	if column == "id" {
		q.id = fmt.Sprint(value)
		q.hasID = true
		return q
	}
	q.ignored = append(q.ignored, columnFilter{column: column, filter: filter.Eq(fmt.Sprint(value))})
	return q
}

// Filter adds an equality or inequality filter sent as a query parameter.
func (q *Query) Filter(column string, f filter.Filter) *Query {
	q.filters = append(q.filters, columnFilter{column: column, filter: f})
	return q
}

// Order records a preferred ordering. The backend always returns newest first.
func (q *Query) Order(column string, ascending bool) *Query {
	q.orderBy = column
	q.ascending = ascending
	return q
}

// Insert makes the query create a row from payload.
func (q *Query) Insert(payload any) *Query {
	q.insert = payload
	return q
}

// Update makes the query apply payload to the row selected by Eq("id", ...).
func (q *Query) Update(payload any) *Query {
	q.update = payload
	return q
}

// Delete makes the query remove the row selected by Eq("id", ...).
func (q *Query) Delete() *Query {
	q.deleting = true
	return q
}

func (q *Query) path() string {
	base := q.client.baseURL + "/api/" + url.PathEscape(q.table)
	if q.hasID {
		return base + "/" + url.PathEscape(q.id)
	}
	return base
}

// Execute performs the single HTTP call selected by the accumulated state.
func (q *Query) Execute(ctx context.Context) Result {
	if (q.update != nil || q.deleting) && !q.hasID {
		return Result{Error: ErrMissingID}
	}

	req := q.client.http.R().SetContext(ctx).SetHeader("Accept", "application/json")
	if q.client.token != "" {
		req.SetHeader("Authorization", "Bearer "+q.client.token)
	}

	var (
		resp *resty.Response
		err  error
	)
	switch {
	case q.hasID && q.update != nil:
		resp, err = req.SetHeader("Content-Type", "application/json").SetBody(q.update).Put(q.path())
	case q.hasID && q.deleting:
		resp, err = req.Delete(q.path())
	case q.hasID:
		resp, err = req.Get(q.path())
	case q.insert != nil:
		resp, err = req.SetHeader("Content-Type", "application/json").SetBody(q.insert).Post(q.path())
	default:
		for _, f := range q.filters {
			req.SetQueryParam(f.column, f.filter.String())
		}
		resp, err = req.Get(q.path())
	}
	if err != nil {
		return Result{Error: fmt.Errorf("query: %s %s: %w", q.table, q.describe(), err)}
	}
	return normalize(resp)
}

// Single executes and requires exactly one row.
func (q *Query) Single(ctx context.Context) Result {
	res := q.Execute(ctx)
	if res.Error != nil {
		return res
	}
	trimmed := strings.TrimSpace(string(res.Data))
	if !strings.HasPrefix(trimmed, "[") {
		if trimmed == "" || trimmed == "null" {
			return Result{Error: ErrNotFound}
		}
		return res
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(res.Data, &rows); err != nil {
		return Result{Error: fmt.Errorf("query: decode rows: %w", err)}
	}
	switch len(rows) {
	case 0:
		return Result{Error: ErrNotFound}
	case 1:
		return Result{Data: rows[0]}
	default:
		return Result{Error: ErrMultipleRows}
	}
}

func (q *Query) describe() string {
	switch {
	case q.hasID && q.update != nil:
		return "update"
	case q.hasID && q.deleting:
		return "delete"
	case q.hasID:
		return "get"
	case q.insert != nil:
		return "insert"
	default:
		return "list"
	}
}

// normalize maps a backend reply onto Result.
func normalize(resp *resty.Response) Result {
	body := resp.Bytes()
	if resp.IsError() || resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return Result{Error: &BackendError{Status: resp.StatusCode(), Message: errorMessage(body)}}
	}
	if resp.StatusCode() == http.StatusNoContent || len(strings.TrimSpace(string(body))) == 0 {
		return Result{Data: json.RawMessage("null")}
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if errUnmarshal := json.Unmarshal(body, &envelope); errUnmarshal == nil && len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		return Result{Error: &BackendError{Status: resp.StatusCode(), Message: errorMessage(body)}}
	}
	return Result{Data: json.RawMessage(body)}
}

func errorMessage(body []byte) string {
	var payload struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		if text, ok := payload.Error.(string); ok {
			return text
		}
		encoded, _ := json.Marshal(payload.Error)
		return string(encoded)
	}
	return strings.TrimSpace(string(body))
}
