package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// REST talks to a PostgREST endpoint (Supabase's /rest/v1).
type REST struct {
	baseURL *url.URL
	apiKey  string
	tokens  TokenSource
	http    *http.Client
}

// RESTOption customizes a REST client.
type RESTOption func(*REST)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *REST) { r.http = c }
}

// NewREST returns a client for the project at projectURL. apiKey is sent as
// the apikey header on every call; tokens supplies the bearer token.
func NewREST(projectURL, apiKey string, tokens TokenSource, timeout time.Duration, opts ...RESTOption) (*REST, error) {
	base, err := url.Parse(strings.TrimRight(projectURL, "/") + "/rest/v1/")
	if err != nil {
		return nil, fmt.Errorf("invalid remote url: %w", err)
	}
	if tokens == nil {
		tokens = AnonToken(apiKey)
	}
	r := &REST{
		baseURL: base,
		apiKey:  apiKey,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// WithTokens returns a copy of r using tokens.
func (r *REST) WithTokens(tokens TokenSource) *REST {
	cp := *r
	cp.tokens = tokens
	return &cp
}

func (r *REST) Select(ctx context.Context, q Query, dest any) error {
	params, err := queryParams(q)
	if err != nil {
		return err
	}
	params.Set("select", "*")
	return r.do(ctx, http.MethodGet, q.Table, params, nil, nil, dest)
}

func (r *REST) Count(ctx context.Context, q Query) (int64, error) {
	params, err := queryParams(q)
	if err != nil {
		return 0, err
	}
	params.Set("select", "*")
	var total int64
	headers := http.Header{"Prefer": {"count=exact"}, "Range-Unit": {"items"}, "Range": {"0-0"}}
	err = r.doRaw(ctx, http.MethodHead, q.Table, params, headers, nil, func(resp *http.Response) error {
		n, perr := parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if perr != nil {
			return perr
		}
		total = n
		return nil
	})
	return total, err
}

func (r *REST) Insert(ctx context.Context, table string, row any) error {
	if err := (Query{Table: table}).Validate(); err != nil {
		return err
	}
	headers := http.Header{"Prefer": {"return=minimal"}}
	return r.do(ctx, http.MethodPost, table, url.Values{}, headers, row, nil)
}

func (r *REST) Upsert(ctx context.Context, table string, row any, onConflict ...string) error {
	if err := (Query{Table: table}).Validate(); err != nil {
		return err
	}
	params := url.Values{}
	if len(onConflict) > 0 {
		params.Set("on_conflict", joinColumns(onConflict))
	}
	headers := http.Header{"Prefer": {"resolution=merge-duplicates,return=minimal"}}
	return r.do(ctx, http.MethodPost, table, params, headers, row, nil)
}

func (r *REST) Update(ctx context.Context, q Query, values map[string]any) error {
	params, err := queryParams(q)
	if err != nil {
		return err
	}
	headers := http.Header{"Prefer": {"return=minimal"}}
	return r.do(ctx, http.MethodPatch, q.Table, params, headers, values, nil)
}

func (r *REST) Delete(ctx context.Context, q Query) error {
	params, err := queryParams(q)
	if err != nil {
		return err
	}
	if len(q.Filters) == 0 {
		return fmt.Errorf("refusing unfiltered delete on %s", q.Table)
	}
	return r.do(ctx, http.MethodDelete, q.Table, params, nil, nil, nil)
}

func (r *REST) RPC(ctx context.Context, fn string, args map[string]any, dest any) error {
	if !identifierRE.MatchString(fn) {
		return fmt.Errorf("invalid rpc name %q", fn)
	}
	if args == nil {
		args = map[string]any{}
	}
	return r.do(ctx, http.MethodPost, "rpc/"+fn, url.Values{}, nil, args, dest)
}

func (r *REST) do(ctx context.Context, method, path string, params url.Values, headers http.Header, body, dest any) error {
	return r.doRaw(ctx, method, path, params, headers, body, func(resp *http.Response) error {
		if dest == nil {
			return nil
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read remote response: %w", err)
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("decode remote response: %w", err)
		}
		return nil
	})
}

func (r *REST) doRaw(ctx context.Context, method, path string, params url.Values, headers http.Header, body any, handle func(*http.Response) error) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode remote request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := r.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: params.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("build remote request: %w", err)
	}

	// Resolved per request; never stored on the client.
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolve remote token: %w", err)
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return handle(resp)
}

func decodeError(resp *http.Response) error {
	remoteErr := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(raw) > 0 && json.Unmarshal(raw, remoteErr) == nil && remoteErr.Message != "" {
		return remoteErr
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		remoteErr.Message = msg
	} else {
		remoteErr.Message = http.StatusText(resp.StatusCode)
	}
	return remoteErr
}

// queryParams encodes q in PostgREST's horizontal filter syntax.
func queryParams(q Query) (url.Values, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	for _, f := range q.Filters {
		v, err := filterValue(f)
		if err != nil {
			return nil, err
		}
		params.Add(f.Column, string(f.Op)+"."+v)
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	return params, nil
}

func filterValue(f Filter) (string, error) {
	switch f.Op {
	case OpIn:
		values, err := toStrings(f.Value)
		if err != nil {
			return "", err
		}
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = quoteListValue(v)
		}
		return "(" + strings.Join(quoted, ",") + ")", nil
	case OpIs:
		switch f.Value {
		case nil:
			return "null", nil
		case true:
			return "true", nil
		case false:
			return "false", nil
		default:
			return "", fmt.Errorf("is filter on %s needs nil, true or false", f.Column)
		}
	default:
		return scalarString(f.Value), nil
	}
}

func quoteListValue(v string) string {
	if strings.ContainsAny(v, `,()" `) {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, len(t))
		for i, x := range t {
			out[i] = scalarString(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("in filter needs a slice, got %T", v)
	}
}

// parseContentRangeTotal reads the total from "0-9/42" or "*/0".
func parseContentRangeTotal(h string) (int64, error) {
	_, total, ok := strings.Cut(h, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("remote did not report an exact count (Content-Range %q)", h)
	}
	return strconv.ParseInt(total, 10, 64)
}
