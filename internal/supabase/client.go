package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/supabase-community/postgrest-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	restPath        = "/rest/v1"
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 16 << 20
)

type ClientParams struct {
	URL string
	Key string
	// HTTPClient is optional; its transport carries the REST calls.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the REST (PostgREST) interface of a supabase project.
type Client struct {
	endpoint string
	timeout  time.Duration
	rest     *postgrest.Client
}

// NewClient validates the credentials and builds a client handle.
// Credential problems return a *ConfigError; transport problems surface on
// the first request as a *ConnectionError.
func NewClient(params ClientParams) (*Client, error) {
	if params.URL == "" || params.Key == "" {
		return nil, &ConfigError{Reason: "SUPABASE_URL and SUPABASE_KEY must be set in environment variables"}
	}

	endpoint := strings.TrimRight(params.URL, "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, &ConfigError{
			Reason: fmt.Sprintf("invalid SUPABASE_URL format, URL must start with http:// or https://, got: %s", endpoint),
		}
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid SUPABASE_URL: %s", endpoint)}
	}

	rest := postgrest.NewClient(endpoint+restPath, "public", map[string]string{
		"apikey":        params.Key,
		"Authorization": "Bearer " + params.Key,
	})
	if rest.ClientError != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("invalid SUPABASE_URL: %s", rest.ClientError)}
	}

	var base http.RoundTripper = http.DefaultTransport
	if params.HTTPClient != nil && params.HTTPClient.Transport != nil {
		base = params.HTTPClient.Transport
	}
	rest.Transport.Parent = &statusTransport{next: otelhttp.NewTransport(base)}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	log.Infof("connecting to supabase url: %s", endpoint)

	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		rest:     rest,
	}, nil
}

// Query describes a select on a single table.
type Query struct {
	Columns    []string
	OrderBy    string
	Descending bool
	Limit      int
}

// Insert stores row (a struct/map or a slice of them) and decodes the
// echoed representation into dest, which should be a pointer to a slice.
func (c *Client) Insert(ctx context.Context, table string, row any, dest any) error {
	req := c.rest.From(table).Insert(row, false, "", "representation", "")
	return c.execute(ctx, table, req, dest)
}

// Select runs the query and decodes the resulting rows into dest.
func (c *Client) Select(ctx context.Context, table string, query Query, dest any) error {
	req := c.rest.From(table).Select(strings.Join(query.Columns, ","), "", false)
	if query.OrderBy != "" {
		req = req.Order(query.OrderBy, &postgrest.OrderOpts{Ascending: !query.Descending})
	}
	if query.Limit > 0 {
		req = req.Limit(query.Limit, "")
	}
	return c.execute(ctx, table, req, dest)
}

func (c *Client) execute(ctx context.Context, table string, req *postgrest.FilterBuilder, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	respBytes, _, err := req.ExecuteWithContext(ctx)
	if err != nil {
		return c.classify(table, err)
	}

	if dest == nil || len(bytes.TrimSpace(respBytes)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBytes, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", table, err)
	}

	return nil
}

func (c *Client) classify(table string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &ConnectionError{Endpoint: c.endpoint, Err: urlErr.Err}
	}
	return fmt.Errorf("%s request: %w", table, err)
}

// statusTransport turns non-2xx answers into *APIError so the HTTP status
// survives the trip through the postgrest client.
type statusTransport struct {
	next http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnf("close %s error response body: %s", req.URL.Path, err)
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read error response: %w", err)
	}
	return nil, decodeAPIError(resp.StatusCode, body)
}
