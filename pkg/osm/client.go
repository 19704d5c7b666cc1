package osm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmnodes/pkg/core"
	"github.com/NERVsystems/osmnodes/pkg/tracing"
)

const (
	// OverpassBaseURL is the default interpreter endpoint
	OverpassBaseURL = "https://overpass-api.de/api/interpreter"

	// DefaultUserAgent is the default User-Agent string
	DefaultUserAgent = "osmnodes/0.1.0"

	// maxErrorBody bounds how much of a failed response is kept in the error
	maxErrorBody = 512
)

// Client issues queries to an Overpass interpreter. It is safe for
// concurrent use.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	cache      *responseCache
	logger     *slog.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithEndpoint overrides the interpreter URL
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient replaces the underlying HTTP client. The client is copied,
// never modified.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets an overall timeout on each request, regardless of the
// order it is given in relative to WithHTTPClient. Zero keeps the HTTP
// client's own timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimit limits outgoing requests. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache keeps up to size decoded responses for ttl. Identical queries in
// flight at the same time share one request.
func WithCache(size int, ttl time.Duration) ClientOption {
	return func(c *Client) {
		if size <= 0 {
			c.cache = nil
			return
		}
		c.cache = newResponseCache(size, ttl)
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an Overpass client. By default it talks to the public
// interpreter at one request per second, without a timeout or cache.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		endpoint:  OverpassBaseURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.httpClient
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc
	c.logger = c.logger.With("component", "overpass", "endpoint", c.endpoint)
	return c
}

// Endpoint returns the interpreter URL the client talks to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Query sends an Overpass QL query and decodes the JSON response.
// The returned Response may be shared with other callers when caching is
// enabled and must be treated as read-only.
func (c *Client) Query(ctx context.Context, query string) (*Response, error) {
	if c.cache != nil {
		return c.cache.do(ctx, query, c.query)
	}
	return c.query(ctx, query)
}

func (c *Client) query(ctx context.Context, query string) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, "overpass.query",
		trace.WithAttributes(
			attribute.String(tracing.AttrServiceName, tracing.ServiceOverpass),
			attribute.String(tracing.AttrServiceURL, c.endpoint),
			attribute.Int(tracing.AttrQueryLength, len(query)),
		),
	)
	defer span.End()

	req, err := c.newRequest(ctx, query)
	if err != nil {
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	c.logger.Debug("sending overpass query", "query", query)

	resp, err := c.do(ctx, req, "interpreter")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, core.NewError(core.CodeTransport, "overpass request failed").
			WithQuery(query).
			Wrap(err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		herr := core.HTTPError("Overpass", resp.StatusCode, errorSnippet(body, resp.Status)).WithQuery(query)
		c.logger.Debug("overpass returned error status",
			"status", resp.StatusCode,
			"content_type", resp.Header.Get("Content-Type"))
		span.SetStatus(codes.Error, resp.Status)
		return nil, herr
	}

	out, err := decodeResponse(resp.Body)
	if err != nil {
		notifyError(tracing.ServiceOverpass, "parse_error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "undecodable response")
		return nil, core.NewError(core.CodeParse, "overpass response is not valid JSON").
			WithQuery(query).
			Wrap(err)
	}

	if out.Remark != "" {
		tracing.AddEvent(ctx, "overpass_remark",
			trace.WithAttributes(attribute.String("remark", out.Remark)))
		if isRuntimeError(out.Remark) {
			notifyError(tracing.ServiceOverpass, "runtime_error")
			span.SetStatus(codes.Error, "runtime error remark")
			return nil, core.Errorf(core.CodeHTTP, "overpass aborted the query: %s", out.Remark).
				WithStatus(resp.StatusCode).
				WithQuery(query).
				WithGuidance("The interpreter ran out of time or memory. Try reducing the search area or simplifying the query.")
		}
		c.logger.Warn("overpass reported a remark", "remark", out.Remark)
	}

	span.SetAttributes(attribute.Int(tracing.AttrElementCount, len(out.Elements)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// Ping checks whether the interpreter answers. Status codes below 500 count
// as healthy since a reachable interpreter may still reject the probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, "[out:json];out meta;")
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, req, "status")
	if err != nil {
		return core.NewError(core.CodeTransport, "overpass health check failed").Wrap(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode >= 500 {
		return core.HTTPError("Overpass", resp.StatusCode, "health check failed")
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, query string) (*http.Request, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, core.NewError(core.CodeInvalidArgument, "invalid overpass endpoint").Wrap(err)
	}
	q := u.Query()
	q.Set("data", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, core.NewError(core.CodeInvalidArgument, "failed to build overpass request").Wrap(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do waits for the rate limiter, performs the request and reports to the
// monitoring hooks.
func (c *Client) do(ctx context.Context, req *http.Request, operation string) (*http.Response, error) {
	service := tracing.ServiceOverpass
	tracing.SetAttributes(ctx, attribute.String(tracing.AttrServiceOperation, operation))
	hooks := getMonitoringHooks()
	if hooks != nil && hooks.OnRequest != nil {
		hooks.OnRequest(service, operation)
	}

	if c.limiter != nil && !c.limiter.Allow() {
		startWait := time.Now()
		tracing.AddEvent(ctx, "rate_limit_wait",
			trace.WithAttributes(attribute.String(tracing.AttrRateLimitService, service)))

		err := c.limiter.Wait(ctx)

		waited := time.Since(startWait)
		tracing.SetAttributes(ctx, attribute.Int64(tracing.AttrRateLimitWaitMs, waited.Milliseconds()))
		if hooks != nil && hooks.OnRateLimit != nil {
			hooks.OnRateLimit(service, waited)
		}
		if err != nil {
			notifyError(service, "rate_limit_wait_error")
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	success := err == nil && resp.StatusCode < 400
	if hooks != nil && hooks.OnResponse != nil {
		hooks.OnResponse(service, operation, duration, success)
	}
	if err != nil {
		notifyError(service, "request_error")
		c.logger.Debug("overpass request failed", "error", err, "duration", duration)
		return nil, err
	}
	if resp.StatusCode >= 400 {
		notifyError(service, "http_status")
	}
	return resp, nil
}

func decodeResponse(r io.Reader) (*Response, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var out Response
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out.Elements == nil {
		return nil, errors.New(`response has no "elements" array`)
	}
	return &out, nil
}

// isRuntimeError reports whether a remark means the interpreter aborted the
// query, in which case the elements are empty or truncated.
func isRuntimeError(remark string) bool {
	return strings.HasPrefix(strings.TrimSpace(remark), "runtime error")
}

func errorSnippet(body []byte, fallback string) string {
	s := strings.TrimSpace(string(bytes.ToValidUTF8(body, nil)))
	if s == "" {
		return fallback
	}
	return strings.Join(strings.Fields(s), " ")
}
