package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"finitefield.org/templates-listing/internal/catalog"
)

const metricNamespace = "finitefield.org/templates-listing/sheet"

var (
	// ErrMissingDataSource means the block carried no data-source link.
	ErrMissingDataSource = errors.New("sheet: missing data source")
	// ErrFetchFailure covers transport errors and non-OK responses.
	ErrFetchFailure = errors.New("sheet: fetch failed")
	// ErrParseFailure covers bodies that are not JSON or lack the data array.
	ErrParseFailure = errors.New("sheet: unexpected response")
)

// FetchError describes a failed request to the data source.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("sheet: fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("sheet: fetch %s: %v", e.URL, e.Err)
}

// Is lets callers match FetchError against ErrFetchFailure.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailure }

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError describes a response body that could not be read as a sheet.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sheet: parse %s: %v", e.URL, e.Err)
}

// Is lets callers match ParseError against ErrParseFailure.
func (e *ParseError) Is(target error) bool { return target == ErrParseFailure }

func (e *ParseError) Unwrap() error { return e.Err }

// Client loads spreadsheet JSON feeds of the form {"data": [{...}, ...]}.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	logger  *zap.Logger

	latency  metric.Float64Histogram
	failures metric.Int64Counter
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. The default client has no timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout bounds each fetch. Zero leaves fetches unbounded.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http = &http.Client{Timeout: d, Transport: cl.http.Transport}
		}
	}
}

// WithBaseURL resolves relative data-source links against base.
func WithBaseURL(base string) Option {
	return func(cl *Client) {
		base = strings.TrimSpace(base)
		if base == "" {
			return
		}
		if u, err := url.Parse(base); err == nil && u.IsAbs() {
			cl.baseURL = u
		}
	}
}

// WithLogger sets the logger for fetch diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// WithMeter registers fetch metrics on m.
func WithMeter(m metric.Meter) Option {
	return func(cl *Client) {
		cl.registerMetrics(m)
	}
}

// NewClient constructs a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.latency == nil {
		c.registerMetrics(otel.GetMeterProvider().Meter(metricNamespace))
	}
	return c
}

func (c *Client) registerMetrics(m metric.Meter) {
	if m == nil {
		return
	}
	latency, err := m.Float64Histogram(
		"templates.sheet.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for data source fetches"),
	)
	if err != nil {
		c.logger.Warn("sheet: unable to register latency metric", zap.Error(err))
	} else {
		c.latency = latency
	}
	failures, err := m.Int64Counter(
		"templates.sheet.fetch.failures",
		metric.WithDescription("Data source fetches that did not yield rows"),
	)
	if err != nil {
		c.logger.Warn("sheet: unable to register failure metric", zap.Error(err))
	} else {
		c.failures = failures
	}
}

// Resolve returns the absolute URL for source.
func (c *Client) Resolve(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", ErrMissingDataSource
	}
	u, err := url.Parse(source)
	if err != nil {
		return "", &FetchError{URL: source, Err: err}
	}
	if !u.IsAbs() && c.baseURL != nil {
		u = c.baseURL.ResolveReference(u)
	}
	if !u.IsAbs() {
		return "", &FetchError{URL: source, Err: errors.New("relative data source without base url")}
	}
	return u.String(), nil
}

// Load fetches source and returns its rows in feed order.
func (c *Client) Load(ctx context.Context, source string) ([]catalog.RawRecord, error) {
	start := time.Now()
	endpoint, err := c.Resolve(source)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(metricNamespace).Start(ctx, "sheet.Load",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", endpoint)),
	)
	defer span.End()

	rows, err := c.load(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, failureKind(err))
	} else {
		span.SetAttributes(attribute.Int("sheet.rows", len(rows)))
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if c.failures != nil {
			c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", failureKind(err))))
		}
		c.logger.Warn("sheet: load failed", zap.String("url", endpoint), zap.Error(err))
	} else {
		c.logger.Debug("sheet: loaded", zap.String("url", endpoint), zap.Int("rows", len(rows)))
	}
	if c.latency != nil {
		c.latency.Record(ctx, elapsed, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	return rows, err
}

func (c *Client) load(ctx context.Context, endpoint string) ([]catalog.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &FetchError{URL: endpoint, Status: resp.StatusCode}
	}

	return Decode(endpoint, resp.Body)
}

// Decode reads a sheet body. Only string cell values are kept; other JSON
// values are treated as absent.
func Decode(endpoint string, r io.Reader) ([]catalog.RawRecord, error) {
	var payload struct {
		Data *[]map[string]json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, &ParseError{URL: endpoint, Err: err}
	}
	if payload.Data == nil {
		return nil, &ParseError{URL: endpoint, Err: errors.New(`missing "data" array`)}
	}

	rows := make([]catalog.RawRecord, 0, len(*payload.Data))
	for _, cells := range *payload.Data {
		row := make(catalog.RawRecord, len(cells))
		for key, raw := range cells {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				row[key] = s
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrParseFailure):
		return "parse"
	case errors.Is(err, ErrMissingDataSource):
		return "missing"
	default:
		return "fetch"
	}
}
