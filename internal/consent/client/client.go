// Package client talks to the remote cari directory's KVKK endpoints.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"kvkk-permits/internal/consent/domain"
)

const (
	defaultTimeout = 15 * time.Second

	maxBodyBytes  = 1 << 20
	maxErrorBytes = 256

	opLookup = "lookup"
	opCreate = "create"
	opUpdate = "update"
)

// Config is injected at construction; nothing about the directory lives in package state.
type Config struct {
	BaseURL string
	// APIKey is embedded in the request path. It is never logged or included in errors.
	APIKey  string
	Timeout time.Duration
	// Retries is the number of extra attempts for idempotent calls (lookup, update). Create is never retried.
	Retries int
	// InsecureSkipVerify disables TLS verification; the production directory is addressed by IP.
	InsecureSkipVerify bool
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client (tests, custom transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// WithMeterProvider records request metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) {
		if mp != nil {
			c.meterProvider = mp
		}
	}
}

// WithTracerProvider records request spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracerProvider = tp
		}
	}
}

// WithBackOff overrides the retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		if newBackOff != nil {
			c.newBackOff = newBackOff
		}
	}
}

// Client issues lookup, create, and update requests. Safe for concurrent use.
type Client struct {
	BaseURL    string
	APIKey     string
	Retries    int
	HTTPClient *http.Client

	newBackOff     func() backoff.BackOff
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	requests       metric.Int64Counter
	duration       metric.Float64Histogram
}

// ErrBaseURLRequired is returned by New when Config.BaseURL is empty.
var ErrBaseURLRequired = errors.New("consent client: base URL is required")

// New returns a client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via KVKK_TLS_INSECURE, refused in production
	}

	c := &Client{
		BaseURL: baseURL,
		APIKey:  cfg.APIKey,
		Retries: retries,
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: base,
		},
		newBackOff:     defaultBackOff,
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.tracer = c.tracerProvider.Tracer("kvkk-permits/consent/client")
	meter := c.meterProvider.Meter("kvkk-permits/consent/client")
	c.requests, _ = meter.Int64Counter("kvkk.client.requests",
		metric.WithDescription("Directory requests by operation and outcome."))
	c.duration, _ = meter.Float64Histogram("kvkk.client.duration",
		metric.WithDescription("Directory request latency."), metric.WithUnit("s"))
	return c, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// LookupResult is either a Record or a NotFound outcome.
type LookupResult struct {
	Record   *domain.Record
	NotFound *NotFound
}

// Found reports whether the lookup returned a record.
func (r LookupResult) Found() bool {
	return r.Record != nil
}

// Lookup fetches the record for an already-normalized phone number.
// A `status:false` answer is returned as LookupResult.NotFound, not as an error.
func (c *Client) Lookup(ctx context.Context, phone string) (LookupResult, error) {
	q := url.Values{}
	q.Set("telefon", phone)
	endpoint := c.endpoint() + "?" + q.Encode()

	env, err := c.retry(ctx, opLookup, func() (envelope, error) {
		return c.do(ctx, opLookup, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return LookupResult{}, err
	}
	if !*env.Status {
		return LookupResult{NotFound: &NotFound{Description: env.Description, Message: env.Message}}, nil
	}
	rec, err := env.record(opLookup)
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{Record: &rec}, nil
}

// Create writes a new record without a code. Call only after Lookup reported NotFound;
// no deduplication is performed here.
func (c *Client) Create(ctx context.Context, name, phone string, permitted bool) (domain.Record, error) {
	payload := wireCari{
		CariIsim:    name,
		CariTelefon: phone,
		KvkkOnayi:   flag(permitted),
	}
	return c.write(ctx, opCreate, payload, false)
}

// Update writes rec, including its code, and returns the directory's canonical copy.
func (c *Client) Update(ctx context.Context, rec domain.Record) (domain.Record, error) {
	if !rec.Persisted() {
		return domain.Record{}, fmt.Errorf("kvkk: update requires a record code")
	}
	return c.write(ctx, opUpdate, toWire(rec), true)
}

func (c *Client) write(ctx context.Context, op string, payload wireCari, retry bool) (domain.Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Record{}, err
	}
	call := func() (envelope, error) {
		return c.do(ctx, op, http.MethodPost, c.endpoint(), raw)
	}
	var env envelope
	if retry {
		env, err = c.retry(ctx, op, call)
	} else {
		env, err = call()
	}
	if err != nil {
		return domain.Record{}, err
	}
	if !*env.Status {
		return domain.Record{}, &BusinessError{Op: op, Description: env.Description, Message: env.Message}
	}
	return env.record(op)
}

func (c *Client) endpoint() string {
	return c.BaseURL + "/" + url.PathEscape(c.APIKey) + "/kvkk"
}

func (c *Client) retry(ctx context.Context, op string, call func() (envelope, error)) (envelope, error) {
	if c.Retries == 0 {
		return call()
	}
	env, err := backoff.Retry(ctx, func() (envelope, error) {
		env, err := call()
		if err != nil && !IsRetryable(err) {
			return env, backoff.Permanent(err)
		}
		return env, err
	}, backoff.WithBackOff(c.newBackOff()), backoff.WithMaxTries(uint(c.Retries+1)))
	if err != nil {
		var te *TransportError
		if !errors.As(err, &te) {
			err = classify(op, err)
		}
	}
	return env, err
}

// do performs one HTTP exchange and decodes the envelope. body is nil for GET.
// Spans carry only the operation and outcome; the endpoint holds the access key.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) (envelope, error) {
	ctx, span := c.tracer.Start(ctx, "kvkk."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", method)))
	defer span.End()

	start := time.Now()
	env, err := c.exchange(ctx, op, method, endpoint, body)
	c.observe(ctx, op, start, err)
	if err != nil {
		span.SetStatus(codes.Error, string(CategoryOf(err)))
		var te *TransportError
		if errors.As(err, &te) && te.StatusCode != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", te.StatusCode))
		}
	}
	return env, err
}

func (c *Client) exchange(ctx context.Context, op, method, endpoint string, body []byte) (envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return envelope{}, newTransportError(op, CategoryRejected, 0, "build request", redact(err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return envelope{}, classify(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return envelope{}, classify(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return envelope{}, statusError(op, resp.StatusCode, data)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, newTransportError(op, CategoryBadData, resp.StatusCode, "decode body", err)
	}
	if env.Status == nil {
		return envelope{}, newTransportError(op, CategoryBadData, resp.StatusCode, "missing status field", nil)
	}
	return env, nil
}

func (c *Client) observe(ctx context.Context, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(CategoryOf(err))
	}
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome))
	if c.requests != nil {
		c.requests.Add(context.WithoutCancel(ctx), 1, attrs)
	}
	if c.duration != nil {
		c.duration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds(), attrs)
	}
}

func statusError(op string, status int, body []byte) *TransportError {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBytes {
		snippet = snippet[:maxErrorBytes]
	}
	category := CategoryRejected
	switch {
	case status == http.StatusTooManyRequests:
		category = CategoryRateLimited
	case status >= 500:
		category = CategoryOutage
	}
	msg := "request failed"
	if snippet != "" {
		msg += " body=" + snippet
	}
	return newTransportError(op, category, status, msg, nil)
}

// classify maps client-side failures onto the taxonomy and strips the request URL.
func classify(op string, err error) *TransportError {
	err = redact(err)
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return newTransportError(op, CategoryCanceled, 0, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newTransportError(op, CategoryTimeout, 0, "", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return newTransportError(op, CategoryTimeout, 0, "", err)
	default:
		return newTransportError(op, CategoryOutage, 0, "", err)
	}
}

// redact drops *url.Error wrappers, whose text includes the key-bearing URL.
func redact(err error) error {
	var uerr *url.Error
	for errors.As(err, &uerr) && uerr.Err != nil {
		err = uerr.Err
	}
	return err
}
