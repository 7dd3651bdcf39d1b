// Package rest is the request/response half of the API client.
//
// The client never retries. It refuses requests it already knows the server would
// reject (a bucket recorded from an earlier 429, or the process-wide request budget)
// and records new refusals it observes. Everything else is passed through.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"personal/discord_client/src/entity"
	"personal/discord_client/src/ratelimit"
)

const (
	DefaultBaseURL = "https://discord.com/api/v10"
	LibraryURL     = "https://github.com/personal/discord_client"
	LibraryVersion = "0.1.0"
)

// localBucket names refusals by the process-wide request budget.
const localBucket = "local"

type Config struct {
	Token     string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// GlobalRequestsPerSecond caps outgoing requests across all buckets. Zero or
	// negative disables the cap.
	GlobalRequestsPerSecond float64
	GlobalBurst             int

	// Resolver, when set, is used to decode users and emoji nested in responses.
	Resolver entity.Resolver

	HTTPClient *http.Client
	Now        func() time.Time
}

type Client struct {
	token     string
	baseURL   string
	userAgent string

	http     *http.Client
	limits   *ratelimit.Limiter
	budget   *rate.Limiter
	resolver entity.Resolver
	logger   *slog.Logger

	tracer   trace.Tracer
	requests metric.Int64Counter
	refused  metric.Int64Counter
	duration metric.Float64Histogram
}

// RequestOptions are the optional parts of a request.
type RequestOptions struct {
	// Body is sent as JSON. []byte and json.RawMessage are sent verbatim.
	Body   any
	Reason string
	Query  url.Values
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       json.RawMessage

	// RateLimited is set when the request was refused locally and never sent.
	RateLimited bool
	RetryAfter  time.Duration
	Bucket      string
	RequestID   string
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("rest: token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = fmt.Sprintf("DiscordBot (%s %s)", LibraryURL, LibraryVersion)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	budget := rate.NewLimiter(rate.Inf, 0)
	if cfg.GlobalRequestsPerSecond > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.GlobalRequestsPerSecond))
		}
		budget = rate.NewLimiter(rate.Limit(cfg.GlobalRequestsPerSecond), burst)
	}

	meter := otel.Meter("discord_client/rest")
	requests, err := meter.Int64Counter(
		"rest.requests",
		metric.WithDescription("Number of REST requests sent, by method and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	refused, err := meter.Int64Counter(
		"rest.requests.refused",
		metric.WithDescription("Number of REST requests refused because of rate limits"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"rest.request.duration",
		metric.WithDescription("Duration of REST requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		token:     cfg.Token,
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      httpClient,
		limits:    ratelimit.NewWithClock(cfg.Now),
		budget:    budget,
		resolver:  cfg.Resolver,
		logger:    logger.With("component", "rest"),
		tracer:    otel.Tracer("discord_client/rest"),
		requests:  requests,
		refused:   refused,
		duration:  duration,
	}, nil
}

// SetResolver sets the resolver used for nested users and emoji in responses.
// It must be called before the client is shared.
func (c *Client) SetResolver(r entity.Resolver) {
	c.resolver = r
}

// Limits exposes the bucket bookkeeping, mostly for inspection.
func (c *Client) Limits() *ratelimit.Limiter {
	return c.limits
}

// BucketKey derives the rate-limit bucket of a request path. Paths under a channel
// or guild are keyed by that resource; anything else uses the literal path.
func BucketKey(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	parts := strings.Split(path, "/")
	if len(parts) > 2 && parts[2] != "" {
		switch parts[1] {
		case "channels":
			return "channel:" + parts[2] + ":" + path
		case "guilds":
			return "guild:" + parts[2] + ":" + path
		}
	}
	return path
}

// Request issues one API call. A request refused locally returns a Response with
// RateLimited set and a nil error. A nil Response is only returned with an error;
// *TransportError means the request was not answered.
func (c *Client) Request(ctx context.Context, method, path string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	bucket := BucketKey(path)
	requestID := uuid.NewString()
	log := c.logger.With("request_id", requestID, "method", method, "path", path)

	if limited, key, retryAfter := c.limits.Check(bucket); limited {
		log.Warn("Request refused, bucket is rate limited", "bucket", key, "retry_after", retryAfter)
		c.refused.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", refusalReason(key))))
		return &Response{RateLimited: true, RetryAfter: retryAfter, Bucket: key, RequestID: requestID}, nil
	}
	if !c.budget.Allow() {
		log.Warn("Request refused, global request budget exhausted")
		c.refused.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", localBucket)))
		return &Response{RateLimited: true, Bucket: localBucket, RequestID: requestID}, nil
	}

	ctx, span := c.tracer.Start(ctx, "rest "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("discord.bucket", bucket),
			attribute.String("discord.request_id", requestID),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.do(ctx, method, path, opts)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		c.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("method", method)))
		c.requests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("status", "transport_error"),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Request failed", "error", err)
		return nil, err
	}

	resp.Bucket = bucket
	resp.RequestID = requestID

	status := strconv.Itoa(resp.StatusCode)
	c.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("method", method)))
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", status),
	))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusTooManyRequests {
		key, retryAfter := c.recordLimit(bucket, resp)
		resp.RetryAfter = retryAfter
		span.SetStatus(codes.Error, "rate limited")
		log.Warn("Rate limit exceeded", "bucket", key, "retry_after", retryAfter)
		return resp, nil
	}

	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		log.Debug("Request returned error status", "status", resp.StatusCode)
	} else {
		span.SetStatus(codes.Ok, "")
		log.Debug("Request completed", "status", resp.StatusCode, "duration", elapsed)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, opts *RequestOptions) (*Response, error) {
	target := c.baseURL + path
	if len(opts.Query) > 0 {
		target += "?" + opts.Query.Encode()
	}

	var body io.Reader
	if opts.Body != nil {
		payload, err := encodeBody(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("could not encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if opts.Reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(opts.Reason))
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("could not read response body: %w", err)}
	}

	resp := &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
	}
	if len(resBody) > 0 {
		resp.Body = resBody
	}
	return resp, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

type rateLimitBody struct {
	RetryAfter *float64 `json:"retry_after"`
	Global     bool     `json:"global"`
}

// recordLimit stores the limit carried by a 429 and returns the key it was stored
// under. The body is authoritative; the Retry-After header is the fallback.
func (c *Client) recordLimit(bucket string, resp *Response) (string, time.Duration) {
	var info rateLimitBody
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &info); err != nil {
			c.logger.Debug("Could not parse rate limit body", "error", err)
		}
	}

	var seconds float64
	switch {
	case info.RetryAfter != nil:
		seconds = *info.RetryAfter
	case resp.Header.Get("Retry-After") != "":
		seconds, _ = strconv.ParseFloat(resp.Header.Get("Retry-After"), 64)
	}
	if !info.Global && strings.EqualFold(resp.Header.Get("X-RateLimit-Global"), "true") {
		info.Global = true
	}

	key := bucket
	if info.Global {
		key = ratelimit.GlobalBucket
	}
	c.limits.SetLimitedSeconds(key, seconds)
	return key, time.Duration(seconds * float64(time.Second))
}

func refusalReason(key string) string {
	if key == ratelimit.GlobalBucket {
		return "global"
	}
	return "bucket"
}
