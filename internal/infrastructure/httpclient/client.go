// Package httpclient is the fasthttp transport shared by all upstream providers.
// Every failure it returns is classified as transient or permanent.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wallet_aggregator/internal/domain/entity"
	"wallet_aggregator/internal/pkg/metrics"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultTimeout applies when a provider is configured without a positive timeout.
const DefaultTimeout = 10 * time.Second

const maxLoggedBody = 512

// Options configures a Client.
type Options struct {
	Provider string
	BaseURL  string
	Timeout  time.Duration
	Headers  map[string]string

	// Secret is masked in logged URLs (API keys embedded in paths).
	Secret string

	// Admit, when set, is called before every upstream request and blocks until
	// the provider's rate budget allows it.
	Admit func(ctx context.Context) error
}

// Client sends JSON requests to one upstream provider.
type Client struct {
	client   *fasthttp.Client
	provider string
	baseURL  string
	timeout  time.Duration
	headers  map[string]string
	secret   string
	admit    func(ctx context.Context) error
	logger   *zap.Logger
}

// New creates a Client. A non-positive timeout is replaced by DefaultTimeout.
func New(opts Options, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}
	return &Client{
		client: &fasthttp.Client{
			Name:                "wallet-aggregator",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 90 * time.Second,
		},
		provider: opts.Provider,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		timeout:  timeout,
		headers:  headers,
		secret:   opts.Secret,
		admit:    opts.Admit,
		logger:   logger.Named("HTTPClient").With(zap.String("provider", opts.Provider)),
	}
}

// Provider returns the identity this client reports errors and metrics under.
func (c *Client) Provider() string { return c.provider }

// Timeout returns the effective per-request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// AdmitsPerRequest reports whether every request is admitted through a rate budget.
func (c *Client) AdmitsPerRequest() bool { return c.admit != nil }

// GetJSON issues GET baseURL+path?query and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	return c.do(ctx, fasthttp.MethodGet, uri, nil, out)
}

// PostJSON encodes body as JSON, POSTs it to baseURL+path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return entity.NewPermanentError(c.provider, 0, fmt.Errorf("encode request body: %w", err))
	}
	return c.do(ctx, fasthttp.MethodPost, c.baseURL+path, payload, out)
}

func (c *Client) do(ctx context.Context, method, uri string, body []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.admit != nil {
		if err := c.admit(ctx); err != nil {
			return err
		}
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.logger.Debug("Sending upstream request", zap.String("method", method), zap.String("url", c.redact(uri)))

	start := time.Now()
	err := c.client.DoDeadline(req, resp, deadline)
	elapsed := time.Since(start)
	if err != nil {
		metrics.UpstreamLatency.WithLabelValues(c.provider, "error").Observe(elapsed.Seconds())
		c.logger.Warn("Upstream request failed",
			zap.String("url", c.redact(uri)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return c.classifyTransportError(ctx, err)
	}

	status := resp.StatusCode()
	metrics.UpstreamLatency.WithLabelValues(c.provider, strconv.Itoa(status)).Observe(elapsed.Seconds())

	raw := resp.Body()
	if status < 200 || status >= 300 {
		c.logger.Warn("Upstream returned non-2xx status",
			zap.String("url", c.redact(uri)),
			zap.Int("statusCode", status),
			zap.ByteString("responseBody", truncate(raw)))
		return &entity.ProviderError{
			Kind:       entity.ClassifyStatus(status),
			Provider:   c.provider,
			StatusCode: status,
			Err:        fmt.Errorf("%s %s: %s", method, c.redact(uri), truncate(raw)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("Failed to decode upstream response",
			zap.String("url", c.redact(uri)),
			zap.ByteString("responseBody", truncate(raw)),
			zap.Error(err))
		return entity.NewPermanentError(c.provider, status, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) classifyTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	if IsTransportError(err) {
		return entity.NewTransientError(c.provider, 0, err)
	}
	return entity.NewPermanentError(c.provider, 0, err)
}

// IsTransportError reports whether err is a timeout or connection-level failure from fasthttp or net.
func IsTransportError(err error) bool {
	switch {
	case errors.Is(err, fasthttp.ErrTimeout),
		errors.Is(err, fasthttp.ErrDialTimeout),
		errors.Is(err, fasthttp.ErrConnectionClosed),
		errors.Is(err, fasthttp.ErrNoFreeConns),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}

// redact masks the configured secret and query values that commonly carry credentials.
func (c *Client) redact(uri string) string {
	if c.secret != "" {
		uri = strings.ReplaceAll(uri, c.secret, "***")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	q := u.Query()
	masked := false
	for _, k := range []string{"apiKey", "api_key", "x_cg_pro_api_key", "x_cg_demo_api_key"} {
		if q.Has(k) {
			q.Set(k, "***")
			masked = true
		}
	}
	if !masked {
		return uri
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func truncate(b []byte) []byte {
	if len(b) > maxLoggedBody {
		return b[:maxLoggedBody]
	}
	return b
}
