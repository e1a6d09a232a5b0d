// Package remote implements the bearer-authenticated JSON client for the
// remote commerce platform.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/telemetry"
)

// RequestRecorder observes completed remote requests.
type RequestRecorder interface {
	RecordRemoteRequest(ctx context.Context, method, host string, statusCode int, elapsed time.Duration)
}

// Client implements integration.RemoteClient over net/http.
// A Client is bound to at most one access token; see ForToken.
type Client struct {
	httpClient *http.Client
	config     Config
	token      string
	logger     *zap.Logger
	recorder   RequestRecorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRecorder reports every completed request to r.
func WithRecorder(r RequestRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// NewClient creates a client with the given configuration
func NewClient(config Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger.Named("remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.config }

// ForToken returns a copy of the client that authenticates with accessToken.
func (c *Client) ForToken(accessToken string) integration.RemoteClient {
	cp := *c
	cp.token = accessToken
	return &cp
}

// Get issues a GET with the given query parameters merged into rawURL.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) (*integration.RemoteResponse, error) {
	return c.do(ctx, http.MethodGet, rawURL, query, nil)
}

// Post issues a POST with body encoded as JSON.
func (c *Client) Post(ctx context.Context, rawURL string, body any) (*integration.RemoteResponse, error) {
	return c.do(ctx, http.MethodPost, rawURL, nil, body)
}

// Put issues a PUT with body encoded as JSON.
func (c *Client) Put(ctx context.Context, rawURL string, body any) (*integration.RemoteResponse, error) {
	return c.do(ctx, http.MethodPut, rawURL, nil, body)
}

func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values, body any) (*integration.RemoteResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("remote: invalid url %q: %w", rawURL, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	ctx, span := telemetry.StartSpan(ctx, "remote."+method,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute("http.request.method", method),
		telemetry.WithAttribute("server.address", u.Host),
		telemetry.WithAttribute("url.path", u.Path),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("remote: failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("remote: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		c.logger.Warn("Remote request failed",
			zap.String("method", method),
			zap.String("url", u.Redacted()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseSize+1))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: failed to read response: %v", integration.ErrPlatformUnavailable, err)
	}
	elapsed := time.Since(start)
	if c.recorder != nil {
		c.recorder.RecordRemoteRequest(ctx, method, u.Host, resp.StatusCode, elapsed)
	}
	telemetry.SetAttributes(span, "http.response.status_code", resp.StatusCode)
	c.logger.Debug("Remote request completed",
		zap.String("method", method),
		zap.String("url", u.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", elapsed),
	)

	if int64(len(raw)) > c.config.MaxResponseSize {
		err := integration.NewSchemaError(fmt.Sprintf("response exceeds %d bytes", c.config.MaxResponseSize), nil)
		telemetry.RecordError(span, err)
		return nil, err
	}

	decoded, decodeErr := decodeBody(raw)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody any = decoded
		if decodeErr != nil {
			errBody = string(raw)
		}
		statusErr := &integration.RemoteStatusError{
			StatusCode: resp.StatusCode,
			Message:    statusMessage(resp.StatusCode, raw),
			Method:     method,
			URL:        u.Redacted(),
			Body:       errBody,
		}
		telemetry.RecordError(span, statusErr)
		return nil, statusErr
	}
	if decodeErr != nil {
		err := integration.NewSchemaError(fmt.Sprintf("response is not JSON: %v", decodeErr), string(raw))
		telemetry.RecordError(span, err)
		return nil, err
	}

	return &integration.RemoteResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       decoded,
	}, nil
}

// decodeBody decodes a JSON document keeping numbers as json.Number.
// An empty body decodes to nil.
func decodeBody(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON document")
	}
	return v, nil
}

// statusMessage renders "<status> - <body>" with the body compacted when it is JSON.
func statusMessage(statusCode int, raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fmt.Sprintf("%d - %s", statusCode, http.StatusText(statusCode))
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err == nil {
		return fmt.Sprintf("%d - %s", statusCode, buf.String())
	}
	return fmt.Sprintf("%d - %s", statusCode, string(trimmed))
}

var (
	_ integration.RemoteClient        = (*Client)(nil)
	_ integration.RemoteClientFactory = (*Client)(nil)
)
