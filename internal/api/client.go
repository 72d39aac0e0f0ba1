package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-client/internal/observability"
)

// TokenSource yields the bearer token for authenticated calls. An empty
// token means "not logged in".
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed TokenSource, mostly useful in tests and scripts.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Client is the carpool backend API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the backend at baseURL. tokens is consulted
// before every authenticated call.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// call describes one outbound request.
type call struct {
	op       string
	method   string
	path     string
	query    url.Values
	form     url.Values
	file     *FileUpload
	auth     bool
	fallback string
	// check validates arguments locally; it runs after the token gate.
	check func() error
}

// FileUpload is an optional file part of a multipart body.
type FileUpload struct {
	Field    string
	Filename string
	Content  io.Reader
}

func (cl call) encode() (io.Reader, string, error) {
	switch {
	case cl.file != nil:
		return encodeMultipart(cl.form, cl.file)
	case cl.form != nil:
		return strings.NewReader(cl.form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return nil, "", nil
	}
}

func encodeMultipart(fields url.Values, file *FileUpload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range fields[k] {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
			}
		}
	}

	// the file goes last, after every scalar field
	if file != nil && file.Content != nil {
		field := file.Field
		if field == "" {
			field = "profile"
		}
		part, err := w.CreateFormFile(field, file.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return nil, "", fmt.Errorf("failed to copy file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// do performs exactly one request and decodes a 2xx body into out (when
// out is non-nil). It never retries.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	var token string
	if cl.auth {
		t, err := c.token(ctx)
		if err != nil || t == "" {
			observability.APIRequestsTotal.WithLabelValues(cl.op, "unauthenticated").Inc()
			return &Error{Kind: KindUnauthenticated, Op: cl.op, Message: ErrUnauthenticated.Message, Err: err}
		}
		token = t
	}
	if cl.check != nil {
		if err := cl.check(); err != nil {
			observability.APIRequestsTotal.WithLabelValues(cl.op, "invalid_input").Inc()
			return err
		}
	}

	body, contentType, err := cl.encode()
	if err != nil {
		return &Error{Kind: KindInvalidInput, Op: cl.op, Message: cl.fallback, Err: err}
	}

	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: cl.op, Message: cl.fallback, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observability.APIRequestDuration.WithLabelValues(cl.op).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.APIRequestsTotal.WithLabelValues(cl.op, "network").Inc()
		c.logger.Debug("api_request_failed", "op", cl.op, "method", cl.method, "path", cl.path, "error", err)
		return &Error{Kind: KindNetwork, Op: cl.op, Message: cl.fallback, Err: fmt.Errorf("failed to perform request: %w", err)}
	}
	defer resp.Body.Close()

	c.logger.Debug("api_request",
		"op", cl.op,
		"method", cl.method,
		"path", cl.path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", req.Header.Get("X-Request-ID"),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.APIRequestsTotal.WithLabelValues(cl.op, strconv.Itoa(resp.StatusCode)).Inc()
		raw, _ := io.ReadAll(resp.Body)
		detail := parseErrorBody(raw)
		msg := detail
		if msg == "" {
			msg = cl.fallback
		}
		return &Error{Kind: KindHTTP, Op: cl.op, Status: resp.StatusCode, Message: msg, Detail: detail}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		observability.APIRequestsTotal.WithLabelValues(cl.op, "ok").Inc()
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		observability.APIRequestsTotal.WithLabelValues(cl.op, "decode").Inc()
		return &Error{Kind: KindNetwork, Op: cl.op, Status: resp.StatusCode, Message: cl.fallback, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	observability.APIRequestsTotal.WithLabelValues(cl.op, "ok").Inc()
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	return c.tokens.Token(ctx)
}

func idPath(format string, ids ...int64) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf(format, args...)
}
