package datasource

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

	"github.com/rs/zerolog"
)

// TokenSource returns the bearer token to attach to each request, "" for none.
type TokenSource func() string

// HTTPOption configures an HTTP data source.
type HTTPOption func(*HTTP)

// WithHTTPClient overrides the underlying client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTP) {
		if client != nil {
			h.client = client
		}
	}
}

// WithTokenSource attaches an Authorization: Bearer header to every request.
func WithTokenSource(source TokenSource) HTTPOption {
	return func(h *HTTP) {
		h.token = source
	}
}

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = logger
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) {
		if strings.TrimSpace(key) == "" {
			return
		}
		h.headers.Set(key, value)
	}
}

// HTTP is a JSON-over-HTTP DataSource. Relative URLs are resolved against the
// base URL.
type HTTP struct {
	base    *url.URL
	client  *http.Client
	token   TokenSource
	headers http.Header
	logger  zerolog.Logger
}

var _ DataSource = (*HTTP)(nil)

// NewHTTP constructs an HTTP data source rooted at baseURL.
func NewHTTP(baseURL string, options ...HTTPOption) (*HTTP, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("datasource: base url is required")
	}
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("datasource: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("datasource: base url %q must be absolute", baseURL)
	}

	h := &HTTP{
		base:    base,
		client:  &http.Client{Timeout: 30 * time.Second},
		headers: make(http.Header),
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Get issues a GET request.
func (h *HTTP) Get(ctx context.Context, target string) (any, error) {
	return h.do(ctx, http.MethodGet, target, nil)
}

// Post issues a POST request with a JSON body.
func (h *HTTP) Post(ctx context.Context, target string, body any) (any, error) {
	return h.do(ctx, http.MethodPost, target, body)
}

// Put issues a PUT request with a JSON body.
func (h *HTTP) Put(ctx context.Context, target string, body any) (any, error) {
	return h.do(ctx, http.MethodPut, target, body)
}

// Resolve returns the absolute URL for target.
func (h *HTTP) Resolve(target string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return "", fmt.Errorf("datasource: parse url %q: %w", target, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	resolved := *h.base
	resolved.Path = strings.TrimRight(h.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	resolved.RawQuery = ref.RawQuery
	return resolved.String(), nil
}

func (h *HTTP) do(ctx context.Context, method, target string, body any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reqURL, err := h.Resolve(target)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("datasource: encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("datasource: request: %w", err)
	}
	for key, values := range h.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != nil {
		if token := strings.TrimSpace(h.token()); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("datasource: %s %s: %w", method, reqURL, err)
	}
	defer resp.Body.Close()

	payload, decodeErr := decodeBody(resp.Body)

	h.logger.Debug().
		Str("method", method).
		Str("url", reqURL).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("datasource request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewAPIError(method, reqURL, resp.StatusCode, payload)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("datasource: decode %s %s: %w", method, reqURL, decodeErr)
	}
	return payload, nil
}

func decodeBody(body io.Reader) (any, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return string(raw), err
	}
	return payload, nil
}
