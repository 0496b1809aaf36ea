package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Request captures a call made against a Memory data source.
type Request struct {
	Method string
	URL    string
	Path   string
	Query  url.Values
	Body   any
}

// Handler answers a routed Memory request.
type Handler func(ctx context.Context, req Request) (any, error)

// Memory is a DataSource routing requests to registered handlers by method
// and path. Exact URL routes (query included) win over path routes. Every
// call is recorded, including unrouted ones.
type Memory struct {
	mu     sync.Mutex
	routes map[string]Handler
	calls  []Request
}

var _ DataSource = (*Memory)(nil)

// NewMemory returns an empty router.
func NewMemory() *Memory {
	return &Memory{routes: make(map[string]Handler)}
}

// Handle registers a handler for method and pattern. The pattern is either a
// bare path ("/api/roles/getAll/42") or a path with query.
func (m *Memory) Handle(method, pattern string, handler Handler) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[routeKey(method, pattern)] = handler
	return m
}

// Reply registers a handler that always returns payload.
func (m *Memory) Reply(method, pattern string, payload any) *Memory {
	return m.Handle(method, pattern, func(context.Context, Request) (any, error) {
		return payload, nil
	})
}

// Fail registers a handler that always returns err.
func (m *Memory) Fail(method, pattern string, err error) *Memory {
	return m.Handle(method, pattern, func(context.Context, Request) (any, error) {
		return nil, err
	})
}

// Calls returns a copy of the recorded requests.
func (m *Memory) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount returns the number of recorded requests with the given method
// ("" matches every method).
func (m *Memory) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.calls {
		if method == "" || strings.EqualFold(call.Method, method) {
			count++
		}
	}
	return count
}

// Get implements DataSource.
func (m *Memory) Get(ctx context.Context, target string) (any, error) {
	return m.dispatch(ctx, http.MethodGet, target, nil)
}

// Post implements DataSource.
func (m *Memory) Post(ctx context.Context, target string, body any) (any, error) {
	return m.dispatch(ctx, http.MethodPost, target, body)
}

// Put implements DataSource.
func (m *Memory) Put(ctx context.Context, target string, body any) (any, error) {
	return m.dispatch(ctx, http.MethodPut, target, body)
}

func (m *Memory) dispatch(ctx context.Context, method, target string, body any) (any, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("datasource: parse url %q: %w", target, err)
	}
	req := Request{
		Method: method,
		URL:    target,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Body:   body,
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	handler, ok := m.routes[routeKey(method, target)]
	if !ok {
		handler, ok = m.routes[routeKey(method, parsed.Path)]
	}
	m.mu.Unlock()

	if !ok {
		return nil, &APIError{Method: method, URL: target, Status: http.StatusNotFound, Message: ErrNotFound.Error()}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return handler(ctx, req)
}

func routeKey(method, pattern string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(pattern)
}
