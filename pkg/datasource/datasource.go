// Package datasource defines the fetch-by-URL capability the form engine
// depends on, together with an HTTP implementation and an in-memory router
// used by tests and offline demos. Payloads are JSON-like values (maps,
// slices, strings, float64) as produced by encoding/json.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DataSource is the transport-agnostic capability the engine calls into.
type DataSource interface {
	Get(ctx context.Context, url string) (any, error)
	Post(ctx context.Context, url string, body any) (any, error)
	Put(ctx context.Context, url string, body any) (any, error)
}

// ErrNotFound is returned by Memory for unrouted requests.
var ErrNotFound = errors.New("datasource: not found")

// APIError is returned for non-2xx responses. Message carries the
// server-provided "message" field when present; Fields carries field-level
// validation messages ({"errors": {"email": ["taken"]}}).
type APIError struct {
	Method  string
	URL     string
	Status  int
	Message string
	Fields  map[string][]string
	Body    any
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return fmt.Sprintf("datasource: %s %s: status %d: %s", e.Method, e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("datasource: %s %s: status %d", e.Method, e.URL, e.Status)
}

// ServerMessage extracts the most specific server-provided message from err,
// or "" when the error carries none.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return strings.TrimSpace(apiErr.Message)
	}
	return ""
}

// FieldErrors extracts field-level messages from err.
func FieldErrors(err error) map[string][]string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Fields
	}
	return nil
}

// NewAPIError builds an APIError from a decoded response body.
func NewAPIError(method, url string, status int, body any) *APIError {
	apiErr := &APIError{
		Method: strings.ToUpper(method),
		URL:    url,
		Status: status,
		Body:   body,
	}
	obj, ok := body.(map[string]any)
	if !ok {
		if text, isText := body.(string); isText {
			apiErr.Message = strings.TrimSpace(text)
		}
		return apiErr
	}
	if msg, ok := obj["message"].(string); ok {
		apiErr.Message = strings.TrimSpace(msg)
	} else if msg, ok := obj["error"].(string); ok {
		apiErr.Message = strings.TrimSpace(msg)
	}
	apiErr.Fields = collectFieldErrors(obj["errors"])
	return apiErr
}

func collectFieldErrors(raw any) map[string][]string {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	out := make(map[string][]string, len(obj))
	for key, value := range obj {
		switch typed := value.(type) {
		case string:
			out[key] = append(out[key], typed)
		case []any:
			for _, item := range typed {
				if msg, ok := item.(string); ok {
					out[key] = append(out[key], msg)
				}
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Unwrap strips a single {data: ...} or {content: ...} envelope. When both
// are present data wins; a nil or missing envelope value leaves the payload
// untouched.
func Unwrap(payload any) any {
	obj, ok := payload.(map[string]any)
	if !ok {
		return payload
	}
	if inner, ok := unwrapOnce(obj); ok {
		return inner
	}
	return payload
}

func unwrapOnce(obj map[string]any) (any, bool) {
	if inner, ok := obj["data"]; ok && inner != nil {
		return inner, true
	}
	if inner, ok := obj["content"]; ok && inner != nil {
		return inner, true
	}
	return nil, false
}

// Items unwraps nested envelopes ({data: {content: [...]}} included) until a
// list is reached and returns it; anything else yields nil.
func Items(payload any) []any {
	current := payload
	for depth := 0; depth < 3; depth++ {
		switch typed := current.(type) {
		case []any:
			return typed
		case []map[string]any:
			out := make([]any, len(typed))
			for i := range typed {
				out[i] = typed[i]
			}
			return out
		case map[string]any:
			next, ok := unwrapOnce(typed)
			if !ok {
				return nil
			}
			current = next
		default:
			return nil
		}
	}
	return nil
}
