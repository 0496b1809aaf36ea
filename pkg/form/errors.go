package form

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrBusy is returned while a submit is in flight.
	ErrBusy = errors.New("form: submit in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("form: engine closed")
	// ErrMounted is returned when Mount is called twice.
	ErrMounted = errors.New("form: already mounted")
	// ErrNotMounted is returned when an operation needs a mounted engine.
	ErrNotMounted = errors.New("form: not mounted")
	// ErrInvalid is returned by Submit when validation failed; the messages
	// are available through Engine.Errors.
	ErrInvalid = errors.New("form: validation failed")
)

// RecordError reports a failed edit-mode hydration. The form stays usable
// with its default values.
type RecordError struct {
	Entity string
	ID     string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("form: fetch %s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// SubmitError reports a failed create/update. Message is the user-facing
// text: the server message when present, a generic fallback otherwise.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	if e.Err == nil {
		return "form: submit: " + e.Message
	}
	return fmt.Sprintf("form: submit: %s: %v", e.Message, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// mapFieldErrors maps server error keys (dotted, JSON pointer or bracketed
// paths, optionally wrapped in body/data/payload segments) onto known form
// fields. Unknown keys are dropped; the form-level message already carries
// the server summary.
func mapFieldErrors(payload map[string][]string, known map[string]struct{}) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]string)
	for raw, messages := range payload {
		msg := firstMessage(messages)
		if msg == "" {
			continue
		}
		if field := matchField(raw, known); field != "" {
			out[field] = msg
		}
	}
	return out
}

func firstMessage(messages []string) string {
	for _, m := range messages {
		if trimmed := strings.TrimSpace(m); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func matchField(raw string, known map[string]struct{}) string {
	segments := pathSegments(raw)
	for len(segments) > 0 {
		switch strings.ToLower(segments[0]) {
		case "body", "request", "payload", "data", "attributes":
			segments = segments[1:]
			continue
		}
		break
	}
	for i := len(segments) - 1; i >= 0; i-- {
		if _, err := strconv.Atoi(segments[i]); err == nil {
			continue
		}
		if _, ok := known[segments[i]]; ok {
			return segments[i]
		}
	}
	return ""
}

func pathSegments(path string) []string {
	clean := strings.TrimSpace(path)
	clean = strings.TrimLeft(clean, "#$/.")
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)
	return strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '/'
	})
}
