// Package options resolves the option list of select descriptors. Static
// lists pass through; remote sources are expanded ({accountId} and friends),
// fetched through a datasource.DataSource, unwrapped from {data}/{content}
// envelopes and normalised into model.Option values.
package options

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/model"
)

// PageSize is the fixed page size sent with POST option fetches.
const PageSize = 1000

// ErrNoDataSource is returned when a remote source is resolved without a data
// source configured.
var ErrNoDataSource = errors.New("options: data source is required for remote options")

// PagingEnvelope returns the body sent with every POST option fetch.
func PagingEnvelope() map[string]any {
	return map[string]any{
		"page":    0,
		"size":    PageSize,
		"sortBy":  "id",
		"sortDir": "asc",
		"search":  "",
	}
}

// Vars supplies placeholder values such as accountId.
type Vars func() map[string]string

// Option configures a Resolver.
type Option func(*Resolver)

// WithVars sets the placeholder source.
func WithVars(vars Vars) Option {
	return func(r *Resolver) {
		r.vars = vars
	}
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithSanitizer overrides the label sanitizer. Pass nil to keep labels as
// returned by the server.
func WithSanitizer(policy *bluemonday.Policy) Option {
	return func(r *Resolver) {
		r.sanitizer = policy
	}
}

// Resolver turns descriptors into option lists.
type Resolver struct {
	source    datasource.DataSource
	vars      Vars
	logger    zerolog.Logger
	sanitizer *bluemonday.Policy
}

// NewResolver constructs a resolver backed by source.
func NewResolver(source datasource.DataSource, options ...Option) *Resolver {
	r := &Resolver{
		source:    source,
		logger:    zerolog.Nop(),
		sanitizer: bluemonday.StrictPolicy(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// IsRemote reports whether resolving d requires a fetch.
func IsRemote(d model.FieldDescriptor) bool {
	if d.Kind != model.KindSelect {
		return false
	}
	if len(d.StaticOptionList()) > 0 {
		return false
	}
	_, ok := d.RemoteSource()
	return ok
}

// Static returns the inline options of d, or nil.
func Static(d model.FieldDescriptor) []model.Option {
	list := d.StaticOptionList()
	if len(list) == 0 {
		return nil
	}
	return append([]model.Option(nil), list...)
}

// Resolve returns the options for d. Static options are returned without a
// fetch; a descriptor without any source resolves to an empty list.
func (r *Resolver) Resolve(ctx context.Context, d model.FieldDescriptor) ([]model.Option, error) {
	if d.Kind != model.KindSelect {
		return nil, nil
	}
	if static := Static(d); static != nil {
		return static, nil
	}
	remote, ok := d.RemoteSource()
	if !ok {
		return nil, nil
	}
	if r == nil || r.source == nil {
		return nil, ErrNoDataSource
	}

	target := r.RequestURL(remote)
	var (
		payload any
		err     error
	)
	if remote.IsPost() {
		payload, err = r.source.Post(ctx, target, PagingEnvelope())
	} else {
		payload, err = r.source.Get(ctx, target)
	}
	if err != nil {
		return nil, fmt.Errorf("options: fetch %s for %q: %w", target, d.Name, err)
	}

	opts := r.normalize(extractResults(payload, remote.ResultsPath), remote)
	r.logger.Debug().
		Str("field", d.Name).
		Str("url", target).
		Int("options", len(opts)).
		Msg("options resolved")
	return opts, nil
}

// RequestURL expands placeholders and, for GET sources, appends the static
// query parameters.
func (r *Resolver) RequestURL(remote model.RemoteOptions) string {
	var vars map[string]string
	if r != nil && r.vars != nil {
		vars = r.vars()
	}
	target := Expand(strings.TrimSpace(remote.URL), vars)
	if remote.IsPost() {
		return target
	}
	return AppendQuery(target, remote.Query)
}

var placeholderPattern = regexp.MustCompile(`\{\s*([A-Za-z0-9_]+)\s*\}`)

// Expand replaces {name} tokens with values from vars. Unknown or empty
// values leave the token untouched.
func Expand(template string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(template, "{") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		match := placeholderPattern.FindStringSubmatch(token)
		if len(match) < 2 {
			return token
		}
		value, ok := vars[match[1]]
		if !ok || value == "" {
			return token
		}
		return url.PathEscape(value)
	})
}

// AppendQuery appends params to target using "?" or "&" as appropriate.
// Keys are sorted so the resulting URL is deterministic.
func AppendQuery(target string, params map[string]string) string {
	if len(params) == 0 {
		return target
	}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(params[key]))
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + strings.Join(pairs, "&")
}

func extractResults(payload any, path string) []any {
	path = strings.TrimSpace(path)
	if path == "" {
		return datasource.Items(payload)
	}
	current := payload
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = node[segment]
	}
	return datasource.Items(current)
}

func (r *Resolver) normalize(items []any, remote model.RemoteOptions) []model.Option {
	out := make([]model.Option, 0, len(items))
	for _, item := range items {
		var opt model.Option
		if remote.LabelField != "" || remote.ValueField != "" {
			opt = mapped(item, remote.LabelField, remote.ValueField)
		} else {
			opt = Normalize(item)
		}
		opt.Label = r.sanitize(opt.Label)
		out = append(out, opt)
	}
	return out
}

func (r *Resolver) sanitize(label string) string {
	if r == nil || r.sanitizer == nil {
		return label
	}
	// StrictPolicy escapes entities; labels are plain text, not HTML.
	return strings.TrimSpace(html.UnescapeString(r.sanitizer.Sanitize(label)))
}

// Normalize converts a payload item into an option using the precedence
// {label, value} → {id, name} → name/label and id/value fallbacks →
// stringified item.
func Normalize(item any) model.Option {
	obj, ok := item.(map[string]any)
	if !ok {
		return model.Option{Label: model.Stringify(item), Value: item}
	}
	label, hasLabel := obj["label"]
	value, hasValue := obj["value"]
	if hasLabel && hasValue {
		return model.Option{Label: model.Stringify(label), Value: value}
	}
	id, hasID := obj["id"]
	name, hasName := obj["name"]
	if hasID && hasName {
		return model.Option{Label: model.Stringify(name), Value: id}
	}

	opt := model.Option{Value: item}
	switch {
	case hasName && model.Stringify(name) != "":
		opt.Label = model.Stringify(name)
	case hasLabel && model.Stringify(label) != "":
		opt.Label = model.Stringify(label)
	default:
		opt.Label = fmt.Sprint(item)
	}
	switch {
	case hasID && id != nil:
		opt.Value = id
	case hasValue && value != nil:
		opt.Value = value
	}
	return opt
}

func mapped(item any, labelField, valueField string) model.Option {
	obj, ok := item.(map[string]any)
	if !ok {
		return Normalize(item)
	}
	fallback := Normalize(item)
	opt := fallback
	if valueField != "" {
		if value, ok := pick(obj, valueField); ok {
			opt.Value = value
		}
	}
	if labelField != "" {
		if label, ok := pick(obj, labelField); ok {
			opt.Label = model.Stringify(label)
		}
	}
	return opt
}

func pick(obj map[string]any, path string) (any, bool) {
	current := any(obj)
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}
