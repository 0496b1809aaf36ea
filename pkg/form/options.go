package form

import (
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/metrics"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/options"
	"github.com/goliatone/go-scmform/pkg/session"
)

// Endpoints are the caller-supplied URLs used by the engine.
type Endpoints struct {
	// Fetch loads an entity for edit mode; tried as {Fetch}/{id} then
	// {Fetch}?id={id}.
	Fetch string
	// Save receives POST for new entities.
	Save string
	// Update receives PUT at {Update}/{id}.
	Update string
}

// Transform converts the form values into the submitted payload.
type Transform func(values model.Values, isEdit bool) (any, error)

// Navigator is the screen stack the engine hands control back to after a
// successful submit or a cancel.
type Navigator interface {
	Navigate(target string)
	Back()
}

// Notifier surfaces user-facing messages (alerts, toasts).
type Notifier interface {
	Success(message string)
	Failure(message string)
}

// EventKind identifies what changed in an Engine.
type EventKind string

const (
	EventHydrated EventKind = "hydrated"
	EventOptions  EventKind = "options"
	EventValue    EventKind = "value"
	EventErrors   EventKind = "errors"
	EventBusy     EventKind = "busy"
)

// Event is delivered to change listeners after the engine state moved.
type Event struct {
	Kind  EventKind
	Field string
}

// Option configures an Engine.
type Option func(*config)

type config struct {
	entity        string
	endpoints     Endpoints
	source        datasource.DataSource
	session       *session.Store
	resolver      *options.Resolver
	transform     Transform
	onSuccess     func(response any)
	onError       func(err error)
	sanitizer     *bluemonday.Policy
	successTarget string
	navigator     Navigator
	notifier      Notifier
	listeners     []func(Event)
	logger        zerolog.Logger
	metrics       *metrics.Collector
	now           func() time.Time
}

func defaultConfig() config {
	return config{
		entity:    "Record",
		navigator: noopNavigator{},
		notifier:  noopNotifier{},
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
}

// WithEntity names the edited entity ("Student") for messages and metrics.
func WithEntity(name string) Option {
	return func(c *config) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			c.entity = trimmed
		}
	}
}

// WithEndpoints sets the fetch/save/update URLs.
func WithEndpoints(endpoints Endpoints) Option {
	return func(c *config) {
		c.endpoints = endpoints
	}
}

// WithDataSource sets the data source used for every remote call.
func WithDataSource(source datasource.DataSource) Option {
	return func(c *config) {
		c.source = source
	}
}

// WithSession injects the session used for placeholder substitution.
func WithSession(store *session.Store) Option {
	return func(c *config) {
		c.session = store
	}
}

// WithOptionResolver overrides the resolver built from the data source and
// session.
func WithOptionResolver(resolver *options.Resolver) Option {
	return func(c *config) {
		c.resolver = resolver
	}
}

// WithTransform sets the submit transform.
func WithTransform(transform Transform) Option {
	return func(c *config) {
		c.transform = transform
	}
}

// WithOnSuccess registers the callback invoked with the server response after
// a successful submit, before navigation.
func WithOnSuccess(fn func(response any)) Option {
	return func(c *config) {
		c.onSuccess = fn
	}
}

// WithOnError registers the callback invoked with every *RecordError and
// *SubmitError, after the notifier.
func WithOnError(fn func(err error)) Option {
	return func(c *config) {
		c.onError = fn
	}
}

// WithInputSanitizer strips markup from strings written to text and textarea
// fields.
func WithInputSanitizer(policy *bluemonday.Policy) Option {
	return func(c *config) {
		c.sanitizer = policy
	}
}

// WithSuccessTarget navigates to target after a successful submit instead of
// going back.
func WithSuccessTarget(target string) Option {
	return func(c *config) {
		c.successTarget = strings.TrimSpace(target)
	}
}

// WithNavigator sets the navigator.
func WithNavigator(nav Navigator) Option {
	return func(c *config) {
		if nav != nil {
			c.navigator = nav
		}
	}
}

// WithNotifier sets the user-facing message sink.
func WithNotifier(notifier Notifier) Option {
	return func(c *config) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// WithOnChange registers a listener called after every state change. Listeners
// run outside the engine lock and may call back into the engine.
func WithOnChange(fn func(Event)) Option {
	return func(c *config) {
		if fn != nil {
			c.listeners = append(c.listeners, fn)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *config) {
		c.metrics = collector
	}
}

// WithClock overrides time.Now for date rules.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}
func (noopNavigator) Back()           {}

type noopNotifier struct{}

func (noopNotifier) Success(string) {}
func (noopNotifier) Failure(string) {}
