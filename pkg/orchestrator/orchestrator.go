package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/entities"
	"github.com/goliatone/go-scmform/pkg/form"
	"github.com/goliatone/go-scmform/pkg/metrics"
	"github.com/goliatone/go-scmform/pkg/scd"
	"github.com/goliatone/go-scmform/pkg/schema"
	"github.com/goliatone/go-scmform/pkg/session"
)

// ErrUnknownForm is returned when a request names a form the store does not
// hold.
var ErrUnknownForm = errors.New("orchestrator: unknown form")

// DefinitionSource supplies form definitions. *schema.Store and
// *schema.Holder (through HolderSource) satisfy it.
type DefinitionSource interface {
	Definition(id string) (schema.Definition, bool)
}

// HolderSource reads definitions from the holder's current store, so reloads
// apply to the next Open.
type HolderSource struct {
	Holder *schema.Holder
}

// Definition implements DefinitionSource.
func (h HolderSource) Definition(id string) (schema.Definition, bool) {
	if h.Holder == nil {
		return schema.Definition{}, false
	}
	return h.Holder.Store().Definition(id)
}

// Option customises the orchestrator configuration.
type Option func(*Orchestrator)

// WithDataSource sets the data source handed to every engine.
func WithDataSource(source datasource.DataSource) Option {
	return func(o *Orchestrator) {
		o.source = source
	}
}

// WithSession sets the login store.
func WithSession(store *session.Store) Option {
	return func(o *Orchestrator) {
		o.session = store
	}
}

// WithDefinitions replaces the built-in definitions.
func WithDefinitions(defs DefinitionSource) Option {
	return func(o *Orchestrator) {
		if defs != nil {
			o.definitions = defs
		}
	}
}

// WithReferenceEndpoints overrides scd.DefaultEndpoints.
func WithReferenceEndpoints(endpoints scd.Endpoints) Option {
	return func(o *Orchestrator) {
		o.endpoints = endpoints
	}
}

// WithTransform registers the submit transform of a form, replacing the
// built-in one.
func WithTransform(formID string, transform form.Transform) Option {
	return func(o *Orchestrator) {
		o.transforms[strings.TrimSpace(formID)] = transform
	}
}

// WithTransformer registers definition transformers applied, in order, on
// every Open.
func WithTransformer(transformers ...Transformer) Option {
	return func(o *Orchestrator) {
		for _, t := range transformers {
			if t != nil {
				o.transformers = append(o.transformers, t)
			}
		}
	}
}

// WithFormOptions appends engine options applied to every engine.
func WithFormOptions(opts ...form.Option) Option {
	return func(o *Orchestrator) {
		o.formOptions = append(o.formOptions, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the collector handed to every engine.
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = collector
	}
}

// Orchestrator opens forms. It lazily loads the reference collections the
// first time a form with a selector is opened.
type Orchestrator struct {
	source       datasource.DataSource
	session      *session.Store
	definitions  DefinitionSource
	endpoints    scd.Endpoints
	transforms   map[string]form.Transform
	transformers []Transformer
	formOptions  []form.Option
	logger       zerolog.Logger
	metrics      *metrics.Collector

	initErr error

	refsOnce sync.Once
	provider *scd.Provider
}

// New constructs an Orchestrator. Without WithDefinitions the built-in
// student and teacher forms are served.
func New(options ...Option) *Orchestrator {
	o := &Orchestrator{
		endpoints:  scd.DefaultEndpoints,
		transforms: make(map[string]form.Transform),
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	if o.definitions == nil {
		store, err := entities.Builtin()
		o.definitions = store
		o.initErr = err
	}
	o.provider = scd.NewProvider(o.source, o.session, o.endpoints, scd.WithProviderLogger(o.logger))
	return o
}

// Request names the form to open.
type Request struct {
	// FormID selects the definition.
	FormID string
	// Identifier selects edit mode when non-empty.
	Identifier string
	// Options are appended after the orchestrator's own engine options.
	Options []form.Option
}

// Session is an opened form.
type Session struct {
	Definition schema.Definition
	Engine     *form.Engine
	// Selector is nil unless the definition asks for one.
	Selector *scd.Selector
}

// Close closes the engine.
func (s *Session) Close() {
	if s != nil && s.Engine != nil {
		s.Engine.Close()
	}
}

// Open builds and mounts the engine of req.FormID. Forms with a selector get
// the teacher school pin applied after mount and again after the record is
// hydrated.
func (o *Orchestrator) Open(ctx context.Context, req Request) (*Session, error) {
	if ctx == nil {
		return nil, errors.New("orchestrator: context is required")
	}
	if o.initErr != nil {
		return nil, fmt.Errorf("orchestrator: built-in definitions: %w", o.initErr)
	}
	id := strings.TrimSpace(req.FormID)
	def, ok := o.definitions.Definition(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownForm, id)
	}
	for _, t := range o.transformers {
		if err := t.Transform(ctx, &def); err != nil {
			return nil, fmt.Errorf("orchestrator: transform %q: %w", id, err)
		}
	}

	opts := append(o.engineOptions(def), o.formOptions...)
	opts = append(opts, req.Options...)
	engine, err := form.New(def.Fields, opts...)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: form %q: %w", id, err)
	}

	sess := &Session{Definition: def, Engine: engine}
	if def.Selector {
		o.loadReferences(ctx)
		sess.Selector = scd.NewSelector(engine, o.provider, o.session, scd.WithSelectorLogger(o.logger))
		engine.Subscribe(o.syncOnHydrate(id, sess.Selector))
	}
	if err := engine.Mount(ctx, req.Identifier); err != nil {
		engine.Close()
		return nil, err
	}
	if sess.Selector != nil {
		if _, err := sess.Selector.Sync(); err != nil {
			o.logger.Warn().Err(err).Str("form", id).Msg("sync selector")
		}
	}
	o.logger.Debug().
		Str("form", id).
		Str("id", req.Identifier).
		Bool("selector", def.Selector).
		Msg("form opened")
	return sess, nil
}

// Follow pushes reloads of the session's definition from holder into its
// engine; the engine keeps its values and resolves options again. Reloads
// that drop the form leave the engine untouched.
func (o *Orchestrator) Follow(sess *Session, holder *schema.Holder) {
	if sess == nil || sess.Engine == nil || holder == nil {
		return
	}
	id := sess.Definition.ID
	holder.OnChange(func(store *schema.Store) {
		def, ok := store.Definition(id)
		if !ok {
			o.logger.Warn().Str("form", id).Msg("reloaded definitions no longer hold the open form")
			return
		}
		for _, t := range o.transformers {
			if err := t.Transform(context.Background(), &def); err != nil {
				o.logger.Error().Err(err).Str("form", id).Msg("transform reloaded definition")
				return
			}
		}
		if err := sess.Engine.SetDescriptors(def.Fields); err != nil {
			if !errors.Is(err, form.ErrClosed) {
				o.logger.Error().Err(err).Str("form", id).Msg("apply reloaded definition")
			}
			return
		}
		o.logger.Info().Str("form", id).Int("fields", len(def.Fields)).Msg("form definition reloaded")
	})
}

// syncOnHydrate re-applies the teacher school pin once a fetched record
// replaces the form values.
func (o *Orchestrator) syncOnHydrate(id string, selector *scd.Selector) func(form.Event) {
	return func(evt form.Event) {
		if evt.Kind != form.EventHydrated {
			return
		}
		if _, err := selector.Sync(); err != nil && !errors.Is(err, form.ErrClosed) {
			o.logger.Warn().Err(err).Str("form", id).Msg("sync selector after hydration")
		}
	}
}

// References exposes the reference provider.
func (o *Orchestrator) References() *scd.Provider {
	return o.provider
}

// ReloadReferences refetches the school, class and division collections.
func (o *Orchestrator) ReloadReferences(ctx context.Context) error {
	return o.provider.Load(ctx)
}

func (o *Orchestrator) loadReferences(ctx context.Context) {
	o.refsOnce.Do(func() {
		if err := o.provider.Load(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("reference collections unavailable")
		}
	})
}

func (o *Orchestrator) engineOptions(def schema.Definition) []form.Option {
	opts := []form.Option{
		form.WithEntity(def.Entity),
		form.WithEndpoints(form.Endpoints{Fetch: def.FetchURL, Save: def.SaveURL, Update: def.UpdateURL}),
		form.WithSuccessTarget(def.SuccessTarget),
		form.WithDataSource(o.source),
		form.WithSession(o.session),
		form.WithLogger(o.logger),
		form.WithMetrics(o.metrics),
	}
	transform, custom := o.transforms[def.ID]
	if !custom {
		transform = entities.Transform(def.ID, o.session)
	}
	if transform != nil {
		opts = append(opts, form.WithTransform(transform))
	}
	return opts
}
