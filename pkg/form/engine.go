package form

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-scmform/pkg/metrics"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/options"
)

// Mode tells whether the engine creates a new entity or edits an existing one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Engine owns the state of one mounted form: values, resolved options,
// validation errors and the in-flight flags. All methods are safe for
// concurrent use.
type Engine struct {
	cfg      config
	id       string
	logger   zerolog.Logger
	resolver *options.Resolver

	mu          sync.Mutex
	descriptors []model.FieldDescriptor
	values      model.Values
	options     model.OptionSet
	errors      model.ValidationErrors
	identifier  string
	mounted     bool
	closed      bool
	busy        bool
	loading     bool
	recordErr   error
	generation  uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subMu       sync.Mutex
	subscribers []subscriber
	nextSub     uint64
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// New validates descriptors and returns an unmounted engine.
func New(descriptors []model.FieldDescriptor, opts ...Option) (*Engine, error) {
	if err := model.ValidateDescriptors(descriptors); err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	e := &Engine{
		cfg:         cfg,
		id:          uuid.NewString(),
		descriptors: append([]model.FieldDescriptor(nil), descriptors...),
		values:      model.DefaultValues(descriptors),
		options:     make(model.OptionSet),
		errors:      make(model.ValidationErrors),
	}
	e.logger = cfg.logger.With().
		Str("form", cfg.entity).
		Str("instance", e.id).
		Logger()
	e.resolver = cfg.resolver
	if e.resolver == nil {
		e.resolver = options.NewResolver(cfg.source,
			options.WithVars(e.vars),
			options.WithLogger(e.logger),
		)
	}
	return e, nil
}

// ID returns the random instance id used in logs.
func (e *Engine) ID() string {
	return e.id
}

// Entity returns the configured entity name.
func (e *Engine) Entity() string {
	return e.cfg.entity
}

// Subscribe registers fn for every change event after those given with
// WithOnChange. Listeners run on the goroutine that caused the change,
// outside the engine lock. The returned func removes the subscription.
func (e *Engine) Subscribe(fn func(Event)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	e.subMu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subscribers = append(e.subscribers, subscriber{id: id, fn: fn})
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		for i, sub := range e.subscribers {
			if sub.id == id {
				e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Mount starts the engine lifecycle. A non-empty identifier selects edit
// mode and triggers the record fetch. Option and record fetches run in the
// background; use Wait to block until they settle.
func (e *Engine) Mount(ctx context.Context, identifier string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.mounted {
		e.mu.Unlock()
		return ErrMounted
	}
	e.mounted = true
	e.identifier = strings.TrimSpace(identifier)
	e.ctx, e.cancel = context.WithCancel(ctx)
	fetchRecord := e.identifier != "" && e.cfg.endpoints.Fetch != ""
	e.loading = fetchRecord
	e.mu.Unlock()

	e.logger.Debug().
		Str("mode", string(e.Mode())).
		Str("id", e.identifier).
		Msg("form mounted")

	e.resolveOptions()
	if fetchRecord {
		e.wg.Add(1)
		go e.loadRecord(e.ctx)
	}
	return nil
}

// Wait blocks until every background fetch started so far has finished or
// ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unmounts the engine. Results of fetches still in flight are
// discarded.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.generation++
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.logger.Debug().Msg("form closed")
}

// Cancel abandons the form and navigates back.
func (e *Engine) Cancel() {
	e.Close()
	e.cfg.navigator.Back()
}

// Mode reports create or edit.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modeLocked()
}

func (e *Engine) modeLocked() Mode {
	if e.identifier != "" {
		return ModeEdit
	}
	return ModeCreate
}

// Identifier returns the edited entity id, empty in create mode.
func (e *Engine) Identifier() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identifier
}

// Descriptors returns a copy of the active descriptors.
func (e *Engine) Descriptors() []model.FieldDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.FieldDescriptor(nil), e.descriptors...)
}

// Values returns a snapshot of the form state.
func (e *Engine) Values() model.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.values.Clone()
}

// Value returns the current value of one field.
func (e *Engine) Value(name string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.values[name]
}

// Errors returns a snapshot of the validation errors.
func (e *Engine) Errors() model.ValidationErrors {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(model.ValidationErrors, len(e.errors))
	for k, v := range e.errors {
		out[k] = v
	}
	return out
}

// Options returns a snapshot of every resolved option list.
func (e *Engine) Options() model.OptionSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(model.OptionSet, len(e.options))
	for k, v := range e.options {
		out[k] = append([]model.Option(nil), v...)
	}
	return out
}

// FieldOptions returns the resolved options of one field.
func (e *Engine) FieldOptions(name string) []model.Option {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Option(nil), e.options[name]...)
}

// Busy reports whether a submit is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Loading reports whether the edit-mode record fetch is in flight.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// RecordErr returns the hydration failure, if any.
func (e *Engine) RecordErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recordErr
}

// SetValue writes one field and clears its error. Fields outside the
// descriptor list are accepted; hosts keep auxiliary state (such as the
// school/class/division triple) in the same map.
func (e *Engine) SetValue(name string, value any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.ErrEmptyFieldName
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	e.values[name] = e.sanitizeLocked(name, value)
	delete(e.errors, name)
	e.mu.Unlock()

	e.emit(Event{Kind: EventValue, Field: name})
	return nil
}

// Validate runs the submit-time checks without submitting and stores the
// resulting errors.
func (e *Engine) Validate() model.ValidationErrors {
	e.mu.Lock()
	errs := e.validateLocked()
	e.errors = errs
	e.mu.Unlock()
	e.emit(Event{Kind: EventErrors})
	return e.Errors()
}

// SetDescriptors replaces the descriptor list. Values of surviving fields
// are kept, new fields get defaults and option lists are resolved again.
// Results of option fetches started for the previous list are discarded.
func (e *Engine) SetDescriptors(descriptors []model.FieldDescriptor) error {
	if err := model.ValidateDescriptors(descriptors); err != nil {
		return err
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.descriptors = append([]model.FieldDescriptor(nil), descriptors...)
	e.generation++
	defaults := model.DefaultValues(descriptors)
	known := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		known[d.Name] = struct{}{}
		if _, ok := e.values[d.Name]; !ok {
			e.values[d.Name] = defaults[d.Name]
		}
	}
	for name := range e.errors {
		if _, ok := known[name]; !ok {
			delete(e.errors, name)
		}
	}
	e.options = make(model.OptionSet)
	mounted := e.mounted
	e.mu.Unlock()

	if mounted {
		e.resolveOptions()
	}
	return nil
}

// resolveOptions fills static lists immediately and starts one fetch per
// remote select field.
func (e *Engine) resolveOptions() {
	e.mu.Lock()
	gen := e.generation
	ctx := e.ctx
	descriptors := e.descriptors
	var remote []model.FieldDescriptor
	for _, d := range descriptors {
		if d.Kind != model.KindSelect {
			continue
		}
		if static := options.Static(d); static != nil {
			e.options[d.Name] = static
			continue
		}
		e.options[d.Name] = []model.Option{}
		if options.IsRemote(d) {
			remote = append(remote, d)
		}
	}
	e.mu.Unlock()
	e.emit(Event{Kind: EventOptions})

	for _, d := range remote {
		e.wg.Add(1)
		go e.fetchOptions(ctx, gen, d)
	}
}

func (e *Engine) fetchOptions(ctx context.Context, gen uint64, d model.FieldDescriptor) {
	defer e.wg.Done()
	done := e.cfg.metrics.FetchStarted()
	defer done()

	list, err := e.resolver.Resolve(ctx, d)
	if err != nil {
		e.cfg.metrics.ObserveOptionFetch(e.cfg.entity, d.Name, metrics.OutcomeFailure)
		if ctx.Err() == nil {
			e.logger.Warn().Err(err).Str("field", d.Name).Msg("option fetch failed")
		}
		return
	}

	e.mu.Lock()
	if !e.alive(gen) {
		e.mu.Unlock()
		e.cfg.metrics.ObserveOptionFetch(e.cfg.entity, d.Name, metrics.OutcomeDiscarded)
		return
	}
	if list == nil {
		list = []model.Option{}
	}
	e.options[d.Name] = list
	e.mu.Unlock()

	e.cfg.metrics.ObserveOptionFetch(e.cfg.entity, d.Name, metrics.OutcomeSuccess)
	e.emit(Event{Kind: EventOptions, Field: d.Name})
}

// vars supplies session placeholders to the option resolver.
func (e *Engine) vars() map[string]string {
	out := map[string]string{}
	if e.cfg.session == nil {
		return out
	}
	current := e.cfg.session.Current()
	if current.AccountID != "" {
		out["accountId"] = current.AccountID
	}
	if current.User != nil {
		if id := model.Stringify(current.User.ID); id != "" {
			out["userId"] = id
		}
		if school := current.User.SchoolKey(); school != "" {
			out["schoolId"] = school
		}
	}
	return out
}

func knownFields(descriptors []model.FieldDescriptor) map[string]struct{} {
	out := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		out[d.Name] = struct{}{}
	}
	return out
}

func (e *Engine) sanitizeLocked(name string, value any) any {
	text, ok := value.(string)
	if !ok || e.cfg.sanitizer == nil {
		return value
	}
	for _, d := range e.descriptors {
		if d.Name == name && (d.Kind == model.KindText || d.Kind == model.KindTextArea) {
			return e.cfg.sanitizer.Sanitize(text)
		}
	}
	return value
}

func (e *Engine) alive(gen uint64) bool {
	return !e.closed && gen == e.generation
}

func (e *Engine) emit(evt Event) {
	for _, fn := range e.cfg.listeners {
		fn(evt)
	}
	e.subMu.Lock()
	subs := make([]func(Event), 0, len(e.subscribers))
	for _, sub := range e.subscribers {
		subs = append(subs, sub.fn)
	}
	e.subMu.Unlock()
	for _, fn := range subs {
		fn(evt)
	}
}
