// Package tui drives a form engine from the terminal: it prompts every
// descriptor, re-prompts the fields that fail validation and submits.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-scmform/pkg/form"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/scd"
	"github.com/goliatone/go-scmform/pkg/validation"
)

const skipLabel = "(none)"

// Renderer prompts a mounted form.Engine. It also implements form.Notifier
// and form.Navigator so engine messages land on the same terminal.
type Renderer struct {
	driver       PromptDriver
	outputFormat OutputFormat
	maxAttempts  int
	logger       zerolog.Logger
	theme        Theme
}

var (
	_ form.Notifier  = (*Renderer)(nil)
	_ form.Navigator = (*Renderer)(nil)
)

// New constructs a renderer with defaults (survey driver, JSON output, three
// attempts).
func New(options ...Option) *Renderer {
	r := &Renderer{
		driver:       newSurveyDriver(),
		outputFormat: OutputFormatJSON,
		maxAttempts:  3,
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Run waits for the engine's background fetches, prompts the selector (when
// given) and every enabled descriptor, then submits. A failed record fetch
// has already been reported through the engine's notifier; the form is
// still prompted with its default values. Fields rejected by
// validation or by the server are prompted again, up to the configured
// number of attempts.
func (r *Renderer) Run(ctx context.Context, engine *form.Engine, selector *scd.Selector) (any, error) {
	if ctx == nil {
		return nil, errors.New("tui: context is required")
	}
	if engine == nil {
		return nil, errors.New("tui: engine is required")
	}
	if err := engine.Wait(ctx); err != nil {
		return nil, err
	}
	if err := engine.RecordErr(); err != nil {
		r.logger.Warn().Err(err).Msg("record unavailable, prompting the default form")
	}

	title := "New " + engine.Entity()
	if engine.Mode() == form.ModeEdit {
		title = fmt.Sprintf("Edit %s %s", engine.Entity(), engine.Identifier())
	}
	r.info(ctx, title)

	var pending map[string]struct{}
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if selector != nil && touchesSelector(pending) {
			if err := r.promptSelector(ctx, selector); err != nil {
				return nil, err
			}
		}
		for _, d := range engine.Descriptors() {
			if d.Disabled || !wanted(pending, d.Name) {
				continue
			}
			if err := r.promptField(ctx, engine, d); err != nil {
				return nil, err
			}
		}

		submit, err := r.driver.Confirm(ctx, ConfirmConfig{Message: "Submit?", Default: true})
		if err != nil {
			return nil, err
		}
		if !submit {
			engine.Cancel()
			return nil, ErrCancelled
		}

		response, err := engine.Submit(ctx)
		if err == nil {
			return response, nil
		}
		var submitErr *form.SubmitError
		if !errors.Is(err, form.ErrInvalid) && !errors.As(err, &submitErr) {
			return nil, err
		}
		errs := engine.Errors()
		if len(errs) == 0 {
			return nil, err
		}
		r.logger.Debug().Int("attempt", attempt).Int("errors", len(errs)).Msg("re-prompting invalid fields")
		pending = make(map[string]struct{}, len(errs))
		for _, name := range sortedKeys(errs) {
			pending[name] = struct{}{}
			r.failure(ctx, errs[name])
		}
	}
	return nil, ErrTooManyAttempts
}

func (r *Renderer) promptField(ctx context.Context, engine *form.Engine, d model.FieldDescriptor) error {
	if msg, ok := engine.Errors()[d.Name]; ok {
		r.failure(ctx, msg)
	}
	label := d.DisplayLabel()
	if d.Required {
		label += " *"
	}

	if d.Kind == model.KindSelect {
		return r.promptSelect(ctx, engine, d, label)
	}

	current := model.Stringify(engine.Value(d.Name))
	edit := engine.Mode() == form.ModeEdit
	validator := fieldValidator(d, edit)

	var (
		answer string
		err    error
	)
	switch d.Kind {
	case model.KindPassword:
		help := ""
		if edit {
			help = "Leave empty to keep the current password."
		}
		answer, err = r.driver.Password(ctx, InputConfig{Message: label, Help: help, Validator: validator})
	case model.KindTextArea:
		answer, err = r.driver.TextArea(ctx, TextAreaConfig{Message: label, Default: current})
	default:
		help := ""
		if d.Kind == model.KindDate {
			help = "YYYY-MM-DD"
		}
		answer, err = r.driver.Input(ctx, InputConfig{Message: label, Default: current, Help: help, Validator: validator})
	}
	if err != nil {
		return err
	}
	return engine.SetValue(d.Name, strings.TrimSpace(answer))
}

func (r *Renderer) promptSelect(ctx context.Context, engine *form.Engine, d model.FieldDescriptor, label string) error {
	opts := engine.FieldOptions(d.Name)
	if len(opts) == 0 {
		r.info(ctx, fmt.Sprintf("No options available for %s.", d.DisplayLabel()))
		return nil
	}

	labels := make([]string, 0, len(opts)+1)
	offset := 0
	if !d.Required {
		labels = append(labels, skipLabel)
		offset = 1
	}
	current := model.Stringify(engine.Value(d.Name))
	defaultIdx := -1
	for i, opt := range opts {
		labels = append(labels, opt.Label)
		if current != "" && model.Stringify(opt.Value) == current {
			defaultIdx = i + offset
		}
	}

	idx, err := r.driver.Select(ctx, SelectConfig{
		Message:      label,
		Options:      labels,
		DefaultIndex: defaultIdx,
		Help:         form.SelectLabel(d, engine.Value(d.Name), opts),
	})
	if err != nil {
		return err
	}
	if idx < offset || idx >= len(labels) {
		return engine.SetValue(d.Name, nil)
	}
	return engine.SetValue(d.Name, opts[idx-offset].Value)
}

// fieldValidator checks one answer with the same rules Submit applies.
func fieldValidator(d model.FieldDescriptor, edit bool) func(string) error {
	return func(answer string) error {
		errs := validation.Validate(
			[]model.FieldDescriptor{d},
			model.Values{d.Name: strings.TrimSpace(answer)},
			validation.Context{Edit: edit},
		)
		if msg, ok := errs[d.Name]; ok {
			return errors.New(msg)
		}
		return nil
	}
}

// Print writes a submit response in the configured format.
func (r *Renderer) Print(ctx context.Context, response any) error {
	switch r.outputFormat {
	case OutputFormatPrettyText:
		var b strings.Builder
		writePretty(&b, "", response)
		return r.driver.Info(ctx, strings.TrimRight(b.String(), "\n"))
	default:
		raw, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return fmt.Errorf("tui: encode response: %w", err)
		}
		return r.driver.Info(ctx, string(raw))
	}
}

// Success implements form.Notifier.
func (r *Renderer) Success(message string) {
	r.info(context.Background(), message)
}

// Failure implements form.Notifier.
func (r *Renderer) Failure(message string) {
	r.failure(context.Background(), message)
}

// Navigate implements form.Navigator; a terminal session has no screen
// stack, so the target is only reported.
func (r *Renderer) Navigate(target string) {
	r.logger.Info().Str("target", target).Msg("navigate")
}

// Back implements form.Navigator.
func (r *Renderer) Back() {
	r.logger.Info().Msg("navigate back")
}

func (r *Renderer) info(ctx context.Context, msg string) {
	if err := r.driver.Info(ctx, r.theme.InfoPrefix+msg); err != nil {
		r.logger.Warn().Err(err).Msg("write message")
	}
}

func (r *Renderer) failure(ctx context.Context, msg string) {
	if err := r.driver.Info(ctx, r.theme.ErrorPrefix+msg); err != nil {
		r.logger.Warn().Err(err).Msg("write message")
	}
}

func wanted(pending map[string]struct{}, name string) bool {
	if pending == nil {
		return true
	}
	_, ok := pending[name]
	return ok
}

func touchesSelector(pending map[string]struct{}) bool {
	return wanted(pending, scd.FieldSchool) || wanted(pending, scd.FieldClass) || wanted(pending, scd.FieldDivision)
}

func sortedKeys(errs model.ValidationErrors) []string {
	keys := make([]string, 0, len(errs))
	for key := range errs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func writePretty(b *strings.Builder, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			next := key
			if prefix != "" {
				next = prefix + "." + key
			}
			writePretty(b, next, v[key])
		}
	case []any:
		for idx, item := range v {
			writePretty(b, fmt.Sprintf("%s[%d]", prefix, idx), item)
		}
	default:
		if prefix == "" {
			fmt.Fprintf(b, "%v\n", v)
			return
		}
		fmt.Fprintf(b, "%s=%v\n", prefix, v)
	}
}
