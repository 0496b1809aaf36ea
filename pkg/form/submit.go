package form

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/metrics"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/validation"
)

// Submit validates the form and, when valid, sends it: POST to the save URL
// in create mode, PUT to {update}/{id} in edit mode. While the request is in
// flight the form is frozen and further submits return ErrBusy.
//
// On success the OnSuccess callback runs with the response and the engine
// navigates to the success target, or back when none is set. Once the server
// has answered, the response is returned even if those callbacks panic. On
// failure the returned *SubmitError carries the user-facing message and
// server field errors are merged into Errors.
func (e *Engine) Submit(ctx context.Context) (response any, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return nil, ErrClosed
	case !e.mounted:
		e.mu.Unlock()
		return nil, ErrNotMounted
	case e.busy:
		e.mu.Unlock()
		e.cfg.metrics.ObserveSubmit(e.cfg.entity, string(e.Mode()), metrics.OutcomeBusy, 0)
		return nil, ErrBusy
	}
	mode := e.modeLocked()
	errs := e.validateLocked()
	e.errors = errs
	if len(errs) > 0 {
		e.mu.Unlock()
		e.cfg.metrics.ObserveSubmit(e.cfg.entity, string(mode), metrics.OutcomeInvalid, 0)
		e.logger.Debug().Int("errors", len(errs)).Msg("submit blocked by validation")
		e.emit(Event{Kind: EventErrors})
		return nil, ErrInvalid
	}
	e.busy = true
	values := e.values.Clone()
	id := e.identifier
	descriptors := e.descriptors
	e.mu.Unlock()
	e.emit(Event{Kind: EventBusy})

	started := time.Now()
	response, err = e.dispatch(ctx, mode, id, values, descriptors)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	e.cfg.metrics.ObserveSubmit(e.cfg.entity, string(mode), outcome, time.Since(started).Seconds())

	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
	e.emit(Event{Kind: EventBusy})

	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("mode", string(mode)).Str("id", id).Msg("form submitted")
	e.settle(mode, response)
	return response, nil
}

// dispatch transforms and sends the values. A panic in the transform or the
// data source becomes a *SubmitError.
func (e *Engine) dispatch(ctx context.Context, mode Mode, id string, values model.Values, descriptors []model.FieldDescriptor) (response any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("submit panicked")
			response = nil
			err = &SubmitError{Message: e.failureMessage(mode), Err: fmt.Errorf("form: panic: %v", r)}
			e.cfg.notifier.Failure(e.failureMessage(mode))
			e.reportError(err)
		}
	}()

	if mode == ModeEdit {
		stripUntypedPassword(values, descriptors)
	}
	var payload any = map[string]any(values)
	if e.cfg.transform != nil {
		payload, err = e.cfg.transform(values, mode == ModeEdit)
		if err != nil {
			return nil, e.submitFailed(mode, err, descriptors)
		}
	}

	if mode == ModeEdit {
		response, err = e.send(ctx, "PUT", UpdateURL(e.cfg.endpoints.Update, id), payload)
	} else {
		response, err = e.send(ctx, "POST", e.cfg.endpoints.Save, payload)
	}
	if err != nil {
		return nil, e.submitFailed(mode, err, descriptors)
	}
	return response, nil
}

// settle notifies success, runs OnSuccess and navigates. The server has
// already accepted the request, so a panic here is only logged.
func (e *Engine) settle(mode Mode, response any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("success callback panicked")
		}
	}()
	e.cfg.notifier.Success(e.successMessage(mode))
	if e.cfg.onSuccess != nil {
		e.cfg.onSuccess(response)
	}
	if e.cfg.successTarget != "" {
		e.cfg.navigator.Navigate(e.cfg.successTarget)
	} else {
		e.cfg.navigator.Back()
	}
}

// UpdateURL returns {update}/{id}.
func UpdateURL(update, id string) string {
	return strings.TrimRight(update, "/") + "/" + url.PathEscape(id)
}

func (e *Engine) send(ctx context.Context, method, target string, payload any) (any, error) {
	if e.cfg.source == nil {
		return nil, fmt.Errorf("form: no data source configured")
	}
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("form: no %s endpoint configured", strings.ToLower(method))
	}
	e.logger.Debug().Str("method", method).Str("url", target).Msg("submitting form")
	if method == "PUT" {
		return e.cfg.source.Put(ctx, target, payload)
	}
	return e.cfg.source.Post(ctx, target, payload)
}

func (e *Engine) submitFailed(mode Mode, err error, descriptors []model.FieldDescriptor) error {
	message := datasource.ServerMessage(err)
	if message == "" {
		message = e.failureMessage(mode)
	}

	mapped := mapFieldErrors(datasource.FieldErrors(err), knownFields(descriptors))
	if len(mapped) > 0 {
		e.mu.Lock()
		for field, msg := range mapped {
			e.errors[field] = msg
		}
		e.mu.Unlock()
		e.emit(Event{Kind: EventErrors})
	}

	e.logger.Error().Err(err).Str("mode", string(mode)).Msg("form submit failed")
	e.cfg.notifier.Failure(message)
	failure := &SubmitError{Message: message, Err: err}
	e.reportError(failure)
	return failure
}

func (e *Engine) reportError(err error) {
	if e.cfg.onError != nil {
		e.cfg.onError(err)
	}
}

func (e *Engine) successMessage(mode Mode) string {
	if mode == ModeEdit {
		return fmt.Sprintf("%s updated successfully!", e.cfg.entity)
	}
	return fmt.Sprintf("%s saved successfully!", e.cfg.entity)
}

func (e *Engine) failureMessage(mode Mode) string {
	if mode == ModeEdit {
		return fmt.Sprintf("Failed to update %s.", e.cfg.entity)
	}
	return fmt.Sprintf("Failed to save %s.", e.cfg.entity)
}

func (e *Engine) validateLocked() model.ValidationErrors {
	return validation.Validate(e.descriptors, e.values, validation.Context{
		Edit: e.modeLocked() == ModeEdit,
		Now:  e.cfg.now(),
	})
}

// stripUntypedPassword drops empty password fields so an update never
// overwrites the stored credential.
func stripUntypedPassword(values model.Values, descriptors []model.FieldDescriptor) {
	for _, d := range descriptors {
		if validation.IsPasswordField(d) && model.IsEmpty(values[d.Name]) {
			delete(values, d.Name)
		}
	}
}
