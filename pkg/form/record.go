package form

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/metrics"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/validation"
)

// idFields are coerced to strings on hydration so selects compare them
// against option values consistently.
var idFields = []string{"classId", "divisionId", "schoolId", "rollNo"}

// RecordURLs returns the two addresses tried when fetching an entity: the
// path form first, then the query form.
func RecordURLs(fetch, id string) (string, string) {
	base := strings.TrimRight(fetch, "/")
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + "/" + url.PathEscape(id), base + sep + "id=" + url.QueryEscape(id)
}

func (e *Engine) loadRecord(ctx context.Context) {
	defer e.wg.Done()
	done := e.cfg.metrics.FetchStarted()
	defer done()

	e.mu.Lock()
	id := e.identifier
	e.mu.Unlock()

	record, err := e.fetchRecord(ctx, id)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.cfg.metrics.ObserveRecordFetch(e.cfg.entity, metrics.OutcomeDiscarded)
		return
	}
	e.loading = false
	if err != nil {
		recErr := &RecordError{Entity: e.cfg.entity, ID: id, Err: err}
		e.recordErr = recErr
		e.mu.Unlock()

		e.cfg.metrics.ObserveRecordFetch(e.cfg.entity, metrics.OutcomeFailure)
		e.logger.Error().Err(err).Str("id", id).Msg("record fetch failed")
		e.cfg.notifier.Failure(fmt.Sprintf("Failed to fetch %s details.", e.cfg.entity))
		e.reportError(recErr)
		e.emit(Event{Kind: EventHydrated})
		return
	}
	hydrated := model.DefaultValues(e.descriptors)
	for k, v := range NormalizeRecord(record, e.descriptors) {
		hydrated[k] = v
	}
	e.values = hydrated
	e.recordErr = nil
	e.mu.Unlock()

	e.cfg.metrics.ObserveRecordFetch(e.cfg.entity, metrics.OutcomeSuccess)
	e.logger.Debug().Str("id", id).Int("fields", len(record)).Msg("record hydrated")
	e.emit(Event{Kind: EventHydrated})
}

// fetchRecord tries {fetch}/{id}, then {fetch}?id={id}. When both fail the
// first error is reported.
func (e *Engine) fetchRecord(ctx context.Context, id string) (map[string]any, error) {
	if e.cfg.source == nil {
		return nil, fmt.Errorf("form: no data source configured")
	}
	byPath, byQuery := RecordURLs(e.cfg.endpoints.Fetch, id)
	payload, err := e.cfg.source.Get(ctx, byPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Debug().Err(err).Str("url", byPath).Msg("record path fetch failed, trying query form")
		var fallbackErr error
		payload, fallbackErr = e.cfg.source.Get(ctx, byQuery)
		if fallbackErr != nil {
			return nil, err
		}
	}
	record, _ := datasource.Unwrap(payload).(map[string]any)
	if record == nil {
		record = map[string]any{}
	}
	return record, nil
}

// NormalizeRecord maps a fetched entity onto form values: reference ids
// become strings, dates become YYYY-MM-DD (dob falls back to date_of_birth)
// and password fields are blanked.
func NormalizeRecord(raw map[string]any, descriptors []model.FieldDescriptor) model.Values {
	out := make(model.Values, len(raw)+2)
	for k, v := range raw {
		out[k] = v
	}
	for _, key := range idFields {
		if _, ok := raw[key]; ok || hasField(descriptors, key) {
			out[key] = idString(raw[key])
		}
	}

	dob := raw["dob"]
	if model.IsEmpty(dob) {
		dob = raw["date_of_birth"]
	}
	if _, ok := raw["dob"]; ok || !model.IsEmpty(dob) || hasField(descriptors, "dob") {
		out["dob"] = model.NormalizeDate(dob)
	}

	for _, d := range descriptors {
		switch {
		case validation.IsPasswordField(d):
			out[d.Name] = ""
		case d.Kind == model.KindDate && d.Name != "dob":
			out[d.Name] = model.NormalizeDate(raw[d.Name])
		}
	}
	return out
}

func idString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case float64:
		if v == 0 {
			return ""
		}
	case int:
		if v == 0 {
			return ""
		}
	case bool:
		if !v {
			return ""
		}
	}
	return model.Stringify(value)
}

func hasField(descriptors []model.FieldDescriptor, name string) bool {
	for _, d := range descriptors {
		if d.Name == name {
			return true
		}
	}
	return false
}
