package openapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-scmform/pkg/model"
)

// Vendor extensions understood on properties and the body schema.
const (
	extLabel         = "x-label"
	extKind          = "x-kind"
	extOptionsSource = "x-options-source"
	extNotFuture     = "x-not-future"
	extPatternError  = "x-pattern-error"
	extFieldOrder    = "x-field-order"
)

// Fields converts the top-level properties of an object schema into
// descriptors. Nested objects and arrays are skipped; forms are flat.
// Fields listed in x-field-order come first, the rest follow by name.
func Fields(schema *openapi3.Schema) ([]model.FieldDescriptor, error) {
	if schema == nil || len(schema.Properties) == 0 {
		return nil, nil
	}
	required := make(map[string]struct{}, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = struct{}{}
	}

	out := make([]model.FieldDescriptor, 0, len(schema.Properties))
	for _, name := range fieldOrder(schema) {
		ref := schema.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		d, ok, err := descriptor(name, ref.Value)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		_, d.Required = required[name]
		out = append(out, d)
	}
	return out, nil
}

func fieldOrder(schema *openapi3.Schema) []string {
	seen := make(map[string]struct{}, len(schema.Properties))
	var ordered []string
	if list, ok := schema.Extensions[extFieldOrder].([]any); ok {
		for _, item := range list {
			name, _ := item.(string)
			if _, exists := schema.Properties[name]; !exists {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			ordered = append(ordered, name)
		}
	}
	var rest []string
	for name := range schema.Properties {
		if _, done := seen[name]; !done {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

func descriptor(name string, s *openapi3.Schema) (model.FieldDescriptor, bool, error) {
	typ := firstType(s.Type)
	source, remote, err := optionsSource(s.Extensions[extOptionsSource])
	if err != nil {
		return model.FieldDescriptor{}, false, fmt.Errorf("field %q: %w", name, err)
	}
	if !remote && (typ == "object" || typ == "array") {
		return model.FieldDescriptor{}, false, nil
	}

	d := model.FieldDescriptor{
		Name:     name,
		Label:    label(name, s),
		Kind:     kindFor(typ, s),
		Disabled: s.ReadOnly,
	}

	if remote {
		d.Kind = model.KindSelect
		d.Options = source
	} else if len(s.Enum) > 0 {
		d.Kind = model.KindSelect
		opts := make(model.StaticOptions, 0, len(s.Enum))
		for _, value := range s.Enum {
			opts = append(opts, model.Option{Label: model.Humanize(model.Stringify(value)), Value: value})
		}
		d.Options = opts
	} else if typ == "boolean" {
		d.Kind = model.KindSelect
		d.Options = model.StaticOptions{{Label: "Yes", Value: true}, {Label: "No", Value: false}}
	}

	if kind, ok := s.Extensions[extKind].(string); ok && strings.TrimSpace(kind) != "" {
		override := model.FieldKind(strings.ToLower(strings.TrimSpace(kind)))
		if !override.Valid() {
			return d, false, fmt.Errorf("field %q: unsupported %s %q", name, extKind, kind)
		}
		d.Kind = override
	}

	if d.Kind != model.KindSelect {
		d.Rules.MinLength = int(s.MinLength)
		if s.MaxLength != nil {
			d.Rules.MaxLength = int(*s.MaxLength)
		}
		d.Rules.Pattern = s.Pattern
		d.Rules.PatternError, _ = s.Extensions[extPatternError].(string)
		d.Rules.NotFuture, _ = s.Extensions[extNotFuture].(bool)
	}
	return d, true, nil
}

func label(name string, s *openapi3.Schema) string {
	if text, ok := s.Extensions[extLabel].(string); ok && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	if title := strings.TrimSpace(s.Title); title != "" {
		return title
	}
	return model.Humanize(name)
}

func kindFor(typ string, s *openapi3.Schema) model.FieldKind {
	switch typ {
	case "integer", "number":
		return model.KindNumber
	}
	switch strings.ToLower(s.Format) {
	case "email":
		return model.KindEmail
	case "password":
		return model.KindPassword
	case "date", "date-time":
		return model.KindDate
	case "tel", "phone":
		return model.KindTel
	case "textarea":
		return model.KindTextArea
	}
	return model.KindText
}

func optionsSource(raw any) (model.RemoteOptions, bool, error) {
	if raw == nil {
		return model.RemoteOptions{}, false, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return model.RemoteOptions{}, false, fmt.Errorf("%s must be an object", extOptionsSource)
	}
	src := model.RemoteOptions{
		URL:         stringField(obj, "url"),
		Method:      stringField(obj, "method"),
		ResultsPath: stringField(obj, "resultsPath"),
		LabelField:  stringField(obj, "labelField"),
		ValueField:  stringField(obj, "valueField"),
	}
	if src.URL == "" {
		return model.RemoteOptions{}, false, fmt.Errorf("%s requires a url", extOptionsSource)
	}
	if query, ok := obj["query"].(map[string]any); ok && len(query) > 0 {
		src.Query = make(map[string]string, len(query))
		for key, value := range query {
			src.Query[key] = model.Stringify(value)
		}
	}
	return src, true, nil
}

func stringField(obj map[string]any, key string) string {
	value, _ := obj[key].(string)
	return strings.TrimSpace(value)
}

func firstType(types *openapi3.Types) string {
	if types == nil {
		return ""
	}
	values := types.Slice()
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
