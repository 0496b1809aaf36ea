package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// FieldKind is the input flavour declared by a descriptor.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindEmail    FieldKind = "email"
	KindPassword FieldKind = "password"
	KindNumber   FieldKind = "number"
	KindTel      FieldKind = "tel"
	KindDate     FieldKind = "date"
	KindSelect   FieldKind = "select"
	KindTextArea FieldKind = "textarea"
)

// Valid reports whether k is one of the supported kinds.
func (k FieldKind) Valid() bool {
	switch k {
	case KindText, KindEmail, KindPassword, KindNumber, KindTel, KindDate, KindSelect, KindTextArea:
		return true
	default:
		return false
	}
}

// Scalar reports whether the kind stores a plain string value. Select fields
// hold an option reference and default to nil instead.
func (k FieldKind) Scalar() bool {
	return k != KindSelect
}

// Option is a single {label, value} entry offered by a select field.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value" yaml:"value"`
}

// OptionSource describes how a select field populates its option list. The
// two implementations are StaticOptions and RemoteOptions; a nil source means
// the field has no options.
type OptionSource interface {
	optionSource()
}

// StaticOptions lists the options inline.
type StaticOptions []Option

func (StaticOptions) optionSource() {}

// RemoteOptions fetches the list from a data source endpoint.
type RemoteOptions struct {
	// URL may contain placeholders such as {accountId}.
	URL string `json:"url" yaml:"url"`
	// Method is "get" or "post". POST requests carry the paging envelope.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	// Query is appended to GET requests.
	Query map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	// ResultsPath, LabelField and ValueField override the default envelope
	// unwrapping and {label,value}/{id,name} detection with dotted paths.
	ResultsPath string `json:"resultsPath,omitempty" yaml:"resultsPath,omitempty"`
	LabelField  string `json:"labelField,omitempty" yaml:"labelField,omitempty"`
	ValueField  string `json:"valueField,omitempty" yaml:"valueField,omitempty"`
}

func (RemoteOptions) optionSource() {}

// IsPost reports whether the source should be fetched with POST.
func (r RemoteOptions) IsPost() bool {
	return strings.EqualFold(strings.TrimSpace(r.Method), "post")
}

// Rules are optional constraints evaluated after the required check, only
// when the field holds a non-empty value.
type Rules struct {
	MinLength    int    `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength    int    `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern      string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	PatternError string `json:"patternError,omitempty" yaml:"patternError,omitempty"`
	NotFuture    bool   `json:"notFuture,omitempty" yaml:"notFuture,omitempty"`
	// Format turns on the kind checks: email shape, digits-only tel and a
	// parseable date.
	Format       bool   `json:"format,omitempty" yaml:"format,omitempty"`
}

// Empty reports whether no rule is configured.
func (r Rules) Empty() bool {
	return r == Rules{}
}

// FieldDescriptor is one static schema entry of a form.
type FieldDescriptor struct {
	Name     string       `json:"name"`
	Label    string       `json:"label"`
	Kind     FieldKind    `json:"kind"`
	Required bool         `json:"required"`
	Disabled bool         `json:"disabled,omitempty"`
	Options  OptionSource `json:"-"`
	Rules    Rules        `json:"rules,omitempty"`
}

// StaticOptionList returns the inline options, if any.
func (d FieldDescriptor) StaticOptionList() []Option {
	if static, ok := d.Options.(StaticOptions); ok {
		return []Option(static)
	}
	return nil
}

// RemoteSource returns the remote option descriptor when the field has one.
func (d FieldDescriptor) RemoteSource() (RemoteOptions, bool) {
	switch src := d.Options.(type) {
	case RemoteOptions:
		return src, strings.TrimSpace(src.URL) != ""
	case *RemoteOptions:
		if src == nil {
			return RemoteOptions{}, false
		}
		return *src, strings.TrimSpace(src.URL) != ""
	default:
		return RemoteOptions{}, false
	}
}

// DisplayLabel falls back to the name when no label is set.
func (d FieldDescriptor) DisplayLabel() string {
	if label := strings.TrimSpace(d.Label); label != "" {
		return label
	}
	return d.Name
}

// Values is the live form state keyed by field name.
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for key, value := range v {
		out[key] = value
	}
	return out
}

// String returns the value stored under name as a string, "" when absent.
func (v Values) String(name string) string {
	return Stringify(v[name])
}

// OptionSet holds the resolved option list of every select field.
type OptionSet map[string][]Option

// ValidationErrors maps field names to a human readable message.
type ValidationErrors map[string]string

var (
	// ErrDuplicateField reports two descriptors sharing a name.
	ErrDuplicateField = errors.New("model: duplicate field name")
	// ErrEmptyFieldName reports a descriptor without a name.
	ErrEmptyFieldName = errors.New("model: field name is required")
)

// ValidateDescriptors checks the structural invariants of a descriptor list:
// every name is set and unique, every kind is known and rule patterns compile.
func ValidateDescriptors(descriptors []FieldDescriptor) error {
	seen := make(map[string]struct{}, len(descriptors))
	for i, d := range descriptors {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return fmt.Errorf("%w (index %d)", ErrEmptyFieldName, i)
		}
		if _, exists := seen[name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateField, name)
		}
		seen[name] = struct{}{}
		if !d.Kind.Valid() {
			return fmt.Errorf("model: field %q has unsupported kind %q", name, d.Kind)
		}
		if d.Rules.Pattern != "" {
			if _, err := regexp.Compile(d.Rules.Pattern); err != nil {
				return fmt.Errorf("model: field %q pattern: %w", name, err)
			}
		}
	}
	return nil
}

// DefaultValues builds the initial state for a descriptor list.
func DefaultValues(descriptors []FieldDescriptor) Values {
	values := make(Values, len(descriptors))
	for _, d := range descriptors {
		if d.Kind.Scalar() {
			values[d.Name] = ""
			continue
		}
		values[d.Name] = nil
	}
	return values
}
