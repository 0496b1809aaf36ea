package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-scmform/pkg/model"
)

// Document wraps a raw definition file and its origin.
type Document struct {
	source Source
	raw    []byte
}

// NewDocument constructs a Document wrapper while validating the inputs.
func NewDocument(src Source, raw []byte) (Document, error) {
	if src == nil {
		return Document{}, errors.New("schema: source is required")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Document{}, fmt.Errorf("schema: file %s is empty", src.Location())
	}
	clone := append([]byte(nil), raw...)
	return Document{source: src, raw: clone}, nil
}

// Source returns the origin metadata for the document.
func (d Document) Source() Source {
	return d.source
}

// Location returns the string identifier for the origin.
func (d Document) Location() string {
	if d.source == nil {
		return ""
	}
	return d.source.Location()
}

// Parse decodes the document into definitions keyed by form id.
func (d Document) Parse() (map[string]Definition, error) {
	var file documentFile
	if err := json.Unmarshal(d.raw, &file); err != nil {
		if yamlErr := yaml.Unmarshal(d.raw, &file); yamlErr != nil {
			return nil, fmt.Errorf("schema: parse %s: invalid JSON or YAML: %w", d.Location(), yamlErr)
		}
	}

	out := make(map[string]Definition, len(file.Forms))
	for rawID, form := range file.Forms {
		id := strings.TrimSpace(rawID)
		if id == "" {
			return nil, fmt.Errorf("schema: file %s defines an empty form id", d.Location())
		}
		def, err := form.definition(id, d.Location())
		if err != nil {
			return nil, err
		}
		out[id] = def
	}
	return out, nil
}

type documentFile struct {
	Forms map[string]formFile `json:"forms" yaml:"forms"`
}

type formFile struct {
	Entity        string      `json:"entity" yaml:"entity"`
	FetchURL      string      `json:"fetchUrl" yaml:"fetchUrl"`
	SaveURL       string      `json:"saveUrl" yaml:"saveUrl"`
	UpdateURL     string      `json:"updateUrl" yaml:"updateUrl"`
	SuccessTarget string      `json:"successTarget" yaml:"successTarget"`
	Selector      bool        `json:"selector" yaml:"selector"`
	Fields        []fieldFile `json:"fields" yaml:"fields"`
}

type fieldFile struct {
	Name          string               `json:"name" yaml:"name"`
	Label         string               `json:"label" yaml:"label"`
	Kind          string               `json:"kind" yaml:"kind"`
	Required      bool                 `json:"required" yaml:"required"`
	Disabled      bool                 `json:"disabled" yaml:"disabled"`
	Options       []model.Option       `json:"options" yaml:"options"`
	OptionsSource *model.RemoteOptions `json:"optionsSource" yaml:"optionsSource"`
	Rules         model.Rules          `json:"rules" yaml:"rules"`
}

func (f formFile) definition(id, location string) (Definition, error) {
	def := Definition{
		ID:            id,
		Entity:        strings.TrimSpace(f.Entity),
		FetchURL:      strings.TrimSpace(f.FetchURL),
		SaveURL:       strings.TrimSpace(f.SaveURL),
		UpdateURL:     strings.TrimSpace(f.UpdateURL),
		SuccessTarget: strings.TrimSpace(f.SuccessTarget),
		Selector:      f.Selector,
		Source:        location,
		Fields:        make([]model.FieldDescriptor, 0, len(f.Fields)),
	}
	if def.Entity == "" {
		def.Entity = id
	}
	for _, field := range f.Fields {
		d, err := field.descriptor()
		if err != nil {
			return Definition{}, fmt.Errorf("schema: form %q (file %s): %w", id, location, err)
		}
		def.Fields = append(def.Fields, d)
	}
	if err := model.ValidateDescriptors(def.Fields); err != nil {
		return Definition{}, fmt.Errorf("schema: form %q (file %s): %w", id, location, err)
	}
	return def, nil
}

func (f fieldFile) descriptor() (model.FieldDescriptor, error) {
	kind := model.FieldKind(strings.ToLower(strings.TrimSpace(f.Kind)))
	if kind == "" {
		kind = model.KindText
	}
	d := model.FieldDescriptor{
		Name:     strings.TrimSpace(f.Name),
		Label:    strings.TrimSpace(f.Label),
		Kind:     kind,
		Required: f.Required,
		Disabled: f.Disabled,
		Rules:    f.Rules,
	}
	hasStatic := len(f.Options) > 0
	hasRemote := f.OptionsSource != nil && strings.TrimSpace(f.OptionsSource.URL) != ""
	switch {
	case hasStatic && hasRemote:
		return d, fmt.Errorf("field %q declares both options and optionsSource", d.Name)
	case (hasStatic || hasRemote) && kind != model.KindSelect:
		return d, fmt.Errorf("field %q of kind %q cannot declare options", d.Name, kind)
	case hasStatic:
		d.Options = model.StaticOptions(append([]model.Option(nil), f.Options...))
	case hasRemote:
		d.Options = *f.OptionsSource
	}
	return d, nil
}
