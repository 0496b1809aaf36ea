package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/schema"
)

// Transformer mutates a definition before its engine is built.
type Transformer interface {
	Transform(ctx context.Context, def *schema.Definition) error
}

// TransformerFunc adapts plain functions to the Transformer interface.
type TransformerFunc func(ctx context.Context, def *schema.Definition) error

// Transform executes the wrapped function when non-nil.
func (fn TransformerFunc) Transform(ctx context.Context, def *schema.Definition) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, def)
}

// PresetTransformer applies declarative per-form overrides read from JSON or
// YAML:
//
//	forms:
//	  student:
//	    successTarget: Dashboard
//	    fields:
//	      address: {label: Home Address, required: true}
//	      password: {hidden: true}
//
// Forms without an entry pass through unchanged.
type PresetTransformer struct {
	forms map[string]formPatch
}

type presetDocument struct {
	Forms map[string]formPatch `yaml:"forms"`
}

type formPatch struct {
	Entity        string                `yaml:"entity"`
	SuccessTarget *string               `yaml:"successTarget"`
	Fields        map[string]fieldPatch `yaml:"fields"`
}

type fieldPatch struct {
	Label    string       `yaml:"label"`
	Required *bool        `yaml:"required"`
	Disabled *bool        `yaml:"disabled"`
	Hidden   bool         `yaml:"hidden"`
	Rules    *model.Rules `yaml:"rules"`
}

// NewPresetTransformer parses raw preset bytes.
func NewPresetTransformer(data []byte) (*PresetTransformer, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("preset transformer: document is empty")
	}
	var doc presetDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("preset transformer: parse document: %w", err)
	}
	return &PresetTransformer{forms: doc.Forms}, nil
}

// NewPresetTransformerFromFS loads a preset from fsys.
func NewPresetTransformerFromFS(fsys fs.FS, path string) (*PresetTransformer, error) {
	if fsys == nil {
		return nil, errors.New("preset transformer: filesystem is nil")
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("preset transformer: path is required")
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("preset transformer: read %s: %w", path, err)
	}
	return NewPresetTransformer(data)
}

// Transform applies the patch registered for def.ID. Patching a field the
// definition does not have is an error.
func (t *PresetTransformer) Transform(ctx context.Context, def *schema.Definition) error {
	if def == nil {
		return errors.New("preset transformer: definition is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	patch, ok := t.forms[def.ID]
	if !ok {
		return nil
	}
	if entity := strings.TrimSpace(patch.Entity); entity != "" {
		def.Entity = entity
	}
	if patch.SuccessTarget != nil {
		def.SuccessTarget = strings.TrimSpace(*patch.SuccessTarget)
	}

	fields := append([]model.FieldDescriptor(nil), def.Fields...)
	for name, fp := range patch.Fields {
		idx := indexOf(fields, name)
		if idx < 0 {
			return fmt.Errorf("preset transformer: field %q not found in %q", name, def.ID)
		}
		applyFieldPatch(&fields[idx], fp)
	}
	kept := fields[:0]
	for _, d := range fields {
		if fp, ok := patch.Fields[d.Name]; ok && fp.Hidden {
			continue
		}
		kept = append(kept, d)
	}
	def.Fields = kept
	return model.ValidateDescriptors(def.Fields)
}

func applyFieldPatch(d *model.FieldDescriptor, patch fieldPatch) {
	if label := strings.TrimSpace(patch.Label); label != "" {
		d.Label = label
	}
	if patch.Required != nil {
		d.Required = *patch.Required
	}
	if patch.Disabled != nil {
		d.Disabled = *patch.Disabled
	}
	if patch.Rules != nil {
		d.Rules = *patch.Rules
	}
}

func indexOf(fields []model.FieldDescriptor, name string) int {
	for i, d := range fields {
		if d.Name == name {
			return i
		}
	}
	return -1
}
