package form

import (
	"fmt"

	"github.com/goliatone/go-scmform/pkg/model"
)

// DisplayValue returns the text a host shows for a field. Select fields
// resolve the stored value (a scalar or a {id|value, name} reference)
// against the loaded options, then fall back to the reference name, the raw
// value and finally the "Select <Label>" placeholder.
func (e *Engine) DisplayValue(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var descriptor *model.FieldDescriptor
	for i := range e.descriptors {
		if e.descriptors[i].Name == name {
			descriptor = &e.descriptors[i]
			break
		}
	}
	value := e.values[name]
	if descriptor == nil || descriptor.Kind != model.KindSelect {
		return model.Stringify(value)
	}
	return SelectLabel(*descriptor, value, e.options[name])
}

// SelectLabel implements DisplayValue for one select field.
func SelectLabel(d model.FieldDescriptor, value any, options []model.Option) string {
	key := value
	if ref, ok := value.(map[string]any); ok {
		if id, found := model.ReferenceID(ref); found {
			key = id
		}
	}
	if want := model.Stringify(key); want != "" {
		for _, opt := range options {
			if model.Stringify(opt.Value) == want {
				return opt.Label
			}
		}
	}
	if ref, ok := value.(map[string]any); ok {
		if label := model.Stringify(ref["name"]); label != "" {
			return label
		}
	}
	if !model.IsEmpty(value) {
		return model.Stringify(key)
	}
	return fmt.Sprintf("Select %s", d.DisplayLabel())
}
