// Package openapi derives form descriptors from the request body of an
// OpenAPI 3 operation.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/schema"
)

// ErrOperationNotFound is returned when the requested operation id is not in
// the document.
var ErrOperationNotFound = errors.New("openapi: operation not found")

// Operation is one document operation reduced to what a form needs.
type Operation struct {
	ID      string
	Method  string
	Path    string
	Summary string
	Fields  []model.FieldDescriptor
}

// Parse loads raw (JSON or YAML) and converts every operation that has a
// request body. Operations without an operationId are keyed "method:path".
func Parse(ctx context.Context, raw []byte) (map[string]Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errors.New("openapi: document payload is empty")
	}

	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("openapi: validate: %w", err)
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, errors.New("openapi: document does not contain any paths")
	}

	operations := make(map[string]Operation)
	for path, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil || op.RequestBody == nil {
				continue
			}
			converted, err := convertOperation(method, path, op)
			if err != nil {
				return nil, err
			}
			operations[converted.ID] = converted
		}
	}
	return operations, nil
}

// ParseFile reads and parses a document from disk.
func ParseFile(ctx context.Context, path string) (map[string]Operation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("openapi: read %s: %w", path, err)
	}
	return Parse(ctx, raw)
}

// Descriptors returns the descriptors of one operation.
func Descriptors(ctx context.Context, raw []byte, operationID string) ([]model.FieldDescriptor, error) {
	operations, err := Parse(ctx, raw)
	if err != nil {
		return nil, err
	}
	op, ok := operations[strings.TrimSpace(operationID)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOperationNotFound, operationID)
	}
	return op.Fields, nil
}

// Definition turns the operation into a form definition. POST operations
// become the save endpoint; PUT and PATCH become the update endpoint with a
// trailing "/{param}" segment removed. An empty entity falls back to the
// humanized operation id.
func (op Operation) Definition(entity string) schema.Definition {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		entity = model.Humanize(op.ID)
	}
	def := schema.Definition{
		ID:     op.ID,
		Entity: entity,
		Fields: append([]model.FieldDescriptor(nil), op.Fields...),
		Source: "openapi:" + op.ID,
	}
	switch op.Method {
	case "POST":
		def.SaveURL = op.Path
	case "PUT", "PATCH":
		def.UpdateURL = trimParam(op.Path)
	}
	return def
}

func trimParam(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	last := path[idx+1:]
	if strings.HasPrefix(last, "{") && strings.HasSuffix(last, "}") {
		return path[:idx]
	}
	return path
}

func convertOperation(method, path string, op *openapi3.Operation) (Operation, error) {
	id := strings.TrimSpace(op.OperationID)
	if id == "" {
		id = strings.ToLower(method) + ":" + path
	}
	out := Operation{
		ID:      id,
		Method:  strings.ToUpper(method),
		Path:    path,
		Summary: op.Summary,
	}
	schema := requestSchema(op.RequestBody)
	if schema == nil {
		return out, nil
	}
	fields, err := Fields(schema)
	if err != nil {
		return Operation{}, fmt.Errorf("openapi: operation %q: %w", id, err)
	}
	out.Fields = fields
	return out, nil
}

func requestSchema(body *openapi3.RequestBodyRef) *openapi3.Schema {
	if body == nil || body.Value == nil {
		return nil
	}
	content := body.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	for _, mt := range content {
		if mt != nil && mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	return nil
}
