// Package scmform is the entry point of the school management form engine.
// It re-exports the orchestrator so hosts can open student and teacher forms
// without importing the sub-packages directly.
package scmform

import (
	"context"

	"github.com/goliatone/go-scmform/pkg/form"
	"github.com/goliatone/go-scmform/pkg/orchestrator"
	"github.com/goliatone/go-scmform/pkg/schema"
)

// Request names the form to open.
type Request = orchestrator.Request

// Session is an opened form with its engine and optional selector.
type Session = orchestrator.Session

// Definition is one form definition.
type Definition = schema.Definition

// Engine is the form state engine.
type Engine = form.Engine

// NewOrchestrator exposes the orchestrator constructor from the top-level
// module.
func NewOrchestrator(options ...orchestrator.Option) *orchestrator.Orchestrator {
	return orchestrator.New(options...)
}

// Open builds an orchestrator from options and opens a single form with it.
// Hosts opening several forms should keep one orchestrator instead, so the
// reference collections are fetched once.
func Open(ctx context.Context, formID, identifier string, options ...orchestrator.Option) (*Session, error) {
	return orchestrator.New(options...).Open(ctx, orchestrator.Request{
		FormID:     formID,
		Identifier: identifier,
	})
}
