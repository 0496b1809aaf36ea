// Package orchestrator wires form definitions, the data source, the session
// and the reference provider into mounted form engines, so hosts open a form
// with a single call.
package orchestrator
