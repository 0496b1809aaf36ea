// Package model defines the declarative form schema consumed by the form
// engine. A form is an ordered list of FieldDescriptor values; each select
// descriptor carries an OptionSource that is either StaticOptions (inline
// {label, value} pairs) or RemoteOptions (a URL template fetched through the
// engine's data source). Values, OptionSet and ValidationErrors are the three
// maps the engine keeps per mounted form. Stringify and IsEmpty define the
// comparison and emptiness semantics shared by the engine and the cascading
// selector, so numeric and string identifiers compare equal.
package model
