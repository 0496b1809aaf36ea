package entities

import (
	"github.com/goliatone/go-scmform/pkg/form"
	"github.com/goliatone/go-scmform/pkg/schema"
	"github.com/goliatone/go-scmform/pkg/session"
)

// Builtin returns a store holding the built-in definitions.
func Builtin() (*schema.Store, error) {
	return schema.NewStore(Student(), StudentStrict(), TeacherDefinition())
}

// Transform returns the submit transform registered for a form id, nil when
// the form posts its values unchanged.
func Transform(id string, store *session.Store) form.Transform {
	switch id {
	case StudentID:
		return StudentTransform
	case StudentStrictID:
		return StrictStudentTransform(store)
	default:
		return nil
	}
}
