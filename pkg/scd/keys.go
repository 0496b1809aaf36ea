// Package scd resolves the linked School/Class/Division selection used by
// student and teacher forms: teacher pinning, allocation scoping, school
// scoping and display labels, plus a provider for the reference collections.
package scd

import (
	"github.com/goliatone/go-scmform/pkg/model"
)

// Field names of the selection inside the form values.
const (
	FieldSchool   = "schoolId"
	FieldClass    = "classId"
	FieldDivision = "divisionId"
)

// Candidate key lists, tried in order. Reference data comes from sources
// that disagree on field naming.
var (
	SchoolIDKeys       = []string{"id", "schoolbranchId", "schoolId"}
	ClassIDKeys        = []string{"id", "schoolClassId", "classId"}
	DivisionIDKeys     = []string{"id", "divisionId"}
	ClassSchoolKeys    = []string{"schoolbranchId", "schoolBranchId", "schoolId", "branchId"}
	DivisionSchoolKeys = []string{"schoolId", "schoolBranchId", "schoolbranchId"}
	labelKeys          = []string{"name", "label", "title"}
)

// Entity is one reference item as decoded from the backend.
type Entity map[string]any

// FirstKey returns the first non-nil value found under keys.
func FirstKey(item map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if value, ok := item[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

// KeyString is FirstKey rendered as a string; "" when no key is present.
func KeyString(item map[string]any, keys []string) string {
	value, ok := FirstKey(item, keys)
	if !ok {
		return ""
	}
	return model.Stringify(value)
}

// SchoolID returns the identifier of a school entity.
func SchoolID(e Entity) string { return KeyString(e, SchoolIDKeys) }

// ClassID returns the identifier of a class entity.
func ClassID(e Entity) string { return KeyString(e, ClassIDKeys) }

// DivisionID returns the identifier of a division entity.
func DivisionID(e Entity) string { return KeyString(e, DivisionIDKeys) }

// Name returns the display name of an entity.
func Name(e Entity) string { return KeyString(e, labelKeys) }
