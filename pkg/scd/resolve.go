package scd

import (
	"strings"

	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/session"
)

// Placeholders shown when a stored id matches nothing in its list.
const (
	PlaceholderSchool   = "Select school"
	PlaceholderClass    = "Select class"
	PlaceholderDivision = "Select division"
)

// References are the read-only collections owned by a Provider.
type References struct {
	Schools   []Entity
	Classes   []Entity
	Divisions []Entity
}

// Selection is the school/class/division triple held in the form values.
type Selection struct {
	SchoolID   string
	ClassID    string
	DivisionID string
}

// SelectionFrom reads the triple out of form values.
func SelectionFrom(values model.Values) Selection {
	return Selection{
		SchoolID:   strings.TrimSpace(model.Stringify(values[FieldSchool])),
		ClassID:    strings.TrimSpace(model.Stringify(values[FieldClass])),
		DivisionID: strings.TrimSpace(model.Stringify(values[FieldDivision])),
	}
}

// Result is the outcome of one resolution pass.
type Result struct {
	Classes           []Entity
	Divisions         []Entity
	EffectiveSchoolID string
	// Teacher is true when the acting user is a teacher with an assigned
	// school; the School control is then hidden and not editable.
	Teacher bool
	// NeedsPin is true when the selection's school differs from the
	// teacher's school and must be corrected.
	NeedsPin         bool
	DivisionDisabled bool
	SchoolLabel      string
	ClassLabel       string
	DivisionLabel    string
}

// Resolve computes the filtered lists, the effective school and the display
// labels for sel. It is pure; corrections are applied by Selector.
func Resolve(sel Selection, refs References, user *session.User) Result {
	res := Result{EffectiveSchoolID: sel.SchoolID}

	teacher := user.IsTeacher()
	if teacher {
		if school := strings.TrimSpace(user.SchoolKey()); school != "" {
			res.Teacher = true
			res.EffectiveSchoolID = school
			res.NeedsPin = sel.SchoolID != school
		}
	}

	if teacher && len(user.AllocatedClasses) > 0 {
		classIDs := make(map[string]struct{}, len(user.AllocatedClasses))
		divisionIDs := make(map[string]struct{}, len(user.AllocatedClasses))
		for _, alloc := range user.AllocatedClasses {
			if id := model.Stringify(alloc.ClassID); id != "" {
				classIDs[id] = struct{}{}
			}
			if id := model.Stringify(alloc.DivisionID); id != "" {
				divisionIDs[id] = struct{}{}
			}
		}
		res.Classes = filter(refs.Classes, func(e Entity) bool {
			_, ok := classIDs[ClassID(e)]
			return ok
		})
		res.Divisions = filter(refs.Divisions, func(e Entity) bool {
			_, ok := divisionIDs[DivisionID(e)]
			return ok
		})
	} else {
		school := res.EffectiveSchoolID
		res.Classes = filter(refs.Classes, func(e Entity) bool {
			if school == "" {
				return true
			}
			key, ok := FirstKey(e, ClassSchoolKeys)
			return ok && model.Stringify(key) == school
		})
		res.Divisions = filter(refs.Divisions, func(e Entity) bool {
			if school == "" {
				return true
			}
			key, ok := FirstKey(e, DivisionSchoolKeys)
			if !ok || model.IsEmpty(key) {
				return true
			}
			return model.Stringify(key) == school
		})
	}

	res.DivisionDisabled = !teacher && sel.SchoolID == "" && sel.ClassID == ""

	schoolID := sel.SchoolID
	if res.NeedsPin {
		schoolID = res.EffectiveSchoolID
	}
	res.SchoolLabel = Label(refs.Schools, SchoolIDKeys, schoolID, PlaceholderSchool)
	res.ClassLabel = Label(res.Classes, ClassIDKeys, sel.ClassID, PlaceholderClass)
	res.DivisionLabel = Label(res.Divisions, DivisionIDKeys, sel.DivisionID, PlaceholderDivision)
	return res
}

// Label returns the name of the entity in list whose id matches id, or
// placeholder when none does.
func Label(list []Entity, keys []string, id, placeholder string) string {
	if id == "" {
		return placeholder
	}
	for _, e := range list {
		if KeyString(e, keys) == id {
			if name := Name(e); name != "" {
				return name
			}
			break
		}
	}
	return placeholder
}

// Contains reports whether list holds an entity with the given id.
func Contains(list []Entity, keys []string, id string) bool {
	if id == "" {
		return false
	}
	for _, e := range list {
		if KeyString(e, keys) == id {
			return true
		}
	}
	return false
}

func filter(list []Entity, keep func(Entity) bool) []Entity {
	out := make([]Entity, 0, len(list))
	for _, e := range list {
		if e == nil {
			continue
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
