package scd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/session"
)

var (
	// ErrSchoolLocked is returned when a teacher tries to change school.
	ErrSchoolLocked = errors.New("scd: school is fixed for teachers")
	// ErrDivisionDisabled is returned when a division is picked before a
	// school or class.
	ErrDivisionDisabled = errors.New("scd: division requires a school or class")
	// ErrUnknownOption is returned when the picked id is not in the
	// filtered list.
	ErrUnknownOption = errors.New("scd: option not available")
)

// Form is the slice of the form engine the selector drives.
type Form interface {
	Values() model.Values
	SetValue(name string, value any) error
}

// ReferenceSource supplies the reference collections.
type ReferenceSource interface {
	References() References
	Loading() bool
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithSelectorLogger sets the logger.
func WithSelectorLogger(logger zerolog.Logger) SelectorOption {
	return func(s *Selector) {
		s.logger = logger
	}
}

// Selector binds Resolve to a form: it applies teacher pinning and the
// selection side effects through the form's setter.
type Selector struct {
	form    Form
	refs    ReferenceSource
	session *session.Store
	logger  zerolog.Logger
}

// NewSelector returns a selector for form. refs and store may be nil, in
// which case the lists are empty and the user is treated as a non-teacher.
func NewSelector(form Form, refs ReferenceSource, store *session.Store, opts ...SelectorOption) *Selector {
	s := &Selector{
		form:    form,
		refs:    refs,
		session: store,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Sync resolves the current selection and applies the teacher correction
// when needed. The returned Result reflects the corrected selection.
func (s *Selector) Sync() (Result, error) {
	user := s.session.User()
	refs := s.references()
	res := Resolve(SelectionFrom(s.form.Values()), refs, user)
	if !res.NeedsPin {
		return s.decorate(res), nil
	}

	s.logger.Debug().
		Str("school", res.EffectiveSchoolID).
		Msg("pinning teacher school")
	if err := s.setTriple(res.EffectiveSchoolID, "", ""); err != nil {
		return res, err
	}
	return s.decorate(Resolve(SelectionFrom(s.form.Values()), refs, user)), nil
}

// SelectSchool picks a school and clears class and division. For teachers
// the school snaps back to the assigned one and ErrSchoolLocked is returned.
func (s *Selector) SelectSchool(id string) (Result, error) {
	id = strings.TrimSpace(id)
	user := s.session.User()
	if res := Resolve(SelectionFrom(s.form.Values()), s.references(), user); res.Teacher {
		if _, err := s.Sync(); err != nil {
			return res, err
		}
		if id != res.EffectiveSchoolID {
			return s.current(), ErrSchoolLocked
		}
		return s.current(), nil
	}
	if err := s.setTriple(id, "", ""); err != nil {
		return Result{}, err
	}
	return s.current(), nil
}

// SelectClass picks a class from the filtered list; school is untouched.
func (s *Selector) SelectClass(id string) (Result, error) {
	id = strings.TrimSpace(id)
	res := s.current()
	if id != "" && !Contains(res.Classes, ClassIDKeys, id) {
		return res, fmt.Errorf("%w: class %s", ErrUnknownOption, id)
	}
	if err := s.form.SetValue(FieldClass, id); err != nil {
		return res, err
	}
	return s.current(), nil
}

// SelectDivision picks a division from the filtered list.
func (s *Selector) SelectDivision(id string) (Result, error) {
	id = strings.TrimSpace(id)
	res := s.current()
	if res.DivisionDisabled {
		return res, ErrDivisionDisabled
	}
	if id != "" && !Contains(res.Divisions, DivisionIDKeys, id) {
		return res, fmt.Errorf("%w: division %s", ErrUnknownOption, id)
	}
	if err := s.form.SetValue(FieldDivision, id); err != nil {
		return res, err
	}
	return s.current(), nil
}

// Selection returns the triple currently held by the form.
func (s *Selector) Selection() Selection {
	return SelectionFrom(s.form.Values())
}

// Schools returns the unfiltered school list.
func (s *Selector) Schools() []Entity {
	return s.references().Schools
}

// Current resolves without applying corrections.
func (s *Selector) Current() Result {
	return s.current()
}

func (s *Selector) current() Result {
	return s.decorate(Resolve(SelectionFrom(s.form.Values()), s.references(), s.session.User()))
}

func (s *Selector) decorate(res Result) Result {
	if s.refs != nil && s.refs.Loading() {
		res.DivisionDisabled = true
	}
	return res
}

func (s *Selector) references() References {
	if s.refs == nil {
		return References{}
	}
	return s.refs.References()
}

func (s *Selector) setTriple(school, class, division string) error {
	if err := s.form.SetValue(FieldSchool, school); err != nil {
		return err
	}
	if err := s.form.SetValue(FieldClass, class); err != nil {
		return err
	}
	return s.form.SetValue(FieldDivision, division)
}
