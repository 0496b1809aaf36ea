// Package validation implements the synchronous submit-time checks of the
// form engine: the required check (with the edit-mode password exemption)
// followed by the optional per-descriptor rules. Kind format checks only run
// for descriptors whose rules set Format.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-scmform/pkg/model"
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	digitsPattern = regexp.MustCompile(`^[0-9]+$`)
)

// Context carries the inputs that change the outcome of a validation pass.
type Context struct {
	// Edit is true when an existing entity is being updated.
	Edit bool
	// Now bounds NotFuture rules; zero means time.Now().
	Now time.Time
}

// IsPasswordField reports whether d is the credential field that gets the
// edit-mode exemption.
func IsPasswordField(d model.FieldDescriptor) bool {
	return d.Kind == model.KindPassword || d.Name == "password"
}

// Validate runs every descriptor against values and returns the errors
// found. An empty map means the form may be submitted.
func Validate(descriptors []model.FieldDescriptor, values model.Values, vctx Context) model.ValidationErrors {
	errs := make(model.ValidationErrors)
	now := vctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	for _, d := range descriptors {
		value := values[d.Name]
		empty := model.IsEmpty(value)

		if vctx.Edit && empty && IsPasswordField(d) {
			continue
		}
		if empty {
			if d.Required {
				errs[d.Name] = fmt.Sprintf("%s is required.", d.DisplayLabel())
			}
			continue
		}
		if msg := checkField(d, value, now); msg != "" {
			errs[d.Name] = msg
		}
	}
	return errs
}

func checkField(d model.FieldDescriptor, value any, now time.Time) string {
	rules := d.Rules
	if rules.Empty() || d.Kind == model.KindSelect {
		return ""
	}
	label := d.DisplayLabel()
	text := model.Stringify(value)

	if rules.Format {
		if msg := checkFormat(d, value, text); msg != "" {
			return msg
		}
	}
	length := utf8.RuneCountInString(text)
	if rules.MinLength > 0 && length < rules.MinLength {
		return fmt.Sprintf("%s must be at least %d characters.", label, rules.MinLength)
	}
	if rules.MaxLength > 0 && length > rules.MaxLength {
		return fmt.Sprintf("%s must be at most %d characters.", label, rules.MaxLength)
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err == nil && !re.MatchString(text) {
			if rules.PatternError != "" {
				return rules.PatternError
			}
			return fmt.Sprintf("%s has an invalid format.", label)
		}
	}
	if rules.NotFuture {
		if t, ok := model.ParseDate(value); ok && t.After(now) {
			return fmt.Sprintf("%s cannot be in the future.", label)
		}
	}
	return ""
}

func checkFormat(d model.FieldDescriptor, value any, text string) string {
	label := d.DisplayLabel()
	switch d.Kind {
	case model.KindEmail:
		if !emailPattern.MatchString(strings.TrimSpace(text)) {
			return fmt.Sprintf("%s must be a valid email address.", label)
		}
	case model.KindTel:
		if !digitsPattern.MatchString(strings.TrimSpace(text)) {
			return fmt.Sprintf("%s must contain digits only.", label)
		}
	case model.KindDate:
		if _, ok := model.ParseDate(value); !ok {
			return fmt.Sprintf("%s must be a valid date.", label)
		}
	}
	return ""
}
