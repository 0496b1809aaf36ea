// Package entities ships the built-in school forms: the student and teacher
// definitions, their submit transforms and the teacher list search.
package entities

import (
	"math"
	"strconv"
	"strings"

	"github.com/goliatone/go-scmform/pkg/form"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/schema"
	"github.com/goliatone/go-scmform/pkg/session"
)

// Form identifiers of the built-in definitions.
const (
	StudentID       = "student"
	StudentStrictID = "student-strict"
	TeacherID       = "teacher"
)

// Student endpoints.
const (
	StudentFetchURL  = "/api/users/getById"
	StudentSaveURL   = "/api/users/save"
	StudentUpdateURL = "/api/users/update"
	RolesURL         = "/api/roles/getAll/{accountId}"
)

// Default role assigned when the form carries none.
const (
	DefaultRoleID   = 2
	DefaultRoleName = "Student"
)

const mobilePattern = "^[0-9]+$"

// StudentFields returns the default student form.
func StudentFields() []model.FieldDescriptor {
	return []model.FieldDescriptor{
		{Name: "userName", Label: "User Name", Kind: model.KindText, Required: true},
		{Name: "password", Label: "Password", Kind: model.KindPassword, Required: true},
		{Name: "firstName", Label: "First Name", Kind: model.KindText, Required: true},
		{Name: "lastName", Label: "Last Name", Kind: model.KindText, Required: true},
		{Name: "email", Label: "Email", Kind: model.KindEmail, Required: true},
		{Name: "mobile", Label: "Mobile", Kind: model.KindNumber, Required: true},
		{Name: "address", Label: "Address", Kind: model.KindText},
		{Name: "dob", Label: "Date of Birth", Kind: model.KindDate, Required: true},
		{Name: "rollNo", Label: "Roll No", Kind: model.KindNumber, Required: true},
		{
			Name:     "role",
			Label:    "Role",
			Kind:     model.KindSelect,
			Required: true,
			Options:  model.RemoteOptions{URL: RolesURL, Method: "post"},
		},
	}
}

// StudentStrictFields is the stricter student form: length caps on the
// credential and name fields, a format-checked email, a digits-only mobile
// of 10 to 15 characters, a date of birth that is not in the future and
// required class, division and roll number.
func StudentStrictFields() []model.FieldDescriptor {
	capped := model.Rules{MaxLength: 255}
	return []model.FieldDescriptor{
		{Name: "userName", Label: "User Name", Kind: model.KindText, Required: true, Rules: capped},
		{Name: "password", Label: "Password", Kind: model.KindPassword, Required: true, Rules: capped},
		{Name: "firstName", Label: "First Name", Kind: model.KindText, Required: true, Rules: capped},
		{Name: "lastName", Label: "Last Name", Kind: model.KindText, Required: true, Rules: capped},
		{Name: "email", Label: "Email", Kind: model.KindEmail, Required: true, Rules: model.Rules{MaxLength: 255, Format: true}},
		{
			Name:     "mobile",
			Label:    "Mobile",
			Kind:     model.KindTel,
			Required: true,
			Rules: model.Rules{
				MinLength:    10,
				MaxLength:    15,
				Pattern:      mobilePattern,
				PatternError: "Mobile must contain digits only.",
				Format:       true,
			},
		},
		{Name: "address", Label: "Address", Kind: model.KindTextArea},
		{Name: "dob", Label: "Date of Birth", Kind: model.KindDate, Required: true, Rules: model.Rules{NotFuture: true, Format: true}},
		{Name: "rollNo", Label: "Roll No", Kind: model.KindNumber, Required: true},
		{Name: "classId", Label: "Class", Kind: model.KindText, Required: true, Disabled: true},
		{Name: "divisionId", Label: "Division", Kind: model.KindText, Required: true, Disabled: true},
		{
			Name:     "role",
			Label:    "Role",
			Kind:     model.KindSelect,
			Required: true,
			Options:  model.RemoteOptions{URL: RolesURL, Method: "post"},
		},
	}
}

// Student is the default student definition.
func Student() schema.Definition {
	return schema.Definition{
		ID:            StudentID,
		Entity:        "Student",
		FetchURL:      StudentFetchURL,
		SaveURL:       StudentSaveURL,
		UpdateURL:     StudentUpdateURL,
		SuccessTarget: "StudentList",
		Selector:      true,
		Fields:        StudentFields(),
	}
}

// StudentStrict is the strict student definition. Its class and division
// fields are driven by the selector, never typed.
func StudentStrict() schema.Definition {
	def := Student()
	def.ID = StudentStrictID
	def.Fields = StudentStrictFields()
	return def
}

// StudentTransform shapes the student payload the user endpoints expect.
func StudentTransform(values model.Values, isEdit bool) (any, error) {
	payload := make(map[string]any, len(values)+4)
	for key, value := range values {
		payload[key] = value
	}
	payload["type"] = "STUDENT"
	payload["status"] = "active"
	payload["role"] = roleReference(values["role"])
	payload["bateOfBirth"] = values["dob"]
	for _, key := range []string{"rollNo", "classId", "divisionId", "schoolId"} {
		payload[key] = intOrNil(values[key])
	}
	if isEdit && model.IsEmpty(values["password"]) {
		delete(payload, "password")
	}
	return payload, nil
}

// StrictStudentTransform extends StudentTransform with the account id from
// store, the dateOfBirth alias and an explicit id (null when creating).
func StrictStudentTransform(store *session.Store) form.Transform {
	return func(values model.Values, isEdit bool) (any, error) {
		out, err := StudentTransform(values, isEdit)
		if err != nil {
			return nil, err
		}
		payload := out.(map[string]any)
		payload["accountId"] = store.Current().AccountID
		payload["dateOfBirth"] = values["dob"]
		payload["id"] = nil
		if isEdit {
			if id := strings.TrimSpace(model.Stringify(values["id"])); id != "" {
				payload["id"] = id
			}
		}
		return payload, nil
	}
}

func roleReference(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		if id, ok := model.ReferenceID(v); ok {
			name := v["name"]
			if name == nil {
				name = v["label"]
			}
			return map[string]any{"id": id, "name": name}
		}
	case model.Option:
		if !model.IsEmpty(v) {
			return map[string]any{"id": intOrNil(v.Value), "name": v.Label}
		}
	default:
		if !model.IsEmpty(value) {
			return map[string]any{"id": intOrNil(value), "name": nil}
		}
	}
	return map[string]any{"id": DefaultRoleID, "name": DefaultRoleName}
}

// intOrNil parses the leading integer of value. Zero numbers, empty and
// unparsable values become nil; the string "0" stays 0.
func intOrNil(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case int:
		if v == 0 {
			return nil
		}
		return v
	case int64:
		if v == 0 {
			return nil
		}
		return int(v)
	case float64:
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return int(v)
	}
	text := strings.TrimSpace(model.Stringify(value))
	end := 0
	for end < len(text) && (text[end] >= '0' && text[end] <= '9' || end == 0 && (text[end] == '-' || text[end] == '+')) {
		end++
	}
	n, err := strconv.Atoi(text[:end])
	if err != nil {
		return nil
	}
	return n
}
