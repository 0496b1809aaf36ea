package entities

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/options"
	"github.com/goliatone/go-scmform/pkg/schema"
	"github.com/goliatone/go-scmform/pkg/session"
)

// Teacher endpoints.
const (
	TeacherListURL   = "/api/teacher/getAll/{accountId}"
	TeacherFetchURL  = "/api/teacher/getById"
	TeacherSaveURL   = "/api/teacher/save"
	TeacherUpdateURL = "/api/teacher/update"
)

// TeacherFields returns the teacher form.
func TeacherFields() []model.FieldDescriptor {
	return []model.FieldDescriptor{
		{Name: "firstName", Label: "First Name", Kind: model.KindText, Required: true},
		{Name: "lastName", Label: "Last Name", Kind: model.KindText, Required: true},
		{Name: "email", Label: "Email", Kind: model.KindEmail, Required: true},
		{Name: "subject", Label: "Subject", Kind: model.KindText},
		{Name: "phone", Label: "Phone", Kind: model.KindTel},
	}
}

// TeacherDefinition is the teacher form definition.
func TeacherDefinition() schema.Definition {
	return schema.Definition{
		ID:            TeacherID,
		Entity:        "Teacher",
		FetchURL:      TeacherFetchURL,
		SaveURL:       TeacherSaveURL,
		UpdateURL:     TeacherUpdateURL,
		SuccessTarget: "TeacherList",
		Fields:        TeacherFields(),
	}
}

// Teacher is one row of the teacher list.
type Teacher struct {
	ID            string
	FirstName     string
	LastName      string
	Email         string
	Subject       string
	Phone         string
	ClassAssigned int
}

// FullName joins first and last name.
func (t Teacher) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// TeacherFromMap reads a teacher from a decoded payload item.
func TeacherFromMap(item map[string]any) Teacher {
	t := Teacher{
		ID:        model.Stringify(item["id"]),
		FirstName: model.Stringify(item["firstName"]),
		LastName:  model.Stringify(item["lastName"]),
		Email:     model.Stringify(item["email"]),
		Subject:   model.Stringify(item["subject"]),
		Phone:     model.Stringify(item["phone"]),
	}
	if assigned, ok := item["classAssigned"].([]any); ok {
		t.ClassAssigned = len(assigned)
	}
	return t
}

// ListTeachers fetches the teacher list of the logged-in account.
func ListTeachers(ctx context.Context, source datasource.DataSource, store *session.Store) ([]Teacher, error) {
	if source == nil {
		return nil, fmt.Errorf("entities: list teachers: no data source")
	}
	accountID, err := store.AccountID()
	if err != nil {
		return nil, fmt.Errorf("entities: list teachers: %w", err)
	}
	target := options.Expand(TeacherListURL, map[string]string{"accountId": accountID})
	payload, err := source.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("entities: list teachers: %w", err)
	}
	items := datasource.Items(payload)
	out := make([]Teacher, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, TeacherFromMap(obj))
		}
	}
	return out, nil
}

// SearchTeachers keeps the teachers whose first name, last name, email or
// subject contains query, ignoring case. When nothing matches, teachers with
// a word within a small edit distance of the query are returned instead,
// closest first. An empty query returns the list unchanged.
func SearchTeachers(teachers []Teacher, query string) []Teacher {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return teachers
	}

	var matched []Teacher
	for _, t := range teachers {
		for _, field := range searchFields(t) {
			if strings.Contains(strings.ToLower(field), query) {
				matched = append(matched, t)
				break
			}
		}
	}
	if len(matched) > 0 || len(query) < 3 {
		return matched
	}
	return fuzzyTeachers(teachers, query)
}

func searchFields(t Teacher) []string {
	return []string{t.FirstName, t.LastName, t.Email, t.Subject}
}

type scored struct {
	teacher  Teacher
	distance int
}

func fuzzyTeachers(teachers []Teacher, query string) []Teacher {
	limit := 1
	if len(query) > 5 {
		limit = 2
	}
	var hits []scored
	for _, t := range teachers {
		best := -1
		for _, field := range searchFields(t) {
			for _, word := range words(field) {
				dist := levenshtein.ComputeDistance(query, word)
				if best < 0 || dist < best {
					best = dist
				}
			}
		}
		if best >= 0 && best <= limit {
			hits = append(hits, scored{teacher: t, distance: best})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
	out := make([]Teacher, 0, len(hits))
	for _, hit := range hits {
		out = append(out, hit.teacher)
	}
	return out
}

func words(field string) []string {
	return strings.FieldsFunc(strings.ToLower(field), func(r rune) bool {
		return r == ' ' || r == '@' || r == '.' || r == '-' || r == '_'
	})
}
