// Package testsupport serves an in-memory school management API over HTTP for
// integration tests and offline demos.
package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Token is the bearer token the API accepts.
const Token = "test-token"

// SchoolAPI is a fake backend with students, teachers, roles and the
// school/class/division collections. Every handler requires Token.
type SchoolAPI struct {
	mu       sync.Mutex
	students map[string]map[string]any
	teachers []map[string]any
	nextID   int
	requests []Recorded

	handler http.Handler
	server  *httptest.Server
}

// Recorded is one request seen by the API.
type Recorded struct {
	Method string
	Path   string
	Body   map[string]any
}

// NewSchoolAPI returns an API seeded with two schools, their classes and
// divisions, two roles and one teacher.
func NewSchoolAPI() *SchoolAPI {
	a := &SchoolAPI{
		students: make(map[string]map[string]any),
		teachers: []map[string]any{
			{"id": 1, "firstName": "Asha", "lastName": "Rao", "email": "asha@school.in", "subject": "Mathematics", "phone": "9876543210", "classAssigned": []any{}},
		},
		nextID: 100,
	}
	a.handler = a.routes()
	return a
}

// Start serves the API on a test server closed with t.
func Start(t testing.TB) *SchoolAPI {
	t.Helper()
	a := NewSchoolAPI()
	a.server = httptest.NewServer(a.handler)
	t.Cleanup(a.server.Close)
	return a
}

// Handler exposes the router, for serving it on a real listener.
func (a *SchoolAPI) Handler() http.Handler {
	return a.handler
}

// URL is the base URL of a started API.
func (a *SchoolAPI) URL() string {
	if a.server == nil {
		return ""
	}
	return a.server.URL
}

// SeedStudent stores record under a fresh id and returns the id.
func (a *SchoolAPI) SeedStudent(record map[string]any) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.storeLocked("", record)
}

// Student returns a stored student.
func (a *SchoolAPI) Student(id string) (map[string]any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	record, ok := a.students[id]
	return record, ok
}

// Requests returns the requests seen so far.
func (a *SchoolAPI) Requests() []Recorded {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Recorded(nil), a.requests...)
}

func (a *SchoolAPI) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(a.authorize)

	r.Route("/api", func(r chi.Router) {
		r.Post("/roles/getAll/{accountId}", a.list(func() []any {
			return []any{
				map[string]any{"id": 1, "name": "Admin"},
				map[string]any{"id": 2, "name": "Student"},
			}
		}, "content"))
		r.Post("/schoolBranch/getAll/{accountId}", a.list(schools, "data"))
		r.Post("/schoolClass/getAll/{accountId}", a.list(classes, "data"))
		r.Post("/division/getAll/{accountId}", a.list(divisions, "data"))
		r.Get("/teacher/getAll/{accountId}", a.list(a.teacherList, "data"))

		r.Get("/users/getById", a.getStudent)
		r.Get("/users/getById/{id}", a.getStudent)
		r.Post("/users/save", a.saveStudent)
		r.Put("/users/update/{id}", a.updateStudent)
	})
	return r
}

func (a *SchoolAPI) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (a *SchoolAPI) record(req *http.Request) map[string]any {
	var body map[string]any
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&body)
	}
	a.mu.Lock()
	a.requests = append(a.requests, Recorded{Method: req.Method, Path: req.URL.Path, Body: body})
	a.mu.Unlock()
	return body
}

func (a *SchoolAPI) list(items func() []any, envelope string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		a.record(req)
		payload := map[string]any{"content": items()}
		if envelope == "data" {
			payload = map[string]any{"data": payload}
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func (a *SchoolAPI) teacherList() []any {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]any, 0, len(a.teachers))
	for _, t := range a.teachers {
		out = append(out, t)
	}
	return out
}

func (a *SchoolAPI) getStudent(w http.ResponseWriter, req *http.Request) {
	a.record(req)
	id := chi.URLParam(req, "id")
	if id == "" {
		id = req.URL.Query().Get("id")
	}
	record, ok := a.Student(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Student not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": record})
}

func (a *SchoolAPI) saveStudent(w http.ResponseWriter, req *http.Request) {
	body := a.record(req)
	a.mu.Lock()
	defer a.mu.Unlock()
	if field, msg := a.rejectLocked("", body); field != "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": msg,
			"errors":  map[string]any{field: []any{msg}},
		})
		return
	}
	id := a.storeLocked("", body)
	writeJSON(w, http.StatusOK, map[string]any{"data": a.students[id]})
}

func (a *SchoolAPI) updateStudent(w http.ResponseWriter, req *http.Request) {
	body := a.record(req)
	id := chi.URLParam(req, "id")
	a.mu.Lock()
	defer a.mu.Unlock()
	current, ok := a.students[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Student not found"})
		return
	}
	if field, msg := a.rejectLocked(id, body); field != "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": msg,
			"errors":  map[string]any{"body." + field: []any{msg}},
		})
		return
	}
	merged := make(map[string]any, len(current)+len(body))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range body {
		merged[k] = v
	}
	a.storeLocked(id, merged)
	writeJSON(w, http.StatusOK, map[string]any{"data": a.students[id]})
}

// rejectLocked enforces unique emails.
func (a *SchoolAPI) rejectLocked(id string, body map[string]any) (string, string) {
	email, _ := body["email"].(string)
	if email == "" {
		return "", ""
	}
	for otherID, other := range a.students {
		if otherID != id && strings.EqualFold(other["email"].(string), email) {
			return "email", "Email already registered"
		}
	}
	return "", ""
}

func (a *SchoolAPI) storeLocked(id string, record map[string]any) string {
	if id == "" {
		a.nextID++
		id = strconv.Itoa(a.nextID)
	}
	stored := make(map[string]any, len(record)+1)
	for k, v := range record {
		stored[k] = v
	}
	if _, ok := stored["email"].(string); !ok {
		stored["email"] = ""
	}
	stored["id"] = id
	a.students[id] = stored
	return id
}

// StudentIDs returns the stored ids in order.
func (a *SchoolAPI) StudentIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.students))
	for id := range a.students {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func schools() []any {
	return []any{
		map[string]any{"id": 1, "name": "North Campus"},
		map[string]any{"id": 2, "name": "South Campus"},
	}
}

func classes() []any {
	return []any{
		map[string]any{"schoolClassId": 10, "name": "Grade 1", "schoolbranchId": 1},
		map[string]any{"schoolClassId": 11, "name": "Grade 2", "schoolbranchId": 1},
		map[string]any{"schoolClassId": 20, "name": "Grade 1", "schoolbranchId": 2},
	}
}

func divisions() []any {
	return []any{
		map[string]any{"divisionId": 100, "name": "A", "schoolId": 1},
		map[string]any{"divisionId": 101, "name": "B", "schoolId": 1},
		map[string]any{"divisionId": 200, "name": "A", "schoolId": 2},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
