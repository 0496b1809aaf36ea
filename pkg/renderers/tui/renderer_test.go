package tui

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/form"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/scd"
	"github.com/goliatone/go-scmform/pkg/session"
)

type stubDriver struct {
	inputs    []string
	selectIdx []int
	confirm   []bool
	textAreas []string
	passwords []string
	infos     []string
	selects   []SelectConfig

	inputPos   int
	selectPos  int
	confirmPos int
	textPos    int
	passPos    int
}

// Input consumes scripted answers until one passes the validator, the way
// survey re-asks on a validation error.
func (s *stubDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	for {
		if s.inputPos >= len(s.inputs) {
			return "", errors.New("no input scripted")
		}
		val := s.inputs[s.inputPos]
		s.inputPos++
		if cfg.Validator != nil {
			if err := cfg.Validator(val); err != nil {
				s.infos = append(s.infos, err.Error())
				continue
			}
		}
		return val, nil
	}
}

func (s *stubDriver) Password(_ context.Context, cfg InputConfig) (string, error) {
	if s.passPos >= len(s.passwords) {
		return "", errors.New("no password scripted")
	}
	val := s.passwords[s.passPos]
	s.passPos++
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, _ ConfirmConfig) (bool, error) {
	if s.confirmPos >= len(s.confirm) {
		return false, errors.New("no confirm scripted")
	}
	val := s.confirm[s.confirmPos]
	s.confirmPos++
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	s.selects = append(s.selects, cfg)
	if s.selectPos >= len(s.selectIdx) {
		return -1, errors.New("no select scripted")
	}
	val := s.selectIdx[s.selectPos]
	s.selectPos++
	return val, nil
}

func (s *stubDriver) TextArea(_ context.Context, _ TextAreaConfig) (string, error) {
	if s.textPos >= len(s.textAreas) {
		return "", errors.New("no textarea scripted")
	}
	val := s.textAreas[s.textPos]
	s.textPos++
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infos = append(s.infos, msg)
	return nil
}

var fields = []model.FieldDescriptor{
	{Name: "userName", Label: "User Name", Kind: model.KindText, Required: true},
	{Name: "email", Label: "Email", Kind: model.KindEmail, Required: true, Rules: model.Rules{Format: true}},
	{Name: "role", Label: "Role", Kind: model.KindSelect, Required: true, Options: model.RemoteOptions{URL: "/roles/{accountId}", Method: "post"}},
}

func loggedIn() *session.Store {
	store := session.NewStore()
	store.Set(session.Snapshot{AccountID: "42", User: &session.User{Type: "ADMIN"}})
	return store
}

func references() scd.References {
	return scd.References{
		Schools: []scd.Entity{{"id": 1, "name": "North"}, {"id": 2, "name": "South"}},
		Classes: []scd.Entity{
			{"id": 10, "name": "1A", "schoolId": 1},
			{"id": 11, "name": "2A", "schoolId": 2},
		},
		Divisions: []scd.Entity{
			{"id": 100, "name": "A", "schoolId": 1},
			{"id": 101, "name": "B", "schoolId": 2},
		},
	}
}

func newEngine(t *testing.T, source datasource.DataSource, r *Renderer) *form.Engine {
	t.Helper()
	engine, err := form.New(fields,
		form.WithEntity("Student"),
		form.WithDataSource(source),
		form.WithSession(loggedIn()),
		form.WithEndpoints(form.Endpoints{Save: "/students"}),
		form.WithNotifier(r),
		form.WithNavigator(r),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Mount(context.Background(), ""); err != nil {
		t.Fatalf("mount: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func rolesSource() *datasource.Memory {
	return datasource.NewMemory().Reply("POST", "/roles/42", []any{
		map[string]any{"id": 1, "name": "Admin"},
		map[string]any{"id": 2, "name": "Student"},
	})
}

func run(t *testing.T, r *Renderer, engine *form.Engine, selector *scd.Selector) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.Run(ctx, engine, selector)
}

func TestRunCreateWithSelector(t *testing.T) {
	t.Parallel()

	source := rolesSource().Reply("POST", "/students", map[string]any{"id": 77})
	driver := &stubDriver{
		inputs:    []string{"jdoe", "not-an-email", "j@example.com"},
		selectIdx: []int{1, 1, 1, 1},
		confirm:   []bool{true},
	}
	r := New(WithPromptDriver(driver))
	engine := newEngine(t, source, r)

	provider := scd.NewProvider(source, loggedIn(), scd.Endpoints{})
	provider.Set(references())
	selector := scd.NewSelector(engine, provider, loggedIn())

	response, err := run(t, r, engine, selector)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"id": 77}, response); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	var body map[string]any
	for _, call := range source.Calls() {
		if call.Method == http.MethodPost && call.Path == "/students" {
			body, _ = call.Body.(map[string]any)
		}
	}
	want := map[string]any{
		"userName":   "jdoe",
		"email":      "j@example.com",
		"role":       2,
		"schoolId":   "1",
		"classId":    "10",
		"divisionId": "100",
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	classPrompt := driver.selects[1]
	if diff := cmp.Diff([]string{skipLabel, "1A"}, classPrompt.Options); diff != "" {
		t.Fatalf("class options must follow the school (-want +got):\n%s", diff)
	}
	if !contains(driver.infos, "Email must be a valid email address.") {
		t.Fatalf("expected inline validation message, got %v", driver.infos)
	}
	if !contains(driver.infos, "Student saved successfully!") {
		t.Fatalf("expected success notice, got %v", driver.infos)
	}
}

func TestRunRepromptsServerRejectedFields(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		posts int
	)
	source := rolesSource().Handle("POST", "/students", func(_ context.Context, req datasource.Request) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		posts++
		if posts == 1 {
			return nil, datasource.NewAPIError("POST", req.URL, http.StatusUnprocessableEntity, map[string]any{
				"message": "Email already registered",
				"errors":  map[string]any{"email": []any{"taken"}},
			})
		}
		return map[string]any{"ok": true}, nil
	})
	driver := &stubDriver{
		inputs:    []string{"jdoe", "j@example.com", "k@example.com"},
		selectIdx: []int{0},
		confirm:   []bool{true, true},
	}
	r := New(WithPromptDriver(driver))
	engine := newEngine(t, source, r)

	if _, err := run(t, r, engine, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if driver.inputPos != 3 || driver.selectPos != 1 {
		t.Fatalf("only the rejected field may be asked again, inputs=%d selects=%d", driver.inputPos, driver.selectPos)
	}
	if engine.Value("email") != "k@example.com" {
		t.Fatalf("unexpected email %v", engine.Value("email"))
	}
	if !contains(driver.infos, "Email already registered") {
		t.Fatalf("expected server message, got %v", driver.infos)
	}
}

func TestRunPromptsAfterRecordFetchFailure(t *testing.T) {
	t.Parallel()

	fetchErr := datasource.NewAPIError("GET", "/students/7", http.StatusInternalServerError, nil)
	source := rolesSource().
		Fail("GET", "/students/7", fetchErr).
		Fail("GET", "/students", fetchErr).
		Reply("PUT", "/students/7", map[string]any{"id": 7})
	driver := &stubDriver{
		inputs:    []string{"jdoe", "j@example.com"},
		selectIdx: []int{0},
		confirm:   []bool{true},
	}
	r := New(WithPromptDriver(driver))
	engine, err := form.New(fields,
		form.WithEntity("Student"),
		form.WithDataSource(source),
		form.WithSession(loggedIn()),
		form.WithEndpoints(form.Endpoints{Fetch: "/students", Update: "/students"}),
		form.WithNotifier(r),
		form.WithNavigator(r),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Mount(context.Background(), "7"); err != nil {
		t.Fatalf("mount: %v", err)
	}
	t.Cleanup(engine.Close)

	response, err := run(t, r, engine, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"id": 7}, response); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
	if engine.RecordErr() == nil {
		t.Fatal("expected the record error to be kept")
	}
	if !contains(driver.infos, "Failed to fetch Student details.") {
		t.Fatalf("expected fetch failure notice, got %v", driver.infos)
	}
	if driver.inputPos != 2 || driver.selectPos != 1 {
		t.Fatalf("every field must be prompted, inputs=%d selects=%d", driver.inputPos, driver.selectPos)
	}
}

func TestRunDeclinedSubmitCancels(t *testing.T) {
	t.Parallel()

	driver := &stubDriver{
		inputs:    []string{"jdoe", "j@example.com"},
		selectIdx: []int{0},
		confirm:   []bool{false},
	}
	r := New(WithPromptDriver(driver))
	engine := newEngine(t, rolesSource(), r)

	_, err := run(t, r, engine, nil)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if err := engine.SetValue("userName", "x"); !errors.Is(err, form.ErrClosed) {
		t.Fatalf("declining must close the engine, got %v", err)
	}
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	source := rolesSource().Fail("POST", "/students", datasource.NewAPIError("POST", "/students", http.StatusBadRequest, map[string]any{
		"errors": map[string]any{"userName": []any{"reserved"}},
	}))
	driver := &stubDriver{
		inputs:    []string{"admin", "j@example.com", "root"},
		selectIdx: []int{0},
		confirm:   []bool{true, true},
	}
	r := New(WithPromptDriver(driver), WithMaxAttempts(2))
	engine := newEngine(t, source, r)

	if _, err := run(t, r, engine, nil); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestPrintPretty(t *testing.T) {
	t.Parallel()

	driver := &stubDriver{}
	r := New(WithPromptDriver(driver), WithOutputFormat(OutputFormatPrettyText))
	if err := r.Print(context.Background(), map[string]any{"id": 7, "role": map[string]any{"name": "Student"}}); err != nil {
		t.Fatalf("print: %v", err)
	}
	if diff := cmp.Diff([]string{"id=7\nrole.name=Student"}, driver.infos); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if strings.Contains(item, want) {
			return true
		}
	}
	return false
}
