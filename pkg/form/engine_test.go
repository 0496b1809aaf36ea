package form_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/form"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/session"
)

var studentFields = []model.FieldDescriptor{
	{Name: "userName", Label: "User Name", Kind: model.KindText, Required: true},
	{Name: "password", Label: "Password", Kind: model.KindPassword, Required: true},
	{Name: "email", Label: "Email", Kind: model.KindEmail, Required: true},
	{Name: "dob", Label: "Date of Birth", Kind: model.KindDate},
	{Name: "role", Label: "Role", Kind: model.KindSelect, Required: true, Options: model.RemoteOptions{URL: "/roles/{accountId}", Method: "post"}},
	{Name: "gender", Label: "Gender", Kind: model.KindSelect, Options: model.StaticOptions{
		{Label: "Male", Value: "MALE"},
		{Label: "Female", Value: "FEMALE"},
	}},
}

type recorder struct {
	mu        sync.Mutex
	backs     int
	targets   []string
	successes []string
	failures  []string
}

func (r *recorder) Navigate(target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
}

func (r *recorder) Back() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backs++
}

func (r *recorder) Success(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, msg)
}

func (r *recorder) Failure(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, msg)
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		backs:     r.backs,
		targets:   append([]string(nil), r.targets...),
		successes: append([]string(nil), r.successes...),
		failures:  append([]string(nil), r.failures...),
	}
}

func loggedIn() *session.Store {
	store := session.NewStore()
	store.Set(session.Snapshot{AccountID: "42", Token: "t", User: &session.User{ID: 9, Type: "ADMIN"}})
	return store
}

func rolesSource() *datasource.Memory {
	return datasource.NewMemory().
		Reply("POST", "/roles/42", map[string]any{
			"content": []any{map[string]any{"id": 1, "name": "Admin"}, map[string]any{"id": 2, "name": "Student"}},
		})
}

func mount(t *testing.T, source datasource.DataSource, id string, opts ...form.Option) (*form.Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	base := []form.Option{
		form.WithEntity("Student"),
		form.WithDataSource(source),
		form.WithSession(loggedIn()),
		form.WithEndpoints(form.Endpoints{Fetch: "/students", Save: "/students", Update: "/students"}),
		form.WithNavigator(rec),
		form.WithNotifier(rec),
	}
	engine, err := form.New(studentFields, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Mount(context.Background(), id); err != nil {
		t.Fatalf("mount: %v", err)
	}
	t.Cleanup(engine.Close)
	wait(t, engine)
	return engine, rec
}

func wait(t *testing.T, engine *form.Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := engine.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestNewRejectsDuplicateFields(t *testing.T) {
	t.Parallel()

	_, err := form.New([]model.FieldDescriptor{
		{Name: "a", Kind: model.KindText},
		{Name: "a", Kind: model.KindText},
	})
	if !errors.Is(err, model.ErrDuplicateField) {
		t.Fatalf("expected ErrDuplicateField, got %v", err)
	}
}

func TestMountCreateMode(t *testing.T) {
	t.Parallel()

	source := rolesSource()
	engine, _ := mount(t, source, "")

	if engine.Mode() != form.ModeCreate {
		t.Fatalf("expected create mode, got %s", engine.Mode())
	}
	wantValues := model.Values{
		"userName": "",
		"password": "",
		"email":    "",
		"dob":      "",
		"role":     nil,
		"gender":   nil,
	}
	if diff := cmp.Diff(wantValues, engine.Values()); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	wantOptions := model.OptionSet{
		"role":   {{Label: "Admin", Value: 1}, {Label: "Student", Value: 2}},
		"gender": {{Label: "Male", Value: "MALE"}, {Label: "Female", Value: "FEMALE"}},
	}
	if diff := cmp.Diff(wantOptions, engine.Options()); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if got := source.CallCount("GET"); got != 0 {
		t.Fatalf("create mode must not fetch a record, saw %d GETs", got)
	}
	calls := source.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly the roles fetch, got %d calls", len(calls))
	}
	body, _ := calls[0].Body.(map[string]any)
	if body["size"] != 1000 || body["sortBy"] != "id" {
		t.Fatalf("unexpected paging envelope %v", calls[0].Body)
	}
}

func TestMountTwice(t *testing.T) {
	t.Parallel()

	engine, _ := mount(t, rolesSource(), "")
	if err := engine.Mount(context.Background(), ""); !errors.Is(err, form.ErrMounted) {
		t.Fatalf("expected ErrMounted, got %v", err)
	}
}

func TestOptionFetchFailureLeavesListEmpty(t *testing.T) {
	t.Parallel()

	source := datasource.NewMemory().Fail("POST", "/roles/42", errors.New("boom"))
	engine, _ := mount(t, source, "")

	if got := engine.FieldOptions("role"); len(got) != 0 {
		t.Fatalf("expected empty role options, got %v", got)
	}
	if got := engine.FieldOptions("gender"); len(got) != 2 {
		t.Fatalf("static options must survive a sibling failure, got %v", got)
	}
}

func TestEditHydration(t *testing.T) {
	t.Parallel()

	source := rolesSource().Reply("GET", "/students/7", map[string]any{
		"data": map[string]any{
			"id":       7,
			"userName": "jdoe",
			"password": "$2a$hash",
			"email":    "j@example.com",
			"classId":  5,
			"rollNo":   12,
			"dob":      "2021-03-05T00:00:00Z",
			"role":     map[string]any{"id": 2, "name": "Student"},
		},
	})
	engine, _ := mount(t, source, "7")

	if engine.Mode() != form.ModeEdit {
		t.Fatalf("expected edit mode, got %s", engine.Mode())
	}
	if engine.Loading() {
		t.Fatal("expected loading to be cleared after hydration")
	}
	got := engine.Values()
	for field, want := range map[string]any{
		"userName": "jdoe",
		"password": "",
		"classId":  "5",
		"rollNo":   "12",
		"dob":      "2021-03-05",
		"gender":   nil,
	} {
		if diff := cmp.Diff(want, got[field]); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", field, diff)
		}
	}
	if label := engine.DisplayValue("role"); label != "Student" {
		t.Fatalf("expected role label Student, got %q", label)
	}
}

func TestEditHydrationFallsBackToQuery(t *testing.T) {
	t.Parallel()

	source := rolesSource().Reply("GET", "/students?id=7", map[string]any{
		"date_of_birth": "2010-08-09T10:00:00Z",
		"userName":      "fallback",
	})
	engine, _ := mount(t, source, "7")

	got := engine.Values()
	if got["userName"] != "fallback" || got["dob"] != "2010-08-09" {
		t.Fatalf("unexpected hydrated values %v", got)
	}
	if engine.RecordErr() != nil {
		t.Fatalf("unexpected record error %v", engine.RecordErr())
	}
}

func TestEditHydrationFailure(t *testing.T) {
	t.Parallel()

	engine, rec := mount(t, rolesSource(), "7")

	var recErr *form.RecordError
	if !errors.As(engine.RecordErr(), &recErr) || recErr.ID != "7" {
		t.Fatalf("expected RecordError for id 7, got %v", engine.RecordErr())
	}
	if diff := cmp.Diff([]string{"Failed to fetch Student details."}, rec.snapshot().failures); diff != "" {
		t.Fatalf("failures mismatch (-want +got):\n%s", diff)
	}
	if got := engine.Value("userName"); got != "" {
		t.Fatalf("expected defaults to remain, got %v", got)
	}
}

func TestCloseDiscardsLateOptions(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	source := datasource.NewMemory().Handle("POST", "/roles/42", func(ctx context.Context, _ datasource.Request) (any, error) {
		<-release
		return []any{map[string]any{"id": 1, "name": "Admin"}}, nil
	})
	var events int
	var mu sync.Mutex
	engine, err := form.New(studentFields,
		form.WithDataSource(source),
		form.WithSession(loggedIn()),
		form.WithOnChange(func(evt form.Event) {
			if evt.Kind == form.EventOptions && evt.Field == "role" {
				mu.Lock()
				events++
				mu.Unlock()
			}
		}),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := engine.Mount(context.Background(), ""); err != nil {
		t.Fatalf("mount: %v", err)
	}
	engine.Close()
	close(release)
	wait(t, engine)

	if got := engine.FieldOptions("role"); len(got) != 0 {
		t.Fatalf("late options must be discarded, got %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if events != 0 {
		t.Fatalf("expected no role option events, got %d", events)
	}
	if err := engine.SetValue("userName", "x"); !errors.Is(err, form.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSetDescriptorsDiscardsStaleFetch(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	source := datasource.NewMemory().
		Handle("POST", "/roles/42", func(context.Context, datasource.Request) (any, error) {
			<-release
			return []any{map[string]any{"id": 1, "name": "Stale"}}, nil
		}).
		Reply("GET", "/sections", []any{map[string]any{"id": "A", "name": "Section A"}})

	engine, err := form.New(studentFields, form.WithDataSource(source), form.WithSession(loggedIn()))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(engine.Close)
	if err := engine.Mount(context.Background(), ""); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := engine.SetValue("userName", "kept"); err != nil {
		t.Fatalf("set value: %v", err)
	}

	next := []model.FieldDescriptor{
		{Name: "userName", Label: "User Name", Kind: model.KindText, Required: true},
		{Name: "role", Label: "Role", Kind: model.KindSelect, Options: model.RemoteOptions{URL: "/sections"}},
	}
	if err := engine.SetDescriptors(next); err != nil {
		t.Fatalf("set descriptors: %v", err)
	}
	close(release)
	wait(t, engine)

	want := []model.Option{{Label: "Section A", Value: "A"}}
	if diff := cmp.Diff(want, engine.FieldOptions("role")); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if got := engine.Value("userName"); got != "kept" {
		t.Fatalf("expected surviving value, got %v", got)
	}
}

func TestSetValueClearsError(t *testing.T) {
	t.Parallel()

	engine, _ := mount(t, rolesSource(), "")
	errs := engine.Validate()
	if errs["email"] == "" {
		t.Fatal("expected an email error")
	}
	if err := engine.SetValue("email", "a@b.co"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if _, ok := engine.Errors()["email"]; ok {
		t.Fatal("expected email error to be cleared")
	}
	if engine.Errors()["userName"] == "" {
		t.Fatal("other errors must be kept")
	}
}

func TestSelectLabel(t *testing.T) {
	t.Parallel()

	d := model.FieldDescriptor{Name: "role", Label: "Role", Kind: model.KindSelect}
	opts := []model.Option{{Label: "Admin", Value: 1}}
	cases := []struct {
		value any
		want  string
	}{
		{1, "Admin"},
		{"1", "Admin"},
		{map[string]any{"id": 1}, "Admin"},
		{map[string]any{"id": 3, "name": "Guest"}, "Guest"},
		{"9", "9"},
		{nil, "Select Role"},
		{"", "Select Role"},
	}
	for _, tc := range cases {
		if got := form.SelectLabel(d, tc.value, opts); got != tc.want {
			t.Errorf("SelectLabel(%#v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestRecordURLs(t *testing.T) {
	t.Parallel()

	path, query := form.RecordURLs("/api/student/get/", "a b")
	if path != "/api/student/get/a%20b" || query != "/api/student/get?id=a+b" {
		t.Fatalf("unexpected urls %q %q", path, query)
	}
}

func TestInputSanitizerStripsMarkup(t *testing.T) {
	t.Parallel()

	engine, _ := mount(t, rolesSource(), "", form.WithInputSanitizer(bluemonday.StrictPolicy()))
	if err := engine.SetValue("userName", "<b>jdoe</b>"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := engine.SetValue("password", "<p>secret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := engine.Value("userName"); got != "jdoe" {
		t.Fatalf("expected sanitized user name, got %q", got)
	}
	if got := engine.Value("password"); got != "<p>secret" {
		t.Fatalf("password must be stored verbatim, got %q", got)
	}
}

func TestOnErrorReceivesRecordError(t *testing.T) {
	t.Parallel()

	errs := make(chan error, 1)
	source := rolesSource()
	mount(t, source, "404", form.WithOnError(func(err error) { errs <- err }))

	select {
	case err := <-errs:
		var recErr *form.RecordError
		if !errors.As(err, &recErr) || recErr.ID != "404" {
			t.Fatalf("expected RecordError for 404, got %v", err)
		}
	default:
		t.Fatal("expected the error hook to run before Wait returned")
	}
}

func TestSubscribeReceivesEventsUntilCancelled(t *testing.T) {
	t.Parallel()

	engine, _ := mount(t, rolesSource(), "")

	var (
		mu     sync.Mutex
		fields []string
	)
	cancel := engine.Subscribe(func(evt form.Event) {
		if evt.Kind != form.EventValue {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		fields = append(fields, evt.Field)
	})

	if err := engine.SetValue("userName", "jdoe"); err != nil {
		t.Fatalf("set: %v", err)
	}
	cancel()
	if err := engine.SetValue("email", "j@example.com"); err != nil {
		t.Fatalf("set: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"userName"}, fields); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}
