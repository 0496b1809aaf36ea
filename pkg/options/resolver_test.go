package options_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-scmform/pkg/datasource"
	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/options"
)

func accountVars(id string) options.Vars {
	return func() map[string]string { return map[string]string{"accountId": id} }
}

func TestResolvePostSubstitutesAccountAndSendsEnvelope(t *testing.T) {
	t.Parallel()

	mem := datasource.NewMemory().Reply(http.MethodPost, "/roles/42", map[string]any{
		"content": []any{map[string]any{"id": 1, "name": "Admin"}},
	})
	resolver := options.NewResolver(mem, options.WithVars(accountVars("42")))

	d := model.FieldDescriptor{
		Name:    "role",
		Kind:    model.KindSelect,
		Options: model.RemoteOptions{URL: "/roles/{accountId}", Method: "post"},
	}
	got, err := resolver.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]model.Option{{Label: "Admin", Value: 1}}, got); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}

	calls := mem.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	if calls[0].URL != "/roles/42" {
		t.Fatalf("url = %q, want /roles/42", calls[0].URL)
	}
	wantBody := map[string]any{"page": 0, "size": 1000, "sortBy": "id", "sortDir": "asc", "search": ""}
	if diff := cmp.Diff(wantBody, calls[0].Body); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveGetAppendsQuery(t *testing.T) {
	t.Parallel()

	mem := datasource.NewMemory().Reply(http.MethodGet, "/api/users", map[string]any{
		"data": []any{map[string]any{"label": "Jane", "value": "u1"}},
	})
	resolver := options.NewResolver(mem)

	d := model.FieldDescriptor{
		Name: "teacher",
		Kind: model.KindSelect,
		Options: model.RemoteOptions{
			URL:   "/api/users?active=true",
			Query: map[string]string{"type": "TEACHER", "q": "a b"},
		},
	}
	got, err := resolver.Resolve(context.Background(), d)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]model.Option{{Label: "Jane", Value: "u1"}}, got); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if url := mem.Calls()[0].URL; url != "/api/users?active=true&q=a+b&type=TEACHER" {
		t.Fatalf("url = %q", url)
	}
}

func TestResolveStaticSkipsFetch(t *testing.T) {
	t.Parallel()

	mem := datasource.NewMemory()
	resolver := options.NewResolver(mem)
	static := model.StaticOptions{{Label: "Active", Value: "active"}}

	got, err := resolver.Resolve(context.Background(), model.FieldDescriptor{Name: "status", Kind: model.KindSelect, Options: static})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]model.Option(static), got); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if mem.CallCount("") != 0 {
		t.Fatal("static options must not trigger a fetch")
	}

	none, err := resolver.Resolve(context.Background(), model.FieldDescriptor{Name: "empty", Kind: model.KindSelect})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %v %v", none, err)
	}
}

func TestResolvePropagatesFetchError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	mem := datasource.NewMemory().Fail(http.MethodGet, "/roles", boom)
	resolver := options.NewResolver(mem)

	_, err := resolver.Resolve(context.Background(), model.FieldDescriptor{
		Name: "role", Kind: model.KindSelect, Options: model.RemoteOptions{URL: "/roles"},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}

	_, err = options.NewResolver(nil).Resolve(context.Background(), model.FieldDescriptor{
		Name: "role", Kind: model.KindSelect, Options: model.RemoteOptions{URL: "/roles"},
	})
	if !errors.Is(err, options.ErrNoDataSource) {
		t.Fatalf("expected ErrNoDataSource, got %v", err)
	}
}

func TestResolveMappedFieldsAndSanitizedLabels(t *testing.T) {
	t.Parallel()

	mem := datasource.NewMemory().Reply(http.MethodGet, "/branches", map[string]any{
		"result": map[string]any{"items": []any{
			map[string]any{"branchId": 3, "meta": map[string]any{"title": "<b>North</b> & South"}},
		}},
	})
	resolver := options.NewResolver(mem)

	got, err := resolver.Resolve(context.Background(), model.FieldDescriptor{
		Name: "branch",
		Kind: model.KindSelect,
		Options: model.RemoteOptions{
			URL:         "/branches",
			ResultsPath: "result.items",
			LabelField:  "meta.title",
			ValueField:  "branchId",
		},
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]model.Option{{Label: "North & South", Value: 3}}, got); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizePrecedence(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   any
		want model.Option
	}{
		"label value": {map[string]any{"label": "A", "value": "a", "id": 9}, model.Option{Label: "A", Value: "a"}},
		"id name":     {map[string]any{"id": 2, "name": "Two"}, model.Option{Label: "Two", Value: 2}},
		"name only":   {map[string]any{"name": "Solo", "value": 4}, model.Option{Label: "Solo", Value: 4}},
		"scalar":      {"plain", model.Option{Label: "plain", Value: "plain"}},
		"number":      {7, model.Option{Label: "7", Value: 7}},
	}
	for name, tc := range cases {
		if diff := cmp.Diff(tc.want, options.Normalize(tc.in)); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()

	vars := map[string]string{"accountId": "42", "empty": ""}
	cases := map[string]string{
		"/roles/{accountId}":         "/roles/42",
		"/roles/{ accountId }/x":     "/roles/42/x",
		"/roles/{unknown}":           "/roles/{unknown}",
		"/roles/{empty}":             "/roles/{empty}",
		"/plain":                     "/plain",
		"/{accountId}/{accountId}/z": "/42/42/z",
	}
	for in, want := range cases {
		if got := options.Expand(in, vars); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}
