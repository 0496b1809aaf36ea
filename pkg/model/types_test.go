package model_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-scmform/pkg/model"
)

func TestValidateDescriptors(t *testing.T) {
	t.Parallel()

	valid := []model.FieldDescriptor{
		{Name: "firstName", Kind: model.KindText, Required: true},
		{Name: "role", Kind: model.KindSelect, Options: model.RemoteOptions{URL: "/roles/{accountId}", Method: "post"}},
	}
	if err := model.ValidateDescriptors(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := append(valid, model.FieldDescriptor{Name: "role", Kind: model.KindText})
	if err := model.ValidateDescriptors(dup); !errors.Is(err, model.ErrDuplicateField) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if err := model.ValidateDescriptors([]model.FieldDescriptor{{Kind: model.KindText}}); !errors.Is(err, model.ErrEmptyFieldName) {
		t.Fatalf("expected empty name error, got %v", err)
	}

	if err := model.ValidateDescriptors([]model.FieldDescriptor{{Name: "x", Kind: "checkbox"}}); err == nil {
		t.Fatal("expected unsupported kind error")
	}

	if err := model.ValidateDescriptors([]model.FieldDescriptor{{Name: "x", Kind: model.KindText, Rules: model.Rules{Pattern: "("}}}); err == nil {
		t.Fatal("expected pattern compile error")
	}
}

func TestDefaultValues(t *testing.T) {
	t.Parallel()

	got := model.DefaultValues([]model.FieldDescriptor{
		{Name: "email", Kind: model.KindEmail},
		{Name: "dob", Kind: model.KindDate},
		{Name: "role", Kind: model.KindSelect},
	})
	want := model.Values{"email": "", "dob": "", "role": nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("default values mismatch (-want +got):\n%s", diff)
	}
}

func TestStringify(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   any
		want string
	}{
		"nil":          {nil, ""},
		"string":       {"7", "7"},
		"float int":    {float64(5), "5"},
		"float frac":   {1.5, "1.5"},
		"int":          {42, "42"},
		"option":       {model.Option{Label: "A", Value: float64(3)}, "3"},
		"object id":    {map[string]any{"id": float64(9), "name": "Admin"}, "9"},
		"object value": {map[string]any{"value": "x", "label": "X"}, "x"},
	}
	for name, tc := range cases {
		if got := model.Stringify(tc.in); got != tc.want {
			t.Errorf("%s: Stringify(%v) = %q, want %q", name, tc.in, got, tc.want)
		}
	}
}

func TestIsEmpty(t *testing.T) {
	t.Parallel()

	empty := []any{nil, "", "   ", []any{}, map[string]any{"name": "no id"}}
	for _, v := range empty {
		if !model.IsEmpty(v) {
			t.Errorf("expected %#v to be empty", v)
		}
	}
	filled := []any{"a", float64(0), map[string]any{"id": float64(1)}, model.Option{Label: "A", Value: "a"}}
	for _, v := range filled {
		if model.IsEmpty(v) {
			t.Errorf("expected %#v to be non-empty", v)
		}
	}
}

func TestRemoteSource(t *testing.T) {
	t.Parallel()

	d := model.FieldDescriptor{Name: "role", Kind: model.KindSelect, Options: model.RemoteOptions{URL: "/roles", Method: "POST"}}
	src, ok := d.RemoteSource()
	if !ok || !src.IsPost() {
		t.Fatalf("expected remote post source, got %+v ok=%v", src, ok)
	}
	if d.StaticOptionList() != nil {
		t.Fatal("remote descriptor must not expose static options")
	}

	static := model.FieldDescriptor{Name: "status", Kind: model.KindSelect, Options: model.StaticOptions{{Label: "Active", Value: "active"}}}
	if _, ok := static.RemoteSource(); ok {
		t.Fatal("static descriptor must not expose a remote source")
	}
	if len(static.StaticOptionList()) != 1 {
		t.Fatal("expected one static option")
	}
}
