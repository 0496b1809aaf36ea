package form

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMapFieldErrors(t *testing.T) {
	t.Parallel()

	known := map[string]struct{}{"email": {}, "mobile": {}, "rollNo": {}}
	got := mapFieldErrors(map[string][]string{
		"body.email":          {"", "taken"},
		"/data/mobile":        {"too short"},
		"students[0].rollNo":  {"duplicate"},
		"payload.unknown":     {"dropped"},
		"attributes.password": {"dropped"},
	}, known)
	want := map[string]string{
		"email":  "taken",
		"mobile": "too short",
		"rollNo": "duplicate",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mapped errors mismatch (-want +got):\n%s", diff)
	}
	if mapFieldErrors(nil, known) != nil {
		t.Fatal("expected nil for empty payload")
	}
}
