package schema_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-scmform/pkg/model"
	"github.com/goliatone/go-scmform/pkg/schema"
)

func TestLoadFS(t *testing.T) {
	t.Parallel()

	store, err := schema.LoadFS(os.DirFS(filepath.Join("testdata", "forms")))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"student", "teacher"}, store.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	student, ok := store.Definition("student")
	if !ok {
		t.Fatal("student definition missing")
	}
	if student.Entity != "Student" || student.UpdateURL != "/api/student/update" || student.SuccessTarget != "StudentList" || !student.Selector {
		t.Fatalf("unexpected definition %+v", student)
	}
	if student.Source != "student.yaml" {
		t.Fatalf("unexpected source %q", student.Source)
	}

	role := student.Fields[2]
	remote, ok := role.RemoteSource()
	if !ok || remote.URL != "/api/roles/getAll/{accountId}" || !remote.IsPost() {
		t.Fatalf("unexpected role source %+v", role.Options)
	}
	wantGender := []model.Option{{Label: "Male", Value: "MALE"}, {Label: "Female", Value: "FEMALE"}}
	if diff := cmp.Diff(wantGender, student.Fields[3].StaticOptionList()); diff != "" {
		t.Fatalf("gender options mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.Rules{MinLength: 10, MaxLength: 15}, student.Fields[4].Rules); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}

	teacher, _ := store.Definition("teacher")
	subject, ok := teacher.Fields[2].RemoteSource()
	if !ok || subject.Query["active"] != "true" || subject.IsPost() {
		t.Fatalf("unexpected subject source %+v", subject)
	}
}

func TestLoadFSRejectsMixedOptionSources(t *testing.T) {
	t.Parallel()

	_, err := schema.LoadFS(os.DirFS(filepath.Join("testdata", "invalid_both")))
	if err == nil || !strings.Contains(err.Error(), "both options and optionsSource") {
		t.Fatalf("expected mixed source error, got %v", err)
	}
}

func TestLoadFSRejectsDuplicateForms(t *testing.T) {
	t.Parallel()

	_, err := schema.LoadFS(os.DirFS(filepath.Join("testdata", "duplicate")))
	if err == nil || !strings.Contains(err.Error(), "duplicate form") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestLoadFSNil(t *testing.T) {
	t.Parallel()

	store, err := schema.LoadFS(nil)
	if err != nil || !store.Empty() {
		t.Fatalf("expected empty store, got %v %v", store, err)
	}
}

func TestNewStoreValidatesDescriptors(t *testing.T) {
	t.Parallel()

	_, err := schema.NewStore(schema.Definition{ID: "x", Fields: []model.FieldDescriptor{{Name: "a", Kind: "color"}}})
	if err == nil {
		t.Fatal("expected unsupported kind error")
	}
}

func TestHolderReloadsOnChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, "forms.yaml"), []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("forms:\n  student:\n    fields:\n      - name: userName\n")

	holder, err := schema.NewHolder(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	changed := make(chan *schema.Store, 1)
	holder.OnChange(func(store *schema.Store) {
		select {
		case changed <- store:
		default:
		}
	})
	if err := holder.Watch(); err != nil {
		t.Fatalf("watch: %v", err)
	}
	t.Cleanup(holder.Stop)

	write("forms:\n  student:\n    fields:\n      - name: userName\n      - name: email\n        kind: email\n")

	select {
	case store := <-changed:
		def, _ := store.Definition("student")
		if len(def.Fields) != 2 {
			t.Fatalf("expected reloaded fields, got %+v", def.Fields)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	if def, _ := holder.Store().Definition("student"); len(def.Fields) != 2 {
		t.Fatal("holder must expose the reloaded store")
	}
}

func TestHolderKeepsStoreOnBadReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "forms.yaml")
	if err := os.WriteFile(path, []byte("forms:\n  a:\n    fields:\n      - name: x\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	holder, err := schema.NewHolder(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if err := os.WriteFile(path, []byte("forms:\n  a:\n    fields:\n      - name: x\n      - name: x\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := holder.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if _, ok := holder.Store().Definition("a"); !ok {
		t.Fatal("previous store must be kept")
	}
}
