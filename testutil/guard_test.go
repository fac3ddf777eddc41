package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred func(string) bool
		in   string
		want bool
	}{
		{InternalImportForbidden, "example.com/mod/internal/x", true},
		{InternalImportForbidden, "example.com/mod/pkg/x", false},
		{SceneImportForbidden, "cadcore/internal/scene", true},
		{SceneImportForbidden, "cadcore/internal/scene/sub", true},
		{SceneImportForbidden, "cadcore/internal/scenery", false},
		{CommandsImportForbidden, "cadcore/internal/history", true},
		{CommandsImportForbidden, "cadcore/internal/store", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("predicate(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"ok.go":      "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}",
		"bad.go":     "package tmp\nimport _ \"cadcore/internal/scene\"",
		"bad_test.go": "package tmp\nimport _ \"cadcore/internal/store\"",
		"notes.txt":  "import \"cadcore/internal/scene\"",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "bad.go") {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")

	r := &recorder{}
	failIfDirectViolations(r, "scene", viols)
	if !strings.Contains(r.msg, "forbidden direct imports detected (scene)") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.go"), []byte("package"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

func stubGraph(t *testing.T, roots []*packages.Package, err error) {
	t.Helper()
	prev := loadPackages
	loadPackages = func(string) ([]*packages.Package, error) { return roots, err }
	t.Cleanup(func() { loadPackages = prev })
}

func TestTransitiveViolations(t *testing.T) {
	scene := &packages.Package{PkgPath: "cadcore/internal/scene", Imports: map[string]*packages.Package{}}
	mid := &packages.Package{PkgPath: "cadcore/internal/mid", Imports: map[string]*packages.Package{"cadcore/internal/scene": scene}}
	root := &packages.Package{PkgPath: "cadcore/internal/store", Imports: map[string]*packages.Package{"cadcore/internal/mid": mid}}
	stubGraph(t, []*packages.Package{root}, nil)

	viols, err := transitiveDependencyViolations("x", SceneImportForbidden)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "cadcore/internal/scene" {
		t.Fatalf("unexpected violations %v", viols)
	}
	r := &recorder{}
	failIfTransitiveViolations(r, "store stays scene-free", viols)
	if !strings.Contains(r.msg, "cadcore/internal/scene") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}

func TestTransitiveViolationsErrors(t *testing.T) {
	stubGraph(t, nil, errors.New("boom"))
	if _, err := transitiveDependencyViolations("x", SceneImportForbidden); err == nil {
		t.Fatalf("expected load error")
	}
	stubGraph(t, nil, nil)
	if _, err := transitiveDependencyViolations("x", SceneImportForbidden); err == nil {
		t.Fatalf("expected error for empty match")
	}
	broken := &packages.Package{PkgPath: "cadcore/x", Errors: []packages.Error{{Msg: "no Go files"}}}
	stubGraph(t, []*packages.Package{broken}, nil)
	if _, err := transitiveDependencyViolations("x", SceneImportForbidden); err == nil {
		t.Fatalf("expected package error")
	}
}
