package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"cadcore/internal/core"
	"cadcore/internal/transport/ws"
	"cadcore/pkg/domain"
)

// withEnv points the CLI at a fresh sqlite file and in-memory blobs.
func withEnv(t *testing.T, extra map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	env := map[string]string{
		"CADCORE_STORAGE_DRIVER": "sqlite",
		"CADCORE_SQLITE_PATH":    filepath.Join(dir, "cad.db"),
		"CADCORE_BLOB_DRIVER":    "fs",
		"CADCORE_BLOB_FS_ROOT":   filepath.Join(dir, "assets"),
		"CADCORE_LOG_LEVEL":      "error",
	}
	for k, v := range extra {
		env[k] = v
	}
	prev := getenv
	getenv = func(k string) string { return env[k] }
	t.Cleanup(func() { getenv = prev })
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := cli(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeState(t *testing.T, dir string) string {
	t.Helper()
	state := domain.DocumentState{
		ID:     "plan",
		Name:   "Floor plan",
		Layers: []domain.Layer{{ID: "walls", Name: "Walls", Visible: true, Locked: true}},
		Entities: domain.EntitySet{
			Lines: []domain.Line{
				{Base: domain.Base{ID: "w1"}, LayerID: "walls", Points: []domain.Vec3{{0, 0, 0}, {4, 0, 0}}},
				{Base: domain.Base{ID: "w2"}, LayerID: "walls", Points: []domain.Vec3{{4, 0, 0}, {4, 3, 0}}},
			},
		},
	}
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, "plan.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestUsageErrors(t *testing.T) {
	withEnv(t, nil)
	if code, _, _ := run(t); code != 2 {
		t.Fatalf("expected usage exit 2, got %d", code)
	}
	if code, _, errOut := run(t, "frobnicate"); code != 2 || !strings.Contains(errOut, "unknown command") {
		t.Fatalf("unexpected result %d %q", code, errOut)
	}
	if code, _, _ := run(t, "inspect"); code != 2 {
		t.Fatalf("inspect without id should be a usage error, got %d", code)
	}
	if code, _, _ := run(t, "-h"); code != 0 {
		t.Fatalf("help should exit 0, got %d", code)
	}
}

func TestBadConfig(t *testing.T) {
	withEnv(t, map[string]string{"CADCORE_STORAGE_DRIVER": "mongo"})
	code, _, errOut := run(t, "list")
	if code != 1 || !strings.Contains(errOut, "config") {
		t.Fatalf("unexpected result %d %q", code, errOut)
	}
}

func TestImportListInspectExportDelete(t *testing.T) {
	dir := withEnv(t, nil)
	path := writeState(t, dir)

	code, out, errOut := run(t, "list")
	if code != 0 || !strings.Contains(out, "no documents") {
		t.Fatalf("list on empty store: %d %q %q", code, out, errOut)
	}

	code, out, errOut = run(t, "import", path)
	if code != 0 || !strings.Contains(out, "imported plan (2 entities, 1 layers)") {
		t.Fatalf("import: %d %q %q", code, out, errOut)
	}

	code, out, _ = run(t, "list")
	if code != 0 || !strings.Contains(out, "plan") || !strings.Contains(out, "Floor plan") {
		t.Fatalf("list: %d %q", code, out)
	}

	code, out, errOut = run(t, "inspect", "plan")
	if code != 0 {
		t.Fatalf("inspect: %d %q", code, errOut)
	}
	for _, want := range []string{"Floor plan (plan)", "line=2", "walls", "locked", "2 nodes", "check    ok"} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, out)
		}
	}

	exported := filepath.Join(dir, "out.json")
	if code, _, errOut := run(t, "export", "-o", exported, "plan"); code != 0 {
		t.Fatalf("export: %d %q", code, errOut)
	}
	raw, err := os.ReadFile(exported)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var got domain.DocumentState
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if got.ID != "plan" || len(got.Entities.Lines) != 2 {
		t.Fatalf("unexpected export %+v", got)
	}

	if code, out, _ := run(t, "delete", "plan"); code != 0 || !strings.Contains(out, "deleted plan") {
		t.Fatalf("delete: %d %q", code, out)
	}
	if code, _, errOut := run(t, "delete", "plan"); code != 1 || !strings.Contains(errOut, "not found") {
		t.Fatalf("second delete: %d %q", code, errOut)
	}
}

func TestImportFromStdin(t *testing.T) {
	dir := withEnv(t, nil)
	raw, err := os.ReadFile(writeState(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	prev := stdin
	stdin = bytes.NewReader(raw)
	t.Cleanup(func() { stdin = prev })
	if code, out, errOut := run(t, "import", "-"); code != 0 || !strings.Contains(out, "imported plan") {
		t.Fatalf("import stdin: %d %q %q", code, out, errOut)
	}
}

func TestAssetPutAndURL(t *testing.T) {
	dir := withEnv(t, nil)
	src := filepath.Join(dir, "cube.obj")
	if err := os.WriteFile(src, []byte("v 0 0 0\nv 1 1 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := run(t, "asset", "put", "models/cube.obj", src)
	if code != 0 || !strings.Contains(out, "stored models/cube.obj (obj") {
		t.Fatalf("asset put: %d %q %q", code, out, errOut)
	}
	if code, _, _ := run(t, "asset", "put", "models/cube.obj", src); code != 1 {
		t.Fatalf("second put without -overwrite should fail, got %d", code)
	}
	if code, _, errOut := run(t, "asset", "put", "-overwrite", "models/cube.obj", src); code != 0 {
		t.Fatalf("overwrite: %d %q", code, errOut)
	}
	code, out, _ = run(t, "asset", "url", "models/cube.obj")
	if code != 0 || !strings.HasPrefix(out, "file://") {
		t.Fatalf("asset url: %d %q", code, out)
	}
	code, out, _ = run(t, "asset", "list")
	if code != 0 || !strings.Contains(out, "models/cube.obj") {
		t.Fatalf("asset list: %d %q", code, out)
	}
}

func TestMuxRoutes(t *testing.T) {
	doc := core.NewDocument("d", "Doc")
	defer doc.Close()
	hub := ws.NewHub(doc.Scene())
	defer hub.Close()
	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(newMux(doc, hub, reg))
	defer srv.Close()

	for path, want := range map[string]string{
		"/state":   `"id":"d"`,
		"/history": `"canUndo":false`,
		"/healthz": `"status":"ok"`,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(buf.String(), want) {
			t.Fatalf("%s: %d %s", path, resp.StatusCode, buf.String())
		}
	}
	resp, err := http.Post(srv.URL+"/state", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", resp.StatusCode)
	}
}
