package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cadcore/internal/blob/core"
)

func TestKeysCannotEscapeRoot(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "  ", "/etc/passwd", "../up.glb", "a/../../b.glb", "model.glb.meta"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}

func TestSidecarWrittenNextToData(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := store.Put(context.Background(), "nested/dir/part.stl", strings.NewReader("solid x"), core.PutOptions{ContentType: "model/stl"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "nested", "dir", "part.stl.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "nested", "dir"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestPutHonoursCancelledContext(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "a.glb", strings.NewReader("glTF"), core.PutOptions{}); err == nil {
		t.Fatalf("expected cancelled put to fail")
	}
	if _, err := store.Head(context.Background(), "a.glb"); !core.IsNotFound(err) {
		t.Fatalf("cancelled put must not leave a blob: %v", err)
	}
}
