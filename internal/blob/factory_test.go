package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"cadcore/internal/blob/core"
	"cadcore/internal/config"
	infraS3 "cadcore/internal/infra/blob/s3"
)

func drivers(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	fsStore, err := Open(ctx, config.BlobConfig{Driver: "fs", FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	mem, err := Open(ctx, config.BlobConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	return map[string]Store{"fs": fsStore, "memory": mem, "s3": infraS3.NewMock(1)}
}

func TestStoreContract(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			opts := PutOptions{ContentType: "model/gltf-binary", Metadata: map[string]string{"source": "import"}}
			info, err := store.Put(ctx, "models/chair.glb", strings.NewReader("glTF-chair"), opts)
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Key != "models/chair.glb" || info.Size != 10 {
				t.Fatalf("unexpected info %+v", info)
			}
			var exists core.ErrExists
			if _, err := store.Put(ctx, "models/chair.glb", strings.NewReader("x"), PutOptions{}); !errors.As(err, &exists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
			if _, err := store.Put(ctx, "models/chair.glb", strings.NewReader("glTF-chair2"), PutOptions{Overwrite: true, ContentType: opts.ContentType}); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if _, err := store.Put(ctx, "models/table.obj", strings.NewReader("v 0 0 0"), PutOptions{}); err != nil {
				t.Fatalf("put second: %v", err)
			}

			got, rc, err := store.Get(ctx, "models/chair.glb")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(body) != "glTF-chair2" || got.ContentType != "model/gltf-binary" {
				t.Fatalf("unexpected get %q %+v", body, got)
			}
			head, err := store.Head(ctx, "models/chair.glb")
			if err != nil || head.Size != 11 {
				t.Fatalf("head: %+v %v", head, err)
			}

			list, err := store.List(ctx, "models/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 2 || list[0].Key != "models/chair.glb" || list[1].Key != "models/table.obj" {
				t.Fatalf("unexpected list %+v", list)
			}

			if _, _, err := store.Get(ctx, "models/missing.glb"); !core.IsNotFound(err) {
				t.Fatalf("expected not found, got %v", err)
			}
			if _, err := store.Head(ctx, "models/missing.glb"); !core.IsNotFound(err) {
				t.Fatalf("expected not found on head, got %v", err)
			}
			ok, err := store.Delete(ctx, "models/chair.glb")
			if err != nil || !ok {
				t.Fatalf("delete: %v %v", ok, err)
			}
			ok, err = store.Delete(ctx, "models/chair.glb")
			if err != nil || ok {
				t.Fatalf("second delete should report absent: %v %v", ok, err)
			}
		})
	}
}

func TestPresign(t *testing.T) {
	ctx := context.Background()
	for name, store := range drivers(t) {
		_, _ = store.Put(ctx, "a.glb", bytes.NewReader([]byte("glTF")), PutOptions{})
		url, err := store.PresignURL(ctx, "a.glb", SignedURLOptions{})
		switch name {
		case "memory":
			if !errors.Is(err, core.ErrUnsupported) {
				t.Fatalf("memory presign should be unsupported, got %v", err)
			}
		case "fs":
			if err != nil || !strings.HasPrefix(url, "file://") {
				t.Fatalf("fs presign: %q %v", url, err)
			}
		case "s3":
			if err != nil || !strings.Contains(url, "X-Amz-Signature") {
				t.Fatalf("s3 presign: %q %v", url, err)
			}
		}
		if _, err := store.PresignURL(ctx, "a.glb", SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
			t.Fatalf("%s: PUT presign should be unsupported, got %v", name, err)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.BlobConfig{Driver: "ftp"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), config.BlobConfig{Driver: "s3"}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}
