package s3

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"cadcore/internal/blob/core"
)

func TestListFollowsContinuationTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMock(2)
	for i := range 5 {
		if _, err := store.Put(ctx, fmt.Sprintf("models/m%d.glb", i), strings.NewReader("glTF"), core.PutOptions{}); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if _, err := store.Put(ctx, "textures/wood.png", strings.NewReader("png"), core.PutOptions{}); err != nil {
		t.Fatalf("put texture: %v", err)
	}
	infos, err := store.List(ctx, "models/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 5 || infos[4].Key != "models/m4.glb" || infos[0].Size != 4 {
		t.Fatalf("unexpected listing %+v", infos)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMock(0)
	_, err := store.Put(ctx, "a.glb", strings.NewReader("glTF"), core.PutOptions{Metadata: map[string]string{"origin": "cli"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := store.Head(ctx, "a.glb")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.Metadata["origin"] != "cli" || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}
