package blob

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemory()
	if store.Driver() != DriverMemory {
		t.Fatalf("driver: %s", store.Driver())
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "k1", strings.NewReader("hello"), PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k1", strings.NewReader("again"), PutOptions{}); err == nil {
		t.Fatalf("expected duplicate key error")
	}
	if _, err := store.Put(ctx, "", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}

	info, rc, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "hello" || info.ContentType != "text/plain" {
		t.Fatalf("round trip: %q %+v", body, info)
	}

	if _, _, err := store.Get(ctx, "missing"); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := store.Head(ctx, "k1"); err != nil {
		t.Fatalf("head: %v", err)
	}
	if _, err := store.PresignURL(ctx, "k1", SignedURLOptions{}); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	if _, err := store.Put(ctx, "k2", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("put k2: %v", err)
	}
	infos, err := store.List(ctx, "k")
	if err != nil || len(infos) != 2 || infos[0].Key != "k1" {
		t.Fatalf("list: %+v (%v)", infos, err)
	}

	deleted, err := store.Delete(ctx, "k1")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "k1")
	if err != nil || deleted {
		t.Fatalf("second delete: %v %v", deleted, err)
	}
}

func TestOpenFactoryDefaults(t *testing.T) {
	t.Setenv("RELICFORGE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("driver: %s", store.Driver())
	}

	t.Setenv("RELICFORGE_BLOB_DRIVER", "warp")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected unknown driver error")
	}

	t.Setenv("RELICFORGE_BLOB_DRIVER", "fs")
	t.Setenv("RELICFORGE_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(context.Background())
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("driver: %s", store.Driver())
	}
}
