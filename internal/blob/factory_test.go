package blob

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	mem, err := Open(ctx, Config{})
	if err != nil || mem.Driver() != DriverMemory {
		t.Fatalf("expected memory default, got %v %v", mem, err)
	}
	fsStore, err := Open(ctx, Config{Driver: "fs", FSRoot: filepath.Join(t.TempDir(), "blobs")})
	if err != nil || fsStore.Driver() != DriverFilesystem {
		t.Fatalf("expected fs store, got %v %v", fsStore, err)
	}
	if _, err := Open(ctx, Config{Driver: "s3"}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
	if _, err := Open(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestOpenedStoresAreWriteOnce(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []Config{{Driver: "memory"}, {Driver: "fs", FSRoot: t.TempDir()}} {
		store, err := Open(ctx, cfg)
		if err != nil {
			t.Fatalf("open %s: %v", cfg.Driver, err)
		}
		if _, err := store.Put(ctx, "passports/L1/1.json", bytes.NewReader([]byte("{}")), PutOptions{}); err != nil {
			t.Fatalf("%s put: %v", cfg.Driver, err)
		}
		_, err = store.Put(ctx, "passports/L1/1.json", bytes.NewReader([]byte("{}")), PutOptions{})
		if !errors.Is(err, ErrExists) {
			t.Fatalf("%s: expected ErrExists, got %v", cfg.Driver, err)
		}
		if _, err := store.Head(ctx, "passports/L1/missing.json"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", cfg.Driver, err)
		}
	}
}
