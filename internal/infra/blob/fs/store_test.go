package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tracechain/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "archive")
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverFilesystem || s.Root() != root {
		t.Fatalf("unexpected accessors")
	}
	info, err := s.Put(ctx, "passports/LOT-A/100.json", strings.NewReader(`{"lot":"LOT-A"}`), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"lot": "LOT-A"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 15 || len(info.ETag) != 64 || !strings.HasPrefix(info.URL, "http://local.blob/passports/") {
		t.Fatalf("unexpected info %+v", info)
	}

	got, rc, err := s.Get(ctx, "passports/LOT-A/100.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"lot":"LOT-A"}` || got.Metadata["lot"] != "LOT-A" {
		t.Fatalf("unexpected blob %s %+v", body, got)
	}
	head, err := s.Head(ctx, "passports/LOT-A/100.json")
	if err != nil || head.ETag != info.ETag {
		t.Fatalf("head mismatch %+v %v", head, err)
	}

	_, _ = s.Put(ctx, "passports/LOT-B/200.json", bytes.NewReader([]byte("{}")), core.PutOptions{})
	list, err := s.List(ctx, "passports/LOT-A/")
	if err != nil || len(list) != 1 || list[0].Key != "passports/LOT-A/100.json" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected two blobs, got %d", len(all))
	}
	url, err := s.PresignURL(ctx, "passports/LOT-A/100.json", core.SignedURLOptions{})
	if err != nil || url != info.URL {
		t.Fatalf("unexpected presign %s %v", url, err)
	}
}

func TestStoreRejectsOverwriteAndBadKeys(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.Put(ctx, "a.json", strings.NewReader("1"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, "a.json", strings.NewReader("2"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	for _, key := range []string{"", "../escape", "/abs", "x.meta"} {
		if _, err := s.Put(ctx, key, strings.NewReader("1"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
	if _, err := s.Head(ctx, "missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.PresignURL(ctx, "a.json", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestListSurfacesCorruptSidecar(t *testing.T) {
	root := t.TempDir()
	s, _ := New(root)
	if err := os.WriteFile(filepath.Join(root, "bad.json.meta"), []byte("nope"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.List(context.Background(), ""); err == nil {
		t.Fatalf("expected decode error")
	}
}
