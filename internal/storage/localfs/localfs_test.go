package localfs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/FranksOps/sift/internal/storage"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()
	path := filepath.Join(t.TempDir(), "nested", "dir", "object.json")

	if err := store.Put(ctx, path, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	data, err := store.Get(ctx, path)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("unexpected content: %s", data)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := New()
	_, err := store.Get(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutOverwritesAtomically(t *testing.T) {
	ctx := context.Background()
	store := New()
	path := filepath.Join(t.TempDir(), "object")

	if err := store.Put(ctx, path, []byte("first")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.Put(ctx, path, []byte("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	data, err := store.Get(ctx, path)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("expected overwritten content, got %s", data)
	}
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	store := New()
	dir := t.TempDir()

	for _, name := range []string{"query_20260101_a.csv", "query_20260101_b.csv", "query_20260102.csv", "other.txt"} {
		if err := store.Put(ctx, filepath.Join(dir, name), []byte("x")); err != nil {
			t.Fatalf("put %s failed: %v", name, err)
		}
	}

	paths, err := store.List(ctx, filepath.Join(dir, "query_20260101"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 matches, got %d: %v", len(paths), paths)
	}
	if paths[0] > paths[1] {
		t.Errorf("expected sorted output, got %v", paths)
	}

	// Directory form lists everything inside.
	all, err := store.List(ctx, dir+"/")
	if err != nil {
		t.Fatalf("list dir failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 files, got %d", len(all))
	}
}

func TestListMissingDirIsEmpty(t *testing.T) {
	store := New()
	paths, err := store.List(context.Background(), filepath.Join(t.TempDir(), "nope", "prefix_"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected no matches, got %v", paths)
	}
}
