package query

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/FranksOps/sift/internal/model"
	"github.com/FranksOps/sift/internal/storage/localfs"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeParquetBatch(t *testing.T, path string, rows []parquetQuery) {
	t.Helper()
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[parquetQuery](&buf)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close parquet: %v", err)
	}
	writeFile(t, path, buf.Bytes())
}

func TestResolveSingleFile(t *testing.T) {
	s := NewSource(localfs.New(), nil)

	batches, err := s.Resolve(context.Background(), "input/queries_20260115.csv", "20260115")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(batches) != 1 || batches[0] != "input/queries_20260115.csv" {
		t.Errorf("batches = %v", batches)
	}
}

func TestResolvePrefixByDate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "queries_20260115_part1.csv"), []byte("query\n"))
	writeFile(t, filepath.Join(dir, "queries_20260115_part2.csv"), []byte("query\n"))
	writeFile(t, filepath.Join(dir, "queries_20260114_part1.csv"), []byte("query\n"))
	writeFile(t, filepath.Join(dir, "queries_20260115.txt"), []byte("ignored"))

	s := NewSource(localfs.New(), nil)
	batches, err := s.Resolve(context.Background(), filepath.Join(dir, "queries"), "20260115")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2: %v", len(batches), batches)
	}
	for _, b := range batches {
		if filepath.Ext(b) != ".csv" {
			t.Errorf("unexpected batch %s", b)
		}
	}
}

func TestResolveDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "20260115_a.parquet"), []byte("x"))
	writeFile(t, filepath.Join(dir, "20260116_a.parquet"), []byte("x"))

	s := NewSource(localfs.New(), nil)
	batches, err := s.Resolve(context.Background(), dir+"/", "20260115")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(batches) != 1 || filepath.Base(batches[0]) != "20260115_a.parquet" {
		t.Errorf("batches = %v", batches)
	}
}

func TestResolveNoBatches(t *testing.T) {
	s := NewSource(localfs.New(), nil)
	if _, err := s.Resolve(context.Background(), t.TempDir()+"/", "20260115"); err == nil {
		t.Fatal("expected error for empty date")
	}
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	batch := filepath.Join(dir, "queries_20260115.csv")
	writeFile(t, batch, []byte("query,type\nbiology syllabus,subject\nmath syllabus,subject\n  \nbiology syllabus,subject\n"))

	s := NewSource(localfs.New(), nil)
	queries, err := s.Load(context.Background(), []string{batch}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("got %d queries, want 2 (duplicate and blank dropped)", len(queries))
	}
	if queries[0].Text != "biology syllabus" || queries[0].Type != "subject" {
		t.Errorf("query 0 = %+v", queries[0])
	}
	if queries[0].ID != model.QueryID("biology syllabus") {
		t.Errorf("ID not derived from text")
	}
	if queries[0].SourceBatch != batch {
		t.Errorf("SourceBatch = %s", queries[0].SourceBatch)
	}
}

func TestLoadCSVQueryColumnOnly(t *testing.T) {
	dir := t.TempDir()
	batch := filepath.Join(dir, "q.csv")
	writeFile(t, batch, []byte("Query\nhistory syllabus\n"))

	s := NewSource(localfs.New(), nil)
	queries, err := s.Load(context.Background(), []string{batch}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(queries) != 1 || queries[0].Text != "history syllabus" || queries[0].Type != "" {
		t.Errorf("queries = %+v", queries)
	}
}

func TestLoadParquet(t *testing.T) {
	dir := t.TempDir()
	batch := filepath.Join(dir, "q.parquet")
	writeParquetBatch(t, batch, []parquetQuery{
		{Query: "biology syllabus", Type: "subject"},
		{Query: "chemistry syllabus"},
	})

	s := NewSource(localfs.New(), nil)
	queries, err := s.Load(context.Background(), []string{batch}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("got %d queries, want 2", len(queries))
	}
	if queries[1].Text != "chemistry syllabus" || queries[1].Type != "" {
		t.Errorf("query 1 = %+v", queries[1])
	}
}

func TestLoadExcludesProcessed(t *testing.T) {
	dir := t.TempDir()
	batch := filepath.Join(dir, "q.csv")
	writeFile(t, batch, []byte("query\nbiology syllabus\nmath syllabus\n"))

	processed := map[string]struct{}{
		model.QueryID("biology syllabus"): {},
	}

	s := NewSource(localfs.New(), nil)
	queries, err := s.Load(context.Background(), []string{batch}, processed)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(queries) != 1 || queries[0].Text != "math syllabus" {
		t.Errorf("queries = %+v", queries)
	}
}

func TestLoadDedupsAcrossBatches(t *testing.T) {
	dir := t.TempDir()
	b1 := filepath.Join(dir, "a.csv")
	b2 := filepath.Join(dir, "b.csv")
	writeFile(t, b1, []byte("query\nbiology syllabus\n"))
	writeFile(t, b2, []byte("query\nbiology syllabus\nmath syllabus\n"))

	s := NewSource(localfs.New(), nil)
	queries, err := s.Load(context.Background(), []string{b1, b2}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("got %d queries, want 2", len(queries))
	}
	if queries[0].SourceBatch != b1 {
		t.Errorf("first occurrence should win, got batch %s", queries[0].SourceBatch)
	}
}

func TestLoadMalformedBatchFatal(t *testing.T) {
	dir := t.TempDir()
	batch := filepath.Join(dir, "bad.csv")
	writeFile(t, batch, []byte("title\nno query column\n"))

	s := NewSource(localfs.New(), nil)
	_, err := s.Load(context.Background(), []string{batch}, nil)
	var rerr *ReadError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want *ReadError", err)
	}
	if rerr.Path != batch {
		t.Errorf("path = %s, want %s", rerr.Path, batch)
	}
}

func TestLoadSkipOnError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.csv")
	good := filepath.Join(dir, "good.csv")
	writeFile(t, bad, []byte("title\nno query column\n"))
	writeFile(t, good, []byte("query\nmath syllabus\n"))

	s := NewSource(localfs.New(), nil)
	s.SkipOnError = true
	queries, err := s.Load(context.Background(), []string{bad, good}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(queries) != 1 || queries[0].Text != "math syllabus" {
		t.Errorf("queries = %+v", queries)
	}
}
