package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/FranksOps/sift/internal/model"
	"github.com/FranksOps/sift/internal/storage/localfs"
)

func sampleTables() *Tables {
	return &Tables{
		Results: []model.ScoredRow{
			{QueryID: "aaaa1111", Query: "biology syllabus", QueryType: "subject", Rank: 1,
				URL: "https://edu.example/bio", Title: "Biology, 2026", Content: "full syllabus",
				Host: "edu.example", Engine: "search_pro_ms", AuthorityScore: 4, RelevanceScore: 2},
			{QueryID: "aaaa1111", Query: "biology syllabus", QueryType: "subject", Rank: 2,
				URL: "https://blog.example/b", Title: "notes", Content: "some notes",
				Host: "blog.example", Engine: "search_pro_ms", AuthorityScore: 1, RelevanceScore: 1},
		},
		Hosts: []model.HostRow{
			{Host: "edu.example", AuthorityScore: 4},
		},
		QnA: []model.QnARow{
			{Query: "biology syllabus", Type: "subject", URL: "https://edu.example/bio",
				Title: "Biology, 2026", Content: "full syllabus", AuthorityScore: 4, RelevanceScore: 2},
		},
	}
}

func TestParseFormat(t *testing.T) {
	if _, err := ParseFormat("csv"); err != nil {
		t.Errorf("csv: %v", err)
	}
	if _, err := ParseFormat("parquet"); err != nil {
		t.Errorf("parquet: %v", err)
	}
	if _, err := ParseFormat("xlsx"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteAllCSV(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(localfs.New(), dir, FormatCSV, nil)

	if err := w.WriteAll(context.Background(), sampleTables()); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "all_results_with_scores.csv"))
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse results: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2 rows", len(records))
	}
	if records[0][0] != "query_id" || records[0][9] != "authority_score" {
		t.Errorf("header = %v", records[0])
	}
	if records[1][4] != "https://edu.example/bio" || records[1][9] != "4" {
		t.Errorf("row 1 = %v", records[1])
	}

	data, err = os.ReadFile(filepath.Join(dir, "authority_hosts.csv"))
	if err != nil {
		t.Fatalf("read hosts: %v", err)
	}
	records, err = csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse hosts: %v", err)
	}
	if len(records) != 2 || records[1][0] != "edu.example" || records[1][1] != "4" {
		t.Errorf("hosts = %v", records)
	}

	data, err = os.ReadFile(filepath.Join(dir, "filtered_qna.csv"))
	if err != nil {
		t.Fatalf("read qna: %v", err)
	}
	records, err = csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse qna: %v", err)
	}
	if len(records) != 2 || records[1][0] != "biology syllabus" {
		t.Errorf("qna = %v", records)
	}
}

func TestWriteAllParquet(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(localfs.New(), dir, FormatParquet, nil)
	want := sampleTables()

	if err := w.WriteAll(context.Background(), want); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "all_results_with_scores.parquet"))
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	results, err := decodeParquet[model.ScoredRow](data)
	if err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d result rows, want 2", len(results))
	}
	if results[0] != want.Results[0] || results[1] != want.Results[1] {
		t.Errorf("results roundtrip mismatch:\n got %+v\nwant %+v", results, want.Results)
	}

	data, err = os.ReadFile(filepath.Join(dir, "authority_hosts.parquet"))
	if err != nil {
		t.Fatalf("read hosts: %v", err)
	}
	hosts, err := decodeParquet[model.HostRow](data)
	if err != nil {
		t.Fatalf("decode hosts: %v", err)
	}
	if len(hosts) != 1 || hosts[0] != want.Hosts[0] {
		t.Errorf("hosts = %+v", hosts)
	}

	data, err = os.ReadFile(filepath.Join(dir, "filtered_qna.parquet"))
	if err != nil {
		t.Fatalf("read qna: %v", err)
	}
	qna, err := decodeParquet[model.QnARow](data)
	if err != nil {
		t.Fatalf("decode qna: %v", err)
	}
	if len(qna) != 1 || qna[0] != want.QnA[0] {
		t.Errorf("qna = %+v", qna)
	}
}

func TestWriteAllEmptyTables(t *testing.T) {
	dir := t.TempDir()
	for _, format := range []Format{FormatCSV, FormatParquet} {
		w := NewWriter(localfs.New(), filepath.Join(dir, string(format)), format, nil)
		if err := w.WriteAll(context.Background(), &Tables{}); err != nil {
			t.Errorf("%s: WriteAll on empty tables: %v", format, err)
		}
	}
}

func TestWriteAllReportsFailedTable(t *testing.T) {
	w := NewWriter(brokenStore{}, "out", FormatCSV, nil)

	err := w.WriteAll(context.Background(), sampleTables())
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("err = %T, want *WriteError", err)
	}
	if werr.Table != ResultsName {
		t.Errorf("failed table = %s, want %s", werr.Table, ResultsName)
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("no") }
func (brokenStore) Put(context.Context, string, []byte) error   { return errors.New("disk full") }
func (brokenStore) List(context.Context, string) ([]string, error) {
	return nil, nil
}
