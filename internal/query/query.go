// Package query loads the day's input queries from batch files. Batches
// are CSV or parquet files located by a date-based naming convention;
// duplicate texts within a run and queries already processed by a
// restored checkpoint are dropped here so the pipeline never sees them.
package query

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/FranksOps/sift/internal/model"
	"github.com/FranksOps/sift/internal/storage"
)

// ReadError reports a batch file that could not be read or parsed.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read batch %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Source resolves and reads query batches through an object store.
type Source struct {
	store storage.ObjectStore
	// SkipOnError makes a malformed batch a warning instead of a fatal
	// error; remaining batches are still loaded.
	SkipOnError bool
	logger      *slog.Logger
}

// NewSource creates a batch reader over store.
func NewSource(store storage.ObjectStore, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{store: store, logger: logger}
}

// Resolve maps an input location and run date to the batch files to
// load. Location may be a single file, a directory (trailing slash), or
// a prefix; directories and prefixes are narrowed to the run date.
func (s *Source) Resolve(ctx context.Context, location, date string) ([]string, error) {
	if ext := path.Ext(location); ext == ".csv" || ext == ".parquet" {
		return []string{location}, nil
	}

	prefix := location
	if strings.HasSuffix(location, "/") {
		prefix = location + date
	} else {
		prefix = location + "_" + date
	}

	paths, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("resolve batches under %s: %w", prefix, err)
	}

	var batches []string
	for _, p := range paths {
		switch path.Ext(p) {
		case ".csv", ".parquet":
			batches = append(batches, p)
		}
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("no batch files for date %s under %s", date, location)
	}
	return batches, nil
}

// Load reads every batch, dropping duplicate query texts and queries
// whose IDs appear in processed. Order follows the batch file order.
func (s *Source) Load(ctx context.Context, batches []string, processed map[string]struct{}) ([]model.Query, error) {
	seen := make(map[string]struct{})
	var queries []model.Query

	for _, batch := range batches {
		loaded, err := s.readBatch(ctx, batch)
		if err != nil {
			if s.SkipOnError {
				s.logger.Warn("skipping unreadable batch", "path", batch, "err", err)
				continue
			}
			return nil, err
		}

		kept := 0
		for _, q := range loaded {
			if _, dup := seen[q.Text]; dup {
				continue
			}
			seen[q.Text] = struct{}{}
			if _, done := processed[q.ID]; done {
				continue
			}
			queries = append(queries, q)
			kept++
		}
		s.logger.Info("batch loaded", "path", batch, "queries", len(loaded), "kept", kept)
	}
	return queries, nil
}

func (s *Source) readBatch(ctx context.Context, batch string) ([]model.Query, error) {
	data, err := s.store.Get(ctx, batch)
	if err != nil {
		return nil, &ReadError{Path: batch, Err: err}
	}

	var queries []model.Query
	switch path.Ext(batch) {
	case ".csv":
		queries, err = parseCSV(data, batch)
	case ".parquet":
		queries, err = parseParquet(data, batch)
	default:
		err = fmt.Errorf("unsupported batch format %q", path.Ext(batch))
	}
	if err != nil {
		return nil, &ReadError{Path: batch, Err: err}
	}
	return queries, nil
}

func parseCSV(data []byte, batch string) ([]model.Query, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	queryCol, typeCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "query":
			queryCol = i
		case "type":
			typeCol = i
		}
	}
	if queryCol < 0 {
		return nil, fmt.Errorf("missing query column in header %v", header)
	}

	var queries []model.Query
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if queryCol >= len(record) {
			continue
		}
		text := strings.TrimSpace(record[queryCol])
		if text == "" {
			continue
		}
		queryType := ""
		if typeCol >= 0 && typeCol < len(record) {
			queryType = strings.TrimSpace(record[typeCol])
		}
		queries = append(queries, model.NewQuery(text, queryType, batch))
	}
	return queries, nil
}

type parquetQuery struct {
	Query string `parquet:"query"`
	Type  string `parquet:"type,optional"`
}

func parseParquet(data []byte, batch string) ([]model.Query, error) {
	rows, err := parquet.Read[parquetQuery](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode parquet: %w", err)
	}

	var queries []model.Query
	for _, row := range rows {
		text := strings.TrimSpace(row.Query)
		if text == "" {
			continue
		}
		queries = append(queries, model.NewQuery(text, strings.TrimSpace(row.Type), batch))
	}
	return queries, nil
}
