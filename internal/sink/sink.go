// Package sink writes the three correlated output tables of a run:
// every scored result, the distinct authority hosts, and the filtered
// question-and-answer rows. A table is written with a single atomic
// store Put, so readers never observe a partial table.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/FranksOps/sift/internal/model"
	"github.com/FranksOps/sift/internal/storage"
)

// Format selects the on-disk encoding of the output tables.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatParquet:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want csv or parquet)", s)
	}
}

// Table filenames, fixed so downstream jobs can locate them by name.
const (
	ResultsName = "all_results_with_scores"
	HostsName   = "authority_hosts"
	QnAName     = "filtered_qna"
)

// Tables holds the final content of one run's output tables.
type Tables struct {
	Results []model.ScoredRow
	Hosts   []model.HostRow
	QnA     []model.QnARow
}

// WriteError reports which table failed and where it was headed.
type WriteError struct {
	Table string
	Path  string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write table %s to %s: %v", e.Table, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer encodes tables and stores them under a run directory.
type Writer struct {
	store  storage.ObjectStore
	dir    string
	format Format
	logger *slog.Logger
}

// NewWriter creates a Writer placing tables under dir using the given
// format.
func NewWriter(store storage.ObjectStore, dir string, format Format, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, dir: dir, format: format, logger: logger}
}

// WriteAll writes the three tables. Each table is encoded fully in
// memory and stored with one Put; the first failure aborts the rest.
func (w *Writer) WriteAll(ctx context.Context, t *Tables) error {
	if err := w.writeTable(ctx, ResultsName, func() ([]byte, error) {
		return w.encodeResults(t.Results)
	}); err != nil {
		return err
	}
	if err := w.writeTable(ctx, HostsName, func() ([]byte, error) {
		return w.encodeHosts(t.Hosts)
	}); err != nil {
		return err
	}
	if err := w.writeTable(ctx, QnAName, func() ([]byte, error) {
		return w.encodeQnA(t.QnA)
	}); err != nil {
		return err
	}
	return nil
}

func (w *Writer) writeTable(ctx context.Context, name string, encode func() ([]byte, error)) error {
	p := w.tablePath(name)
	data, err := encode()
	if err != nil {
		return &WriteError{Table: name, Path: p, Err: err}
	}
	if err := w.store.Put(ctx, p, data); err != nil {
		return &WriteError{Table: name, Path: p, Err: err}
	}
	w.logger.Info("table written", "table", name, "path", p, "bytes", len(data))
	return nil
}

func (w *Writer) tablePath(name string) string {
	return path.Join(w.dir, name+"."+string(w.format))
}

func (w *Writer) encodeResults(rows []model.ScoredRow) ([]byte, error) {
	if w.format == FormatParquet {
		return encodeParquet(rows)
	}
	return encodeResultsCSV(rows)
}

func (w *Writer) encodeHosts(rows []model.HostRow) ([]byte, error) {
	if w.format == FormatParquet {
		return encodeParquet(rows)
	}
	return encodeHostsCSV(rows)
}

func (w *Writer) encodeQnA(rows []model.QnARow) ([]byte, error) {
	if w.format == FormatParquet {
		return encodeParquet(rows)
	}
	return encodeQnACSV(rows)
}
