package sink

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/FranksOps/sift/internal/model"
)

func encodeResultsCSV(rows []model.ScoredRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"query_id", "query", "type", "rank", "url", "title", "content",
		"host", "search_engine", "authority_score", "relevance_score",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.QueryID,
			r.Query,
			r.QueryType,
			strconv.Itoa(r.Rank),
			r.URL,
			r.Title,
			r.Content,
			r.Host,
			r.Engine,
			strconv.Itoa(r.AuthorityScore),
			strconv.Itoa(r.RelevanceScore),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeHostsCSV(rows []model.HostRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"host", "authority_score"}); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Host, strconv.Itoa(r.AuthorityScore)}); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeQnACSV(rows []model.QnARow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"query", "type", "url", "title", "content",
		"authority_score", "relevance_score",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Query,
			r.Type,
			r.URL,
			r.Title,
			r.Content,
			strconv.Itoa(r.AuthorityScore),
			strconv.Itoa(r.RelevanceScore),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}
