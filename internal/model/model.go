// Package model defines the data types flowing through the collection
// pipeline: queries, raw search results, and scored rows.
package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// Query is a single search query read from an input batch.
// Queries are immutable once read and unique by Text within a run.
type Query struct {
	ID          string
	Text        string
	Type        string
	SourceBatch string
}

// QueryID derives a stable identifier from the query text. The same text
// always maps to the same ID, so a restored checkpoint can exclude
// already-processed queries without persisting full query text.
func QueryID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// NewQuery builds a Query with its derived ID.
func NewQuery(text, queryType, sourceBatch string) Query {
	return Query{
		ID:          QueryID(text),
		Text:        text,
		Type:        queryType,
		SourceBatch: sourceBatch,
	}
}

// SearchResult is one ranked result returned by the metasearch service
// for a query. Rank is 1-based and stable for a given response.
type SearchResult struct {
	QueryID   string
	Query     string
	QueryType string
	Rank      int
	URL       string
	Title     string
	Content   string
	Host      string
	Engine    string
}

// Authority scores are ordinal 1..4; 0 marks a permanently failed call.
// Relevance scores are ordinal 0..2; -1 marks a permanently failed call.
const (
	AuthorityMin    = 1
	AuthorityMax    = 4
	AuthorityFailed = 0

	RelevanceMin    = 0
	RelevanceMax    = 2
	RelevanceFailed = -1
)

// ScoredRow joins a SearchResult with its host authority score and its
// per-result relevance score. Rows are immutable once created; the
// aggregator only appends.
type ScoredRow struct {
	QueryID        string `json:"query_id" parquet:"query_id"`
	Query          string `json:"query" parquet:"query"`
	QueryType      string `json:"type" parquet:"type"`
	Rank           int    `json:"rank" parquet:"rank"`
	URL            string `json:"url" parquet:"url"`
	Title          string `json:"title" parquet:"title"`
	Content        string `json:"content" parquet:"content"`
	Host           string `json:"host" parquet:"host"`
	Engine         string `json:"search_engine" parquet:"search_engine"`
	AuthorityScore int    `json:"authority_score" parquet:"authority_score"`
	RelevanceScore int    `json:"relevance_score" parquet:"relevance_score"`
}

// HostRow is one row of the authority-hosts table. Hosts are
// deduplicated; the highest authority score observed for a host wins.
type HostRow struct {
	Host           string `json:"host" parquet:"host"`
	AuthorityScore int    `json:"authority_score" parquet:"authority_score"`
}

// QnARow is one row of the filtered-qna table: results that passed both
// the authority and relevance filter thresholds.
type QnARow struct {
	Query          string `json:"query" parquet:"query"`
	Type           string `json:"type" parquet:"type"`
	URL            string `json:"url" parquet:"url"`
	Title          string `json:"title" parquet:"title"`
	Content        string `json:"content" parquet:"content"`
	AuthorityScore int    `json:"authority_score" parquet:"authority_score"`
	RelevanceScore int    `json:"relevance_score" parquet:"relevance_score"`
}
