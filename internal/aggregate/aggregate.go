// Package aggregate merges scored search results into the three output
// views: the full audit table, the deduplicated authority-hosts table,
// and the threshold-filtered qna table. The aggregator is a single-writer
// structure: only the pipeline's collector goroutine mutates it, so no
// locking is needed and flush snapshots never race accumulation.
package aggregate

import "github.com/FranksOps/sift/internal/model"

// Config holds the two independent threshold pairs. The collection pair
// gates what enters the authority-hosts and qna views at all; the filter
// pair is the typically stricter final cut for the qna view. Production
// configurations set them differently (e.g. collection authority 2,
// filter authority 4), so they are never assumed equal.
type Config struct {
	AuthorityThreshold   int
	RelevanceThreshold   int
	FilterAuthorityScore int
	FilterRelevanceScore int
}

// DefaultConfig mirrors the daily collection job.
var DefaultConfig = Config{
	AuthorityThreshold:   2,
	RelevanceThreshold:   1,
	FilterAuthorityScore: 4,
	FilterRelevanceScore: 2,
}

type qnaKey struct {
	query string
	url   string
}

// Aggregator accumulates scored rows and maintains the three views
// incrementally, in insertion order.
type Aggregator struct {
	cfg Config

	rows []model.ScoredRow

	hosts     []model.HostRow
	hostIndex map[string]int

	qna     []model.QnARow
	qnaSeen map[qnaKey]struct{}
}

// New creates an empty aggregator.
func New(cfg Config) *Aggregator {
	return &Aggregator{
		cfg:       cfg,
		hostIndex: make(map[string]int),
		qnaSeen:   make(map[qnaKey]struct{}),
	}
}

// Restore rebuilds an aggregator from checkpointed rows. The derived
// views are reconstructed by replaying the rows, so the checkpoint only
// needs to persist the row sequence.
func Restore(cfg Config, rows []model.ScoredRow) *Aggregator {
	a := New(cfg)
	for _, row := range rows {
		a.Add(row)
	}
	return a
}

// Add appends one scored row and updates the derived views. Rows are
// immutable once added.
func (a *Aggregator) Add(row model.ScoredRow) {
	a.rows = append(a.rows, row)

	if row.AuthorityScore < a.cfg.AuthorityThreshold {
		return
	}

	// Hosts are deduplicated; the highest score observed wins. With the
	// authority cache in front of the scorer the score is stable within
	// a run, but checkpoint merges keep the max to be safe.
	if i, ok := a.hostIndex[row.Host]; ok {
		if row.AuthorityScore > a.hosts[i].AuthorityScore {
			a.hosts[i].AuthorityScore = row.AuthorityScore
		}
	} else {
		a.hostIndex[row.Host] = len(a.hosts)
		a.hosts = append(a.hosts, model.HostRow{Host: row.Host, AuthorityScore: row.AuthorityScore})
	}

	if row.RelevanceScore < a.cfg.RelevanceThreshold {
		return
	}
	if row.AuthorityScore < a.cfg.FilterAuthorityScore || row.RelevanceScore < a.cfg.FilterRelevanceScore {
		return
	}

	key := qnaKey{query: row.Query, url: row.URL}
	if _, ok := a.qnaSeen[key]; ok {
		return
	}
	a.qnaSeen[key] = struct{}{}
	a.qna = append(a.qna, model.QnARow{
		Query:          row.Query,
		Type:           row.QueryType,
		URL:            row.URL,
		Title:          row.Title,
		Content:        row.Content,
		AuthorityScore: row.AuthorityScore,
		RelevanceScore: row.RelevanceScore,
	})
}

// Rows returns a copy of the all-results view in insertion order.
func (a *Aggregator) Rows() []model.ScoredRow {
	out := make([]model.ScoredRow, len(a.rows))
	copy(out, a.rows)
	return out
}

// Hosts returns a copy of the authority-hosts view in insertion order.
func (a *Aggregator) Hosts() []model.HostRow {
	out := make([]model.HostRow, len(a.hosts))
	copy(out, a.hosts)
	return out
}

// QnA returns a copy of the filtered-qna view in insertion order.
func (a *Aggregator) QnA() []model.QnARow {
	out := make([]model.QnARow, len(a.qna))
	copy(out, a.qna)
	return out
}

// Len reports the number of accumulated rows.
func (a *Aggregator) Len() int {
	return len(a.rows)
}
