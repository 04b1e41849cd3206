// Package report aggregates run statistics into the final summary: per
// table row counts, failure counts, and score distributions.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/sift/internal/model"
)

// Stats counts pipeline progress. The collector goroutine owns mutation;
// the checkpoint snapshot carries a copy so failure counts survive a
// restart.
type Stats struct {
	TotalQueries         int `json:"total_queries"`
	ProcessedQueries     int `json:"processed_queries"`
	SearchFailed         int `json:"search_failed"`
	AuthorityScoreFailed int `json:"authority_score_failed"`
	RelevanceScoreFailed int `json:"relevance_score_failed"`
	TotalResults         int `json:"total_results"`
}

// Summary describes a completed (or interrupted) run.
type Summary struct {
	Date  string
	RunID string
	Stats Stats

	AuthorityDistribution map[int]int
	RelevanceDistribution map[int]int

	ResultRows int
	HostRows   int
	QnARows    int

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Build assembles a Summary from the finished tables and counters.
func Build(date, runID string, stats Stats, rows []model.ScoredRow, hosts []model.HostRow, qna []model.QnARow, start, end time.Time) Summary {
	s := Summary{
		Date:                  date,
		RunID:                 runID,
		Stats:                 stats,
		AuthorityDistribution: make(map[int]int),
		RelevanceDistribution: make(map[int]int),
		ResultRows:            len(rows),
		HostRows:              len(hosts),
		QnARows:               len(qna),
		StartTime:             start,
		EndTime:               end,
		Duration:              end.Sub(start),
	}

	for _, h := range hosts {
		s.AuthorityDistribution[h.AuthorityScore]++
	}
	for _, r := range rows {
		s.RelevanceDistribution[r.RelevanceScore]++
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Sift Run Summary
----------------
Date:          {{.Date}}
Run:           {{.RunID}}
Duration:      {{.Duration}}

Queries:       {{.Stats.ProcessedQueries}}/{{.Stats.TotalQueries}} processed
Search failed: {{.Stats.SearchFailed}}
Score failed:  {{.Stats.AuthorityScoreFailed}} authority, {{.Stats.RelevanceScoreFailed}} relevance

Tables:
  all-results:     {{.ResultRows}} rows
  authority-hosts: {{.HostRows}} rows
  filtered-qna:    {{.QnARows}} rows

Authority tiers:
{{- range $score, $count := .AuthorityDistribution}}
  {{$score}}: {{$count}}
{{- else}}
  None
{{- end}}

Relevance scores:
{{- range $score, $count := .RelevanceDistribution}}
  {{$score}}: {{$count}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textSummary").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse summary template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	return nil
}
