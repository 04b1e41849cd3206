package aggregate

import (
	"testing"

	"github.com/FranksOps/sift/internal/model"
)

func row(query, host, url string, authority, relevance int) model.ScoredRow {
	return model.ScoredRow{
		QueryID:        model.QueryID(query),
		Query:          query,
		Host:           host,
		URL:            url,
		Title:          "t",
		Content:        "c",
		AuthorityScore: authority,
		RelevanceScore: relevance,
	}
}

// The worked example from the collection job: collection thresholds
// (2, 1), filter thresholds matching, hosts a.com (authority 3) and
// b.com (authority 1).
func TestThresholdExample(t *testing.T) {
	a := New(Config{AuthorityThreshold: 2, RelevanceThreshold: 1, FilterAuthorityScore: 2, FilterRelevanceScore: 1})

	a.Add(row("q1", "a.com", "https://a.com/1", 3, 2))
	a.Add(row("q1", "b.com", "https://b.com/1", 1, 2))
	a.Add(row("q2", "a.com", "https://a.com/2", 3, 0))

	if got := a.Len(); got != 3 {
		t.Errorf("all-results should keep every row, got %d", got)
	}

	hosts := a.Hosts()
	if len(hosts) != 1 || hosts[0].Host != "a.com" {
		t.Fatalf("expected only a.com in authority-hosts, got %v", hosts)
	}

	qna := a.QnA()
	if len(qna) != 1 {
		t.Fatalf("expected 1 qna row, got %d", len(qna))
	}
	if qna[0].URL != "https://a.com/1" {
		t.Errorf("expected the relevant a.com row, got %v", qna[0])
	}
}

func TestHostDedupKeepsMaxScore(t *testing.T) {
	a := New(Config{AuthorityThreshold: 2, FilterAuthorityScore: 4, FilterRelevanceScore: 2})

	a.Add(row("q1", "a.com", "https://a.com/1", 2, 0))
	a.Add(row("q2", "a.com", "https://a.com/2", 3, 0))
	a.Add(row("q3", "a.com", "https://a.com/3", 2, 0))

	hosts := a.Hosts()
	if len(hosts) != 1 {
		t.Fatalf("expected 1 host, got %d", len(hosts))
	}
	if hosts[0].AuthorityScore != 3 {
		t.Errorf("expected max score 3, got %d", hosts[0].AuthorityScore)
	}
}

func TestQnADedupByQueryURL(t *testing.T) {
	a := New(Config{AuthorityThreshold: 2, RelevanceThreshold: 1, FilterAuthorityScore: 4, FilterRelevanceScore: 2})

	a.Add(row("q1", "a.com", "https://a.com/1", 4, 2))
	a.Add(row("q1", "a.com", "https://a.com/1", 4, 2))
	a.Add(row("q2", "a.com", "https://a.com/1", 4, 2)) // different query, same url

	if got := len(a.QnA()); got != 2 {
		t.Errorf("expected 2 qna rows after (query,url) dedup, got %d", got)
	}
}

func TestFilterPairIsStricterThanCollectionPair(t *testing.T) {
	a := New(DefaultConfig) // collection (2,1), filter (4,2)

	a.Add(row("q1", "a.com", "https://a.com/1", 3, 2)) // passes collection, fails filter authority
	a.Add(row("q2", "b.com", "https://b.com/1", 4, 1)) // passes collection, fails filter relevance
	a.Add(row("q3", "c.com", "https://c.com/1", 4, 2)) // passes both

	if got := len(a.Hosts()); got != 3 {
		t.Errorf("expected 3 authority hosts, got %d", got)
	}
	qna := a.QnA()
	if len(qna) != 1 || qna[0].Query != "q3" {
		t.Fatalf("expected only q3 in filtered qna, got %v", qna)
	}
}

// Raising either filter threshold never grows the filtered table.
func TestFilterThresholdMonotonicity(t *testing.T) {
	rows := []model.ScoredRow{
		row("q1", "a.com", "https://a.com/1", 4, 2),
		row("q2", "b.com", "https://b.com/1", 3, 2),
		row("q3", "c.com", "https://c.com/1", 4, 1),
		row("q4", "d.com", "https://d.com/1", 2, 2),
		row("q5", "e.com", "https://e.com/1", 3, 1),
	}

	count := func(filterAuthority, filterRelevance int) int {
		a := New(Config{AuthorityThreshold: 2, RelevanceThreshold: 1, FilterAuthorityScore: filterAuthority, FilterRelevanceScore: filterRelevance})
		for _, r := range rows {
			a.Add(r)
		}
		return len(a.QnA())
	}

	for fa := 1; fa < 4; fa++ {
		for fr := 0; fr < 2; fr++ {
			if count(fa+1, fr) > count(fa, fr) {
				t.Errorf("raising filter authority %d->%d grew the table", fa, fa+1)
			}
			if count(fa, fr+1) > count(fa, fr) {
				t.Errorf("raising filter relevance %d->%d grew the table", fr, fr+1)
			}
		}
	}
}

// Every qna row's host must appear in authority-hosts, and every
// authority host must come from some accumulated row.
func TestTableContainment(t *testing.T) {
	a := New(DefaultConfig)
	a.Add(row("q1", "a.com", "https://a.com/1", 4, 2))
	a.Add(row("q2", "b.com", "https://b.com/1", 1, 2))
	a.Add(row("q3", "c.com", "https://c.com/1", 3, 0))

	rowHosts := make(map[string]bool)
	for _, r := range a.Rows() {
		rowHosts[r.Host] = true
	}
	authorityHosts := make(map[string]bool)
	for _, h := range a.Hosts() {
		if !rowHosts[h.Host] {
			t.Errorf("authority host %s has no backing row", h.Host)
		}
		authorityHosts[h.Host] = true
	}

	var qnaHost string
	for _, q := range a.QnA() {
		// recover the host from the matching row
		for _, r := range a.Rows() {
			if r.Query == q.Query && r.URL == q.URL {
				qnaHost = r.Host
			}
		}
		if !authorityHosts[qnaHost] {
			t.Errorf("qna row %s/%s host %s missing from authority-hosts", q.Query, q.URL, qnaHost)
		}
	}
}

func TestRestoreRebuildsDerivedViews(t *testing.T) {
	a := New(DefaultConfig)
	a.Add(row("q1", "a.com", "https://a.com/1", 4, 2))
	a.Add(row("q2", "b.com", "https://b.com/1", 3, 1))
	a.Add(row("q3", "a.com", "https://a.com/2", 4, 2))

	restored := Restore(DefaultConfig, a.Rows())

	if restored.Len() != a.Len() {
		t.Errorf("row count mismatch: %d vs %d", restored.Len(), a.Len())
	}
	if len(restored.Hosts()) != len(a.Hosts()) {
		t.Errorf("host count mismatch: %d vs %d", len(restored.Hosts()), len(a.Hosts()))
	}
	if len(restored.QnA()) != len(a.QnA()) {
		t.Errorf("qna count mismatch: %d vs %d", len(restored.QnA()), len(a.QnA()))
	}

	// Continuing accumulation after restore dedups against restored state.
	restored.Add(row("q1", "a.com", "https://a.com/1", 4, 2))
	if restored.Len() != 4 {
		t.Errorf("all-results always appends, got %d", restored.Len())
	}
	if len(restored.QnA()) != len(a.QnA()) {
		t.Errorf("duplicate qna row slipped through after restore")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	a := New(DefaultConfig)
	a.Add(row("q1", "a.com", "https://a.com/1", 4, 2))

	rows := a.Rows()
	rows[0].Query = "mutated"
	if a.Rows()[0].Query != "q1" {
		t.Error("Rows() must return a copy")
	}

	hosts := a.Hosts()
	hosts[0].AuthorityScore = 0
	if a.Hosts()[0].AuthorityScore != 4 {
		t.Error("Hosts() must return a copy")
	}
}
