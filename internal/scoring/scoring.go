// Package scoring grades search results with an LLM-backed classifier:
// per-host authority on a 1..4 scale and per-result relevance on a 0..2
// scale. Authority scores are memoized per run with single-flight
// deduplication so a host is never scored twice.
package scoring

import "context"

// AuthorityScorer grades how trustworthy a host is. Scores are ordinal
// 1..4.
type AuthorityScorer interface {
	ScoreAuthority(ctx context.Context, host string) (int, error)
}

// RelevanceScorer grades how well a result answers a query. Scores are
// ordinal 0..2.
type RelevanceScorer interface {
	ScoreRelevance(ctx context.Context, query, title, content string) (int, error)
}
