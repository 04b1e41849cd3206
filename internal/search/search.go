// Package search talks to the metasearch service: one call per query,
// returning up to topk ranked results normalized into the pipeline's
// data model.
package search

import (
	"context"

	"github.com/FranksOps/sift/internal/model"
)

// Provider abstracts the metasearch collaborator. Implementations own
// their rate limiting and retry policy; the caller only sees success or
// a final failure after the attempt budget is spent.
type Provider interface {
	Search(ctx context.Context, query model.Query, topk int) ([]model.SearchResult, error)
}
