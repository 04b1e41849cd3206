package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/FranksOps/sift/internal/model"
	"github.com/FranksOps/sift/pkg/httpclient"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/retry"
)

// ensure MetaClient implements Provider
var _ Provider = (*MetaClient)(nil)

// MetaConfig configures the metasearch HTTP client.
type MetaConfig struct {
	APIKey   string
	Endpoint string
	// Engine selects the upstream engine bundle, e.g. "search_pro_ms".
	Engine string
	// RequestID tags calls for upstream accounting.
	RequestID string
	Timeout   time.Duration
	Limiter   *ratelimit.Limiter
	Retry     retry.Policy
	Logger    *slog.Logger
}

// MetaClient calls the metasearch endpoint and normalizes its payload.
type MetaClient struct {
	cfg    MetaConfig
	client *httpclient.Client
	logger *slog.Logger
}

// NewMetaClient creates a metasearch client.
func NewMetaClient(cfg MetaConfig) (*MetaClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("metasearch: API key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("metasearch: endpoint is required")
	}
	if cfg.Engine == "" {
		cfg.Engine = "search_pro_ms"
	}
	if cfg.RequestID == "" {
		cfg.RequestID = "sift"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &MetaClient{
		cfg:    cfg,
		client: httpclient.New(httpclient.Config{Timeout: cfg.Timeout}),
		logger: logger,
	}, nil
}

type metaRequest struct {
	SearchEngine string `json:"search_engine"`
	SearchQuery  string `json:"search_query"`
	QueryRewrite string `json:"query_rewrite"`
	RequestID    string `json:"request_id"`
}

type metaItem struct {
	Link         string `json:"link"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	SearchEngine string `json:"search_engine"`
}

type metaResponse struct {
	SearchResult []metaItem `json:"search_result"`
}

// Search issues one metasearch call for the query and returns up to topk
// normalized results. Transient failures are retried with backoff; the
// returned error is final.
func (c *MetaClient) Search(ctx context.Context, q model.Query, topk int) ([]model.SearchResult, error) {
	if topk <= 0 {
		return nil, fmt.Errorf("metasearch: topk must be positive, got %d", topk)
	}

	req := metaRequest{
		SearchEngine: c.cfg.Engine,
		SearchQuery:  q.Text,
		QueryRewrite: "false",
		RequestID:    c.cfg.RequestID,
	}

	var resp metaResponse
	err := retry.Do(ctx, c.cfg.Retry, func() error {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		resp = metaResponse{}
		err := c.client.PostJSON(ctx, c.cfg.Endpoint, map[string]string{"api-key": c.cfg.APIKey}, req, &resp)
		if err == nil {
			return nil
		}
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("metasearch query %q: %w", q.Text, err)
	}

	return c.normalize(q, resp.SearchResult, topk), nil
}

// normalize trims to topk, assigns 1-based ranks, parses hosts, and
// strips markup. Items with no URL or an unparsable host are dropped,
// matching the collection scripts.
func (c *MetaClient) normalize(q model.Query, items []metaItem, topk int) []model.SearchResult {
	if len(items) > topk {
		items = items[:topk]
	}

	results := make([]model.SearchResult, 0, len(items))
	for i, item := range items {
		if item.Link == "" {
			continue
		}
		u, err := url.Parse(item.Link)
		if err != nil || u.Host == "" {
			c.logger.Debug("dropping result with unparsable host", "query", q.Text, "url", item.Link)
			continue
		}

		results = append(results, model.SearchResult{
			QueryID:   q.ID,
			Query:     q.Text,
			QueryType: q.Type,
			Rank:      i + 1,
			URL:       item.Link,
			Title:     stripMarkup(item.Title),
			Content:   stripMarkup(item.Content),
			Host:      u.Host,
			Engine:    item.SearchEngine,
		})
	}
	return results
}
