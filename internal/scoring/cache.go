package scoring

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ensure AuthorityCache implements AuthorityScorer
var _ AuthorityScorer = (*AuthorityCache)(nil)

// AuthorityCache is a read-through memo in front of an AuthorityScorer.
// A host is scored at most once per run: concurrent first-time lookups
// for the same host collapse into a single in-flight remote call and all
// waiters receive its result. Failures are not cached, so a host whose
// call failed is retried if it appears again.
type AuthorityCache struct {
	scorer AuthorityScorer
	group  singleflight.Group

	mu     sync.RWMutex
	scores map[string]int
}

// NewAuthorityCache wraps scorer with a memo, optionally pre-seeded from
// a restored checkpoint.
func NewAuthorityCache(scorer AuthorityScorer, seed map[string]int) *AuthorityCache {
	scores := make(map[string]int, len(seed))
	for host, score := range seed {
		scores[host] = score
	}
	return &AuthorityCache{
		scorer: scorer,
		scores: scores,
	}
}

func (c *AuthorityCache) ScoreAuthority(ctx context.Context, host string) (int, error) {
	c.mu.RLock()
	score, ok := c.scores[host]
	c.mu.RUnlock()
	if ok {
		return score, nil
	}

	v, err, _ := c.group.Do(host, func() (any, error) {
		// A waiter may arrive after the winning call stored its result
		// and left the group; re-check before calling out.
		c.mu.RLock()
		score, ok := c.scores[host]
		c.mu.RUnlock()
		if ok {
			return score, nil
		}

		score, err := c.scorer.ScoreAuthority(ctx, host)
		if err != nil {
			return 0, err
		}

		c.mu.Lock()
		c.scores[host] = score
		c.mu.Unlock()
		return score, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// Snapshot returns a copy of the resolved scores for checkpointing.
func (c *AuthorityCache) Snapshot() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.scores))
	for host, score := range c.scores {
		out[host] = score
	}
	return out
}

// Len reports how many hosts are resolved.
func (c *AuthorityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scores)
}
