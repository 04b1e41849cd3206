// Package pipeline orchestrates one collection run: load the day's
// queries, fan each one out to the metasearch service, score every
// result for host authority and query relevance, and accumulate the
// three output tables with periodic checkpointing along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/sift/internal/aggregate"
	"github.com/FranksOps/sift/internal/checkpoint"
	"github.com/FranksOps/sift/internal/faillog"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/model"
	"github.com/FranksOps/sift/internal/query"
	"github.com/FranksOps/sift/internal/report"
	"github.com/FranksOps/sift/internal/scoring"
	"github.com/FranksOps/sift/internal/search"
	"github.com/FranksOps/sift/internal/sink"
)

// Config holds the run parameters the orchestrator needs directly.
type Config struct {
	Date       string
	RunID      string
	InputPath  string
	TopK       int
	MaxWorkers int
	Thresholds aggregate.Config
	// FreshStart discards a corrupt checkpoint instead of failing.
	FreshStart bool
}

// TableMirror receives a copy of the final tables, e.g. a Postgres
// database next to the file outputs. Mirror failures are logged, never
// fatal.
type TableMirror interface {
	WriteAll(ctx context.Context, runDate string, t *sink.Tables) error
}

// Pipeline wires the collaborators of one run. Fails, Checkpoint and
// Mirror are optional; everything else is required.
type Pipeline struct {
	Config     Config
	Source     *query.Source
	Provider   search.Provider
	Authority  scoring.AuthorityScorer
	Relevance  scoring.RelevanceScorer
	Checkpoint *checkpoint.Manager
	Writer     *sink.Writer
	Mirror     TableMirror
	Fails      *faillog.Log
	Logger     *slog.Logger
}

// completion is one finished query travelling from a worker to the
// collector. aborted marks a query whose search or scoring was cut
// short by run-level cancellation; the collector must not count it as
// processed, or a resumed run would skip it forever.
type completion struct {
	query     model.Query
	rows      []model.ScoredRow
	failures  []faillog.Entry
	searchErr error
	aborted   bool
}

// Run executes the pipeline to completion or cancellation. On success
// the three output tables are written and a run summary returned. On
// cancellation the checkpoint is flushed so a later run can resume, and
// the context error is returned.
func (p *Pipeline) Run(ctx context.Context) (report.Summary, error) {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	start := time.Now().UTC()

	snap, err := p.loadCheckpoint(ctx)
	if err != nil {
		return report.Summary{}, err
	}

	var (
		agg          *aggregate.Aggregator
		cache        *scoring.AuthorityCache
		stats        report.Stats
		processed    map[string]struct{}
		processedIDs []string
	)
	if snap != nil {
		agg = aggregate.Restore(p.Config.Thresholds, snap.Rows)
		cache = scoring.NewAuthorityCache(p.Authority, snap.AuthorityCache)
		stats = snap.Stats
		processed = snap.Processed()
		processedIDs = append(processedIDs, snap.ProcessedQueryIDs...)
	} else {
		agg = aggregate.New(p.Config.Thresholds)
		cache = scoring.NewAuthorityCache(p.Authority, nil)
		processed = map[string]struct{}{}
	}

	queries, err := p.loadQueries(ctx, processed)
	if err != nil {
		return report.Summary{}, err
	}
	stats.TotalQueries = len(processedIDs) + len(queries)

	p.Logger.Info("run starting",
		"run_id", p.Config.RunID,
		"date", p.Config.Date,
		"queries", len(queries),
		"resumed", len(processedIDs),
		"workers", p.Config.MaxWorkers)

	jobs := make(chan model.Query, len(queries))
	for _, q := range queries {
		jobs <- q
	}
	close(jobs)

	completions := make(chan completion, p.Config.MaxWorkers)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.Config.MaxWorkers; i++ {
		g.Go(func() error {
			for q := range jobs {
				// Stop taking new work once cancelled, but always
				// deliver a query already in flight; the collector
				// drains until all workers are done.
				if err := gCtx.Err(); err != nil {
					return err
				}
				completions <- p.processQuery(gCtx, q, cache)
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(completions)
	}()

	// Single collector: the aggregator, stats, faillog and checkpoint
	// are only touched here.
	for c := range completions {
		if c.aborted {
			// Cut short by cancellation, not a real failure. Leaving it
			// out of the processed set makes a resumed run redo it.
			continue
		}
		p.collect(ctx, c, agg, &stats)
		processed[c.query.ID] = struct{}{}
		processedIDs = append(processedIDs, c.query.ID)

		if p.Checkpoint != nil && p.Checkpoint.MarkProcessed() {
			p.flush(ctx, processedIDs, agg, cache, &stats)
		}
	}

	if err := g.Wait(); err != nil {
		// Interrupted: persist progress so the next run resumes here.
		if p.Checkpoint != nil {
			p.flush(context.WithoutCancel(ctx), processedIDs, agg, cache, &stats)
		}
		return report.Summary{}, fmt.Errorf("run interrupted: %w", err)
	}

	if p.Checkpoint != nil {
		if err := p.Checkpoint.Finalize(ctx, p.snapshot(processedIDs, agg, cache, &stats)); err != nil {
			return report.Summary{}, fmt.Errorf("finalize checkpoint: %w", err)
		}
	}

	out := &sink.Tables{
		Results: agg.Rows(),
		Hosts:   agg.Hosts(),
		QnA:     agg.QnA(),
	}
	if err := p.Writer.WriteAll(ctx, out); err != nil {
		return report.Summary{}, err
	}
	if p.Mirror != nil {
		if err := p.Mirror.WriteAll(ctx, p.Config.Date, out); err != nil {
			p.Logger.Error("table mirror failed", "err", err)
		}
	}

	end := time.Now().UTC()
	summary := report.Build(p.Config.Date, p.Config.RunID, stats, out.Results, out.Hosts, out.QnA, start, end)
	p.Logger.Info("run complete",
		"run_id", p.Config.RunID,
		"processed", stats.ProcessedQueries,
		"rows", len(out.Results),
		"hosts", len(out.Hosts),
		"qna", len(out.QnA),
		"duration", end.Sub(start))
	return summary, nil
}

func (p *Pipeline) loadCheckpoint(ctx context.Context) (*checkpoint.Snapshot, error) {
	if p.Checkpoint == nil {
		return nil, nil
	}
	snap, err := p.Checkpoint.Load(ctx)
	if err != nil {
		if errors.Is(err, checkpoint.ErrCorrupt) && p.Config.FreshStart {
			p.Logger.Warn("discarding corrupt checkpoint", "err", err)
			return nil, nil
		}
		return nil, err
	}
	return snap, nil
}

func (p *Pipeline) loadQueries(ctx context.Context, processed map[string]struct{}) ([]model.Query, error) {
	batches, err := p.Source.Resolve(ctx, p.Config.InputPath, p.Config.Date)
	if err != nil {
		return nil, err
	}
	return p.Source.Load(ctx, batches, processed)
}

// cancelled distinguishes an operation aborted by context cancellation
// from a genuine remote failure. Per-request deadlines surface as
// DeadlineExceeded with the run context still live, so the run context
// is consulted as well.
func cancelled(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || ctx.Err() != nil
}

// processQuery runs one query end to end: search, then authority and
// relevance scoring for every result, scores resolved concurrently.
func (p *Pipeline) processQuery(ctx context.Context, q model.Query, cache *scoring.AuthorityCache) completion {
	results, err := p.Provider.Search(ctx, q, p.Config.TopK)
	metrics.RecordSearch(err)
	if err != nil {
		if cancelled(ctx, err) {
			return completion{query: q, aborted: true}
		}
		return completion{
			query:     q,
			searchErr: err,
			failures: []faillog.Entry{{
				RunID: p.Config.RunID,
				Query: q.Text,
				Stage: faillog.StageSearch,
				Error: err.Error(),
			}},
		}
	}

	type scored struct {
		row      model.ScoredRow
		authErr  error
		relErr   error
	}
	out := make([]scored, len(results))

	var wg sync.WaitGroup
	for i, res := range results {
		wg.Add(1)
		go func(i int, res model.SearchResult) {
			defer wg.Done()

			var auth, rel int
			var authErr, relErr error

			var inner sync.WaitGroup
			inner.Add(2)
			go func() {
				defer inner.Done()
				t0 := time.Now()
				auth, authErr = cache.ScoreAuthority(ctx, res.Host)
				metrics.RecordScore("authority", time.Since(t0), authErr)
			}()
			go func() {
				defer inner.Done()
				t0 := time.Now()
				rel, relErr = p.Relevance.ScoreRelevance(ctx, res.Query, res.Title, res.Content)
				metrics.RecordScore("relevance", time.Since(t0), relErr)
			}()
			inner.Wait()

			out[i] = scored{
				row: model.ScoredRow{
					QueryID:        res.QueryID,
					Query:          res.Query,
					QueryType:      res.QueryType,
					Rank:           res.Rank,
					URL:            res.URL,
					Title:          res.Title,
					Content:        res.Content,
					Host:           res.Host,
					Engine:         res.Engine,
					AuthorityScore: auth,
					RelevanceScore: rel,
				},
				authErr: authErr,
				relErr:  relErr,
			}
		}(i, res)
	}
	wg.Wait()

	c := completion{query: q}
	for _, s := range out {
		// A score cut short by cancellation leaves the whole query
		// incomplete; abort it so a resumed run scores it from scratch.
		if cancelled(ctx, s.authErr) || cancelled(ctx, s.relErr) {
			return completion{query: q, aborted: true}
		}
		// A row with a permanently failed score never reaches the
		// output tables; the faillog keeps it replayable.
		if s.authErr != nil {
			c.failures = append(c.failures, faillog.Entry{
				RunID: p.Config.RunID,
				Query: s.row.Query,
				Host:  s.row.Host,
				URL:   s.row.URL,
				Stage: faillog.StageAuthority,
				Error: s.authErr.Error(),
			})
			continue
		}
		if s.relErr != nil {
			c.failures = append(c.failures, faillog.Entry{
				RunID: p.Config.RunID,
				Query: s.row.Query,
				Host:  s.row.Host,
				URL:   s.row.URL,
				Stage: faillog.StageRelevance,
				Error: s.relErr.Error(),
			})
			continue
		}
		c.rows = append(c.rows, s.row)
	}
	return c
}

func (p *Pipeline) collect(ctx context.Context, c completion, agg *aggregate.Aggregator, stats *report.Stats) {
	stats.ProcessedQueries++
	metrics.RecordQuery(c.searchErr)
	if c.searchErr != nil {
		stats.SearchFailed++
		p.Logger.Warn("search failed", "query", c.query.Text, "err", c.searchErr)
	}

	for _, f := range c.failures {
		switch f.Stage {
		case faillog.StageAuthority:
			stats.AuthorityScoreFailed++
		case faillog.StageRelevance:
			stats.RelevanceScoreFailed++
		}
		if p.Fails != nil {
			if err := p.Fails.Record(ctx, f); err != nil {
				p.Logger.Warn("faillog write failed", "stage", f.Stage, "err", err)
			}
		}
	}

	for _, row := range c.rows {
		agg.Add(row)
		stats.TotalResults++
		metrics.RowsAccumulated.Inc()
	}

	if stats.ProcessedQueries%50 == 0 {
		p.Logger.Info("progress",
			"processed", stats.ProcessedQueries,
			"total", stats.TotalQueries,
			"rows", agg.Len())
	}
}

func (p *Pipeline) snapshot(processedIDs []string, agg *aggregate.Aggregator, cache *scoring.AuthorityCache, stats *report.Stats) *checkpoint.Snapshot {
	return &checkpoint.Snapshot{
		RunID:             p.Config.RunID,
		Date:              p.Config.Date,
		ProcessedQueryIDs: processedIDs,
		Rows:              agg.Rows(),
		AuthorityCache:    cache.Snapshot(),
		Stats:             *stats,
	}
}

func (p *Pipeline) flush(ctx context.Context, processedIDs []string, agg *aggregate.Aggregator, cache *scoring.AuthorityCache, stats *report.Stats) {
	err := p.Checkpoint.Flush(ctx, p.snapshot(processedIDs, agg, cache, stats))
	metrics.RecordCheckpointFlush(err)
	if err != nil {
		p.Logger.Error("checkpoint flush failed", "err", err)
	}
}
