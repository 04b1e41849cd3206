package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FranksOps/sift/internal/aggregate"
	"github.com/FranksOps/sift/internal/checkpoint"
	"github.com/FranksOps/sift/internal/config"
	"github.com/FranksOps/sift/internal/faillog"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/query"
	"github.com/FranksOps/sift/internal/report"
	"github.com/FranksOps/sift/internal/scoring"
	"github.com/FranksOps/sift/internal/search"
	"github.com/FranksOps/sift/internal/sink"
	pgsink "github.com/FranksOps/sift/internal/sink/postgres"
	"github.com/FranksOps/sift/internal/storage/localfs"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/retry"
)

var runCfg = config.DefaultPipeline()

var verbose bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one collection run",
	Long: `Loads the date's query batches, searches and scores every query, and
writes the three output tables. An interrupted run leaves a checkpoint
behind and resumes from it on the next invocation.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runCfg.Date, "date", config.DefaultDate(), "run date (YYYYMMDD)")
	f.StringVarP(&runCfg.InputPath, "input", "i", "", "query batch file, directory, or prefix")
	f.StringVarP(&runCfg.OutputDir, "output", "o", "", "output directory for the run's tables")
	f.StringVar(&runCfg.Format, "format", runCfg.Format, "output table format (csv or parquet)")
	f.StringVar(&runCfg.FaillogDB, "faillog", "", "SQLite failure log path (empty = disabled)")
	f.StringVar(&runCfg.PostgresDSN, "postgres", "", "also mirror tables into Postgres at this DSN")
	f.IntVar(&runCfg.TopK, "topk", runCfg.TopK, "results kept per query")
	f.IntVar(&runCfg.MaxWorkers, "workers", runCfg.MaxWorkers, "concurrent query workers")
	f.Float64Var(&runCfg.SearchRPS, "search-rps", runCfg.SearchRPS, "metasearch request rate limit")
	f.Float64Var(&runCfg.ScoreRPS, "score-rps", runCfg.ScoreRPS, "scoring request rate limit")
	f.IntVar(&runCfg.AuthorityThreshold, "authority-threshold", runCfg.AuthorityThreshold, "minimum authority for the hosts table")
	f.IntVar(&runCfg.RelevanceThreshold, "relevance-threshold", runCfg.RelevanceThreshold, "minimum relevance to consider a result")
	f.IntVar(&runCfg.FilterAuthorityScore, "filter-authority", runCfg.FilterAuthorityScore, "minimum authority for the qna table")
	f.IntVar(&runCfg.FilterRelevanceScore, "filter-relevance", runCfg.FilterRelevanceScore, "minimum relevance for the qna table")
	f.IntVar(&runCfg.CheckpointInterval, "checkpoint-interval", runCfg.CheckpointInterval, "queries between checkpoint flushes (0 = final only)")
	f.StringVar(&runCfg.CheckpointMirror, "checkpoint-mirror", "", "secondary path for best-effort checkpoint copies")
	f.BoolVar(&runCfg.FreshStart, "fresh", false, "discard a corrupt checkpoint instead of failing")
	f.BoolVar(&runCfg.SkipBadBatches, "skip-bad-batches", false, "warn and continue on unreadable batch files")
	f.IntVar(&runCfg.MetricsPort, "metrics-port", 0, "expose Prometheus metrics on this port (0 = disabled)")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := runCfg.Validate(); err != nil {
		return err
	}
	api := config.APIFromEnv()
	if err := api.Validate(); err != nil {
		return err
	}
	format, err := sink.ParseFormat(runCfg.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runCfg.MetricsPort > 0 {
		srv := metrics.Start(runCfg.MetricsPort)
		defer srv.Stop(context.Background())
	}

	provider, err := search.NewMetaClient(search.MetaConfig{
		APIKey:   api.MetasearchAPIKey,
		Endpoint: api.MetasearchEndpoint,
		Limiter:  ratelimit.New(runCfg.SearchRPS, 1, 0.2),
		Retry:    retry.DefaultPolicy,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	scorer, err := scoring.NewLLMScorer(scoring.LLMConfig{
		APIKey:         api.LLMAPIKey,
		BaseURL:        api.LLMBaseURL,
		AuthorityModel: api.AuthorityModel,
		RelevanceModel: api.RelevanceModel,
		Limiter:        ratelimit.New(runCfg.ScoreRPS, 1, 0.2),
		Retry:          retry.DefaultPolicy,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	store := localfs.New()
	source := query.NewSource(store, logger)
	source.SkipOnError = runCfg.SkipBadBatches

	var fails *faillog.Log
	if runCfg.FaillogDB != "" {
		fails, err = faillog.Open(runCfg.FaillogDB)
		if err != nil {
			return err
		}
		defer fails.Close()
	}

	runDir := filepath.Join(runCfg.OutputDir, runCfg.Date)
	var ckptOpts []checkpoint.Option
	if runCfg.CheckpointMirror != "" {
		ckptOpts = append(ckptOpts, checkpoint.WithMirror(store, filepath.Join(runCfg.CheckpointMirror, runCfg.Date, "progress.json")))
	}
	ckpt := checkpoint.NewManager(store, filepath.Join(runDir, "progress.json"), runCfg.CheckpointInterval, logger, ckptOpts...)

	var mirror pipeline.TableMirror
	if runCfg.PostgresDSN != "" {
		pg, err := pgsink.New(ctx, runCfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		mirror = pg
	}

	p := &pipeline.Pipeline{
		Config: pipeline.Config{
			Date:       runCfg.Date,
			RunID:      uuid.New().String(),
			InputPath:  runCfg.InputPath,
			TopK:       runCfg.TopK,
			MaxWorkers: runCfg.MaxWorkers,
			Thresholds: aggregate.Config{
				AuthorityThreshold:   runCfg.AuthorityThreshold,
				RelevanceThreshold:   runCfg.RelevanceThreshold,
				FilterAuthorityScore: runCfg.FilterAuthorityScore,
				FilterRelevanceScore: runCfg.FilterRelevanceScore,
			},
			FreshStart: runCfg.FreshStart,
		},
		Source:     source,
		Provider:   provider,
		Authority:  scorer,
		Relevance:  scorer,
		Checkpoint: ckpt,
		Writer:     sink.NewWriter(store, runDir, format, logger),
		Mirror:     mirror,
		Fails:      fails,
		Logger:     logger,
	}

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if err := writeSummary(runDir, summary); err != nil {
		return err
	}
	return report.WriteText(os.Stdout, summary)
}

func writeSummary(runDir string, summary report.Summary) error {
	path := filepath.Join(runDir, "summary.json")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary %s: %w", path, err)
	}
	defer f.Close()
	return report.WriteJSON(f, summary)
}
