// Package metrics exposes Prometheus counters for the collection
// pipeline and an optional /metrics HTTP endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_queries_total",
			Help: "Queries processed, by outcome",
		},
		[]string{"status"},
	)

	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_search_requests_total",
			Help: "Metasearch calls issued, by outcome",
		},
		[]string{"status"},
	)

	ScoreRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_score_requests_total",
			Help: "Scoring calls resolved, by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	ScoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sift_score_duration_seconds",
			Help:    "Duration of scoring calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	RowsAccumulated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sift_rows_accumulated_total",
			Help: "Scored rows added to the all-results table",
		},
	)

	CheckpointFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_checkpoint_flushes_total",
			Help: "Checkpoint flushes, by outcome",
		},
		[]string{"status"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordQuery counts one completed query.
func RecordQuery(err error) {
	QueriesTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordSearch counts one metasearch call.
func RecordSearch(err error) {
	SearchRequestsTotal.WithLabelValues(outcome(err)).Inc()
}

// RecordScore counts one scoring call and its duration. Kind is
// "authority" or "relevance".
func RecordScore(kind string, d time.Duration, err error) {
	ScoreRequestsTotal.WithLabelValues(kind, outcome(err)).Inc()
	ScoreDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordCheckpointFlush counts one checkpoint flush attempt.
func RecordCheckpointFlush(err error) {
	CheckpointFlushesTotal.WithLabelValues(outcome(err)).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
