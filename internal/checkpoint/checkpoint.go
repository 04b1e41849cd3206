// Package checkpoint persists pipeline progress so an interrupted run
// can resume without redoing completed work. A snapshot carries the
// processed query IDs, the accumulated rows, and the resolved authority
// cache; everything else is re-derived on load.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/model"
	"github.com/FranksOps/sift/internal/report"
	"github.com/FranksOps/sift/internal/storage"
)

// ErrCorrupt marks a snapshot that exists but cannot be decoded. Callers
// must either fail fast or explicitly opt into a clean start; corrupt
// state is never merged.
var ErrCorrupt = errors.New("checkpoint: corrupt snapshot")

// State tracks the manager's lifecycle.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateAccumulating
	StateFlushing
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoaded:
		return "loaded"
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Snapshot is the serialized form of pipeline progress, keyed by run
// date. Rows are the full accumulated sequence; the derived views are
// rebuilt by replay on restore.
type Snapshot struct {
	RunID             string            `json:"run_id"`
	Date              string            `json:"date"`
	ProcessedQueryIDs []string          `json:"processed_query_ids"`
	Rows              []model.ScoredRow `json:"rows"`
	AuthorityCache    map[string]int    `json:"authority_cache"`
	Stats             report.Stats      `json:"stats"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Processed returns the processed IDs as a set.
func (s *Snapshot) Processed() map[string]struct{} {
	out := make(map[string]struct{}, len(s.ProcessedQueryIDs))
	for _, id := range s.ProcessedQueryIDs {
		out[id] = struct{}{}
	}
	return out
}

// Manager owns checkpoint persistence. It is used from the pipeline's
// single collector goroutine; it is not safe for concurrent use.
type Manager struct {
	store      storage.ObjectStore
	path       string
	mirror     storage.ObjectStore
	mirrorPath string
	interval   int

	state      State
	sinceFlush int
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithMirror adds a best-effort secondary destination for every flush,
// e.g. a remote object store next to the local checkpoint. Mirror
// failures are logged, never fatal.
func WithMirror(store storage.ObjectStore, path string) Option {
	return func(m *Manager) {
		m.mirror = store
		m.mirrorPath = path
	}
}

// NewManager creates a checkpoint manager writing to path through store,
// flushing every interval processed queries. interval <= 0 disables
// periodic flushing (final flush still happens).
func NewManager(store storage.ObjectStore, path string, interval int, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:    store,
		path:     path,
		interval: interval,
		state:    StateEmpty,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// Load restores the previous snapshot if one exists. It returns
// (nil, nil) for a clean start and wraps ErrCorrupt when a snapshot
// exists but cannot be decoded or fails basic validation.
func (m *Manager) Load(ctx context.Context) (*Snapshot, error) {
	data, err := m.store.Get(ctx, m.path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.state = StateAccumulating
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", m.path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, m.path, err)
	}
	if snap.Date == "" || snap.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: %s: missing required fields", ErrCorrupt, m.path)
	}
	if len(snap.ProcessedQueryIDs) == 0 && len(snap.Rows) > 0 {
		return nil, fmt.Errorf("%w: %s: rows without processed queries", ErrCorrupt, m.path)
	}

	m.state = StateLoaded
	m.logger.Info("checkpoint restored",
		"path", m.path,
		"processed", len(snap.ProcessedQueryIDs),
		"rows", len(snap.Rows),
		"hosts_cached", len(snap.AuthorityCache),
		"taken_at", snap.CreatedAt)

	m.state = StateAccumulating
	return &snap, nil
}

// MarkProcessed records one completed query and reports whether a
// periodic flush is due.
func (m *Manager) MarkProcessed() bool {
	if m.interval <= 0 {
		return false
	}
	m.sinceFlush++
	return m.sinceFlush >= m.interval
}

// Flush serializes the snapshot to the primary store and, best-effort,
// to the mirror. The manager returns to ACCUMULATING afterwards.
func (m *Manager) Flush(ctx context.Context, snap *Snapshot) error {
	if m.state == StateFinalized {
		return errors.New("checkpoint: flush after finalize")
	}
	m.state = StateFlushing
	defer func() {
		if m.state == StateFlushing {
			m.state = StateAccumulating
		}
	}()

	if err := m.write(ctx, snap); err != nil {
		return err
	}
	m.sinceFlush = 0
	m.logger.Info("checkpoint flushed",
		"path", m.path,
		"processed", len(snap.ProcessedQueryIDs),
		"rows", len(snap.Rows))
	return nil
}

// Finalize performs the last flush and seals the manager; no further
// mutation is permitted.
func (m *Manager) Finalize(ctx context.Context, snap *Snapshot) error {
	if m.state == StateFinalized {
		return errors.New("checkpoint: already finalized")
	}
	if err := m.write(ctx, snap); err != nil {
		return err
	}
	m.state = StateFinalized
	return nil
}

func (m *Manager) write(ctx context.Context, snap *Snapshot) error {
	snap.CreatedAt = time.Now().UTC()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := m.store.Put(ctx, m.path, data); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", m.path, err)
	}

	if m.mirror != nil {
		if err := m.mirror.Put(ctx, m.mirrorPath, data); err != nil {
			m.logger.Warn("checkpoint mirror write failed", "path", m.mirrorPath, "err", err)
		}
	}
	return nil
}
