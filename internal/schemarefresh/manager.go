package schemarefresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"listquery/internal/logging"
	"listquery/internal/observability"
)

// Reload triggers recorded on the rebuild metrics.
const (
	TriggerStartup = "startup"
	TriggerPoll    = "poll"
	TriggerAdmin   = "admin"
)

// Config configures a Manager.
type Config struct {
	Build BuildConfig
	// MinInterval enables periodic rebuilds when positive. Unchanged polls back
	// off towards MaxInterval; a change or failure resets to MinInterval.
	MinInterval time.Duration
	MaxInterval time.Duration
	Logger      *logging.Logger
	Metrics     *observability.SnapshotMetrics
}

// Manager owns the active snapshot and swaps in rebuilt ones atomically.
type Manager struct {
	build       BuildConfig
	minInterval time.Duration
	maxInterval time.Duration
	logger      *logging.Logger
	metrics     *observability.SnapshotMetrics

	active atomic.Pointer[Snapshot]
	// reloadMu serializes rebuilds so a poll and an admin reload never race.
	reloadMu sync.Mutex
	wg       sync.WaitGroup
}

// NewManager validates the configuration. No snapshot exists until the first Reload.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.MinInterval < 0 {
		return nil, errors.New("schema refresh interval must not be negative")
	}
	maxInterval := cfg.MaxInterval
	if maxInterval < cfg.MinInterval {
		maxInterval = cfg.MinInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Manager{
		build:       cfg.Build,
		minInterval: cfg.MinInterval,
		maxInterval: maxInterval,
		logger:      logger.WithComponent("schema_refresh"),
		metrics:     cfg.Metrics,
	}, nil
}

// Current returns the active snapshot, or nil before the first successful build.
func (m *Manager) Current() *Snapshot {
	return m.active.Load()
}

// Reload rebuilds the snapshot and swaps it in when the fingerprint changed.
// On failure the previous snapshot stays active.
func (m *Manager) Reload(ctx context.Context, trigger string) (*Snapshot, bool, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	start := time.Now()
	snapshot, err := BuildSnapshot(ctx, m.build)
	if err != nil {
		m.metrics.RecordRebuild(ctx, time.Since(start), trigger, 0, err)
		m.logger.Error("schema rebuild failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
		return m.Current(), false, err
	}
	m.metrics.RecordRebuild(ctx, time.Since(start), trigger, len(snapshot.Schema.Tables), nil)

	if current := m.Current(); current != nil && current.Fingerprint == snapshot.Fingerprint {
		m.logger.Debug("schema unchanged", slog.String("trigger", trigger))
		return current, false, nil
	}

	m.active.Store(snapshot)
	m.logger.Info("schema snapshot active",
		slog.String("trigger", trigger),
		slog.String("fingerprint", snapshot.Fingerprint),
		slog.Int("tables", len(snapshot.Schema.Tables)),
		slog.Duration("duration", time.Since(start)),
	)
	for _, table := range snapshot.Schema.Tables {
		m.logger.Debug("entity available",
			slog.String("table", table.Name),
			slog.Int("columns", len(table.Columns)),
			slog.Int("relations", len(table.Relationships)),
		)
	}
	return snapshot, true, nil
}

// Start launches the polling loop when an interval is configured. The loop
// exits when ctx is canceled.
func (m *Manager) Start(ctx context.Context) {
	if m.minInterval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			_, changed, err := m.Reload(ctx, TriggerPoll)
			if err != nil || changed {
				interval = m.minInterval
			} else {
				interval = nextInterval(interval, m.minInterval, m.maxInterval)
			}
			timer.Reset(interval)
		}
	}
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}
