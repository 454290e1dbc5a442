package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/timerd/internal/hotset"
	"github.com/vitaliisemenov/timerd/internal/repository"
)

// refreshLoader is the periodic task that rebuilds the hot set from the
// persistent store (spec §4.3). Grounded on the teacher's syncWorker: a
// run-immediately-then-ticker-loop with a fail-safe that retains the
// previous hot set contents on query error.
type refreshLoader struct {
	repo     repository.Repository
	hotset   *hotset.HotSet
	interval time.Duration
	recoveryLookback    time.Duration
	activationLookahead time.Duration
	logger   *slog.Logger
	metrics  *Metrics

	stopCh chan struct{}
	doneCh chan struct{}
}

func newRefreshLoader(repo repository.Repository, hs *hotset.HotSet, cfg Config, logger *slog.Logger, metrics *Metrics) *refreshLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &refreshLoader{
		repo:                repo,
		hotset:              hs,
		interval:            cfg.RefreshInterval,
		recoveryLookback:    cfg.RecoveryLookback,
		activationLookahead: cfg.ActivationLookahead,
		logger:              logger,
		metrics:             metrics,
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
	}
}

// Start spawns the loader goroutine. It runs one refresh immediately so
// the hot set is populated before the first tick interval elapses.
func (rl *refreshLoader) Start(ctx context.Context) {
	go rl.run(ctx)
}

func (rl *refreshLoader) run(ctx context.Context) {
	defer close(rl.doneCh)

	rl.refresh(ctx)

	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.refresh(ctx)
		}
	}
}

func (rl *refreshLoader) refresh(ctx context.Context) {
	start := time.Now()
	defer func() { rl.metrics.RefreshDuration.Observe(time.Since(start).Seconds()) }()

	timers, err := rl.repo.LoadActivationWindow(ctx, time.Now().UTC(), rl.recoveryLookback, rl.activationLookahead)
	if err != nil {
		// Error policy (spec §4.3): retain the old hot set, log, retry
		// next tick. No backoff in MVP; the period itself is the pacing.
		rl.metrics.RefreshErrors.Inc()
		rl.logger.Error("refresh loader query failed, retaining previous hot set", "error", err)
		return
	}

	rl.hotset.Rebuild(timers)
	rl.metrics.HotSetSize.Set(float64(rl.hotset.Len()))
}

// Stop signals the loader to exit after its current tick and waits for
// it to finish.
func (rl *refreshLoader) Stop() {
	close(rl.stopCh)
	<-rl.doneCh
}
