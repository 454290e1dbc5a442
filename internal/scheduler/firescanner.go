package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/hotset"
	"github.com/vitaliisemenov/timerd/internal/repository"
)

// fireScanner is the periodic task that selects due hot-set members,
// claims them in the persistent store, and launches Dispatchers
// (spec §4.4). Grounded on the teacher's gcWorker lifecycle shape
// (Start/run/Stop via stopCh/doneCh), generalized from cleanup to
// claim-and-dispatch.
type fireScanner struct {
	repo       repository.Repository
	hotset     *hotset.HotSet
	dispatcher *Dispatcher
	interval   time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *Metrics

	wg     sync.WaitGroup
	stopCh chan struct{}
	doneCh chan struct{}
}

func newFireScanner(repo repository.Repository, hs *hotset.HotSet, dispatcher *Dispatcher, cfg Config, logger *slog.Logger, metrics *Metrics) *fireScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &fireScanner{
		repo:       repo,
		hotset:     hs,
		dispatcher: dispatcher,
		interval:   cfg.ScanInterval,
		// Pacing guard bounding burst dispatch on a tick with many due
		// timers, the way the API's rate limiter bounds inbound bursts.
		limiter: rate.NewLimiter(rate.Limit(200), 200),
		logger:  logger,
		metrics: metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func (fs *fireScanner) Start(ctx context.Context) {
	go fs.run(ctx)
}

func (fs *fireScanner) run(ctx context.Context) {
	defer close(fs.doneCh)

	fs.scan(ctx)

	ticker := time.NewTicker(fs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-fs.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			fs.scan(ctx)
		}
	}
}

func (fs *fireScanner) scan(ctx context.Context) {
	now := time.Now().UTC()
	due := fs.hotset.Due(now)
	if len(due) == 0 {
		return
	}
	fs.metrics.ScanDue.Add(float64(len(due)))

	for _, timer := range due {
		fs.claimAndDispatch(ctx, timer)
		fs.hotset.Remove(timer.ID)
	}
}

// claimAndDispatch performs step 3a/3b of spec §4.4: claim, then launch
// an independent Dispatcher goroutine that the scanner does not wait on.
// Dispatch concurrency is tracked via wg so shutdown can wait for
// in-flight dispatchers to finish (bounded by their own deadline).
func (fs *fireScanner) claimAndDispatch(ctx context.Context, timer domain.Timer) {
	if err := fs.limiter.Wait(ctx); err != nil {
		return
	}

	won, err := fs.repo.ClaimForFiring(ctx, timer.ID)
	if err != nil {
		fs.logger.Error("claim_for_firing failed", "timer_id", timer.ID, "error", err)
		return
	}
	if !won {
		fs.metrics.ClaimLost.Inc()
		return
	}

	fs.wg.Add(1)
	go func() {
		defer fs.wg.Done()
		// Detached from ctx on purpose: shutdown cancels the scanner's
		// own loop but must let in-flight dispatchers run to their own
		// deadline rather than aborting them early (spec §5 Cancellation
		// and timeouts).
		fs.dispatcher.Dispatch(context.Background(), timer)
	}()
}

// Stop signals the scanner to exit after its current tick, then waits
// for in-flight Dispatchers bounded by their own deadline (they enforce
// it internally via context.WithTimeout in Dispatch).
func (fs *fireScanner) Stop() {
	close(fs.stopCh)
	<-fs.doneCh
	fs.wg.Wait()
}
