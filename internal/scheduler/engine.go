// Package scheduler implements the scheduling engine: the hot set, the
// refresh loader, the fire scanner, and the dispatcher, wired together by
// Engine (spec §2, §4).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/hotset"
	"github.com/vitaliisemenov/timerd/internal/repository"
	"github.com/vitaliisemenov/timerd/internal/transport/httpclient"
	"github.com/vitaliisemenov/timerd/internal/transport/publish"
)

// Engine is the scheduling engine: the persistent store handle, the hot
// set, and the two periodic tasks, fronted by the operations the API
// layer and operator CLI call directly against the persistent store
// (spec §6 "To the API layer (ingress)").
//
// Example usage:
//
//	engine, err := scheduler.NewEngine(repo, scheduler.DefaultConfig(), httpClient, pubClient, logger)
//	if err != nil { ... }
//	if err := engine.Start(ctx); err != nil { ... }
//	defer engine.Stop()
type Engine interface {
	CreateTimer(ctx context.Context, executeAt time.Time, callback domain.CallbackConfig, metadata []byte) (*domain.Timer, error)
	GetTimer(ctx context.Context, id uuid.UUID) (*domain.Timer, error)
	ListTimers(ctx context.Context, filter repository.ListFilter, order repository.ListOrder, limit, offset int) ([]domain.Timer, int, error)
	UpdateTimer(ctx context.Context, id uuid.UUID, patch domain.MutablePatch) (*domain.Timer, error)
	CancelTimer(ctx context.Context, id uuid.UUID) (*domain.Timer, error)

	Start(ctx context.Context) error
	Stop()
}

type engine struct {
	repo   repository.Repository
	hotset *hotset.HotSet
	config Config
	logger *slog.Logger

	refresh    *refreshLoader
	scanner    *fireScanner
	dispatcher *Dispatcher

	httpClient *httpclient.Client
	pubClient  *publish.Client

	started  atomic.Bool
	shutdown atomic.Bool
}

// NewEngine wires the hot set, refresh loader, fire scanner, and
// dispatcher together. pubClient may be nil when config.PublishEnabled
// is false; dispatch attempts against a publish callback then fail with
// publish.ErrTransportUnavailable (spec §4.5, S7).
func NewEngine(repo repository.Repository, config Config, httpClient *httpclient.Client, pubClient *publish.Client, logger *slog.Logger) (Engine, error) {
	if repo == nil {
		panic("scheduler: repo must not be nil")
	}
	if httpClient == nil {
		panic("scheduler: httpClient must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	hs := hotset.New()
	metrics := NewMetrics()
	dispatcher := NewDispatcher(repo, httpClient, pubClient, config.DispatchDeadline, logger, metrics)

	e := &engine{
		repo:       repo,
		hotset:     hs,
		config:     config,
		logger:     logger,
		dispatcher: dispatcher,
		httpClient: httpClient,
		pubClient:  pubClient,
	}
	e.refresh = newRefreshLoader(repo, hs, config, logger, metrics)
	e.scanner = newFireScanner(repo, hs, dispatcher, config, logger, metrics)
	return e, nil
}

func (e *engine) CreateTimer(ctx context.Context, executeAt time.Time, callback domain.CallbackConfig, metadata []byte) (*domain.Timer, error) {
	timer, err := domain.NewTimer(time.Now().UTC(), executeAt, callback, metadata, e.config.MinimumCreationDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrValidation, err)
	}
	if err := e.repo.Insert(ctx, timer); err != nil {
		return nil, err
	}
	return timer, nil
}

func (e *engine) GetTimer(ctx context.Context, id uuid.UUID) (*domain.Timer, error) {
	return e.repo.LoadByID(ctx, id)
}

func (e *engine) ListTimers(ctx context.Context, filter repository.ListFilter, order repository.ListOrder, limit, offset int) ([]domain.Timer, int, error) {
	return e.repo.List(ctx, filter, order, limit, offset)
}

func (e *engine) UpdateTimer(ctx context.Context, id uuid.UUID, patch domain.MutablePatch) (*domain.Timer, error) {
	return e.repo.UpdateMutable(ctx, id, patch)
}

func (e *engine) CancelTimer(ctx context.Context, id uuid.UUID) (*domain.Timer, error) {
	return e.repo.Cancel(ctx, id)
}

// Start runs the one-shot crash-recovery sweep, then launches the refresh
// loader and fire scanner. Idempotent: a second call is a no-op.
func (e *engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info("scheduler engine starting",
		"refresh_interval", e.config.RefreshInterval,
		"scan_interval", e.config.ScanInterval,
		"activation_lookahead", e.config.ActivationLookahead,
		"recovery_lookback", e.config.RecoveryLookback,
	)
	// Runs exactly once per process, before the refresh loader's first
	// pass, so a crashed dispatcher's Executing row becomes re-claimable
	// without ClaimForFiring or LoadActivationWindow ever admitting
	// Executing rows on an ongoing basis (spec §7 kind 6).
	if _, err := e.repo.RecoverStaleExecuting(ctx, time.Now().UTC(), e.config.RecoveryLookback); err != nil {
		return fmt.Errorf("recover stale executing timers: %w", err)
	}
	e.refresh.Start(ctx)
	e.scanner.Start(ctx)
	return nil
}

// Stop follows the teardown order from spec §9: stop RL/FS after their
// current tick, wait for in-flight Dispatchers, then close transports.
// PS itself is closed by the caller, which owns the pool's lifetime.
func (e *engine) Stop() {
	if !e.shutdown.CompareAndSwap(false, true) {
		return
	}
	e.logger.Info("scheduler engine stopping")
	e.refresh.Stop()
	e.scanner.Stop()
	e.httpClient.Close()
	e.pubClient.Close()
	e.logger.Info("scheduler engine stopped")
}
