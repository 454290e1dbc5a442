package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/repository"
	"github.com/vitaliisemenov/timerd/internal/transport/httpclient"
	"github.com/vitaliisemenov/timerd/internal/transport/publish"
)

// Dispatcher executes exactly one callback attempt per firing and writes
// the terminal outcome (spec §4.5). It is an isolated failure domain: a
// panic inside Dispatch must never propagate to the fire scanner.
type Dispatcher struct {
	repo     repository.Repository
	http     *httpclient.Client
	pub      *publish.Client
	deadline time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

// NewDispatcher builds a Dispatcher sharing the process-wide transports.
// pub may be nil when publishEnabled is false.
func NewDispatcher(repo repository.Repository, httpClient *httpclient.Client, pub *publish.Client, deadline time.Duration, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Dispatcher{repo: repo, http: httpClient, pub: pub, deadline: deadline, logger: logger, metrics: metrics}
}

// Dispatch runs the callback bound to timer and finalizes its outcome.
// It never returns an error to the caller: failures are recorded in the
// persistent store, and a recovered panic is converted to a Failed
// outcome where possible (spec §9 "Exceptions / panics in a Dispatcher").
func (d *Dispatcher) Dispatch(ctx context.Context, timer domain.Timer) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher panic recovered", "timer_id", timer.ID, "panic", r)
			d.finalize(ctx, timer.ID, domain.StatusFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	start := time.Now()
	outcome, dispatchErr := d.attempt(ctx, timer)
	d.metrics.DispatchDuration.WithLabelValues(string(timer.CallbackConfig.Kind)).Observe(time.Since(start).Seconds())
	d.metrics.DispatchTotal.WithLabelValues(string(timer.CallbackConfig.Kind), string(outcome)).Inc()

	d.finalize(ctx, timer.ID, outcome, dispatchErr)
}

func (d *Dispatcher) attempt(ctx context.Context, timer domain.Timer) (domain.Status, string) {
	dctx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()

	switch timer.CallbackConfig.Kind {
	case domain.CallbackHTTP:
		return d.dispatchHTTP(dctx, timer.CallbackConfig.HTTP)
	case domain.CallbackPublish:
		return d.dispatchPublish(timer.CallbackConfig.Publish)
	default:
		return domain.StatusFailed, fmt.Sprintf("unknown callback_kind %q", timer.CallbackConfig.Kind)
	}
}

func (d *Dispatcher) dispatchHTTP(ctx context.Context, cb *domain.HTTPCallback) (domain.Status, string) {
	body := []byte("{}")
	if len(cb.Payload) > 0 {
		body = cb.Payload
	}
	status, _, err := d.http.Post(ctx, cb.URL, cb.Headers, body)
	if err != nil {
		return domain.StatusFailed, err.Error()
	}
	if status < 200 || status >= 300 {
		return domain.StatusFailed, fmt.Sprintf("unexpected status %d", status)
	}
	return domain.StatusCompleted, ""
}

func (d *Dispatcher) dispatchPublish(cb *domain.PublishCallback) (domain.Status, string) {
	subject := publish.Subject(cb.Topic, cb.RoutingKey)
	payload := json.RawMessage(cb.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := d.pub.Publish(subject, cb.Headers, payload); err != nil {
		return domain.StatusFailed, err.Error()
	}
	return domain.StatusCompleted, ""
}

// finalize writes the terminal outcome. A finalize failure is logged and
// swallowed (spec §4.5 step 3, §7 kind 1): the timer is left Executing in
// PS and recovered on the next restart by the startup's one-shot
// RecoverStaleExecuting sweep (spec §7 kind 6).
func (d *Dispatcher) finalize(ctx context.Context, id uuid.UUID, outcome domain.Status, dispatchErr string) {
	var errPtr *string
	if outcome == domain.StatusFailed {
		errPtr = &dispatchErr
	}
	if err := d.repo.Finalize(ctx, id, outcome, time.Now().UTC(), errPtr); err != nil {
		d.logger.Error("finalize failed", "timer_id", id, "outcome", outcome, "error", err)
	}
}
