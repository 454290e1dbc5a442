package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/repository"
)

// Repository implements repository.Repository against PostgreSQL.
//
// Thread-safety: all methods are safe for concurrent use; the underlying
// pgxpool.Pool multiplexes calls over its own connection pool.
type Repository struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *Metrics
}

var _ repository.Repository = (*Repository)(nil)

// New builds a Repository over an already-connected pool.
func New(pool *pgxpool.Pool, logger *slog.Logger, metrics *Metrics) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Repository{pool: pool, logger: logger, metrics: metrics}
}

func (r *Repository) Insert(ctx context.Context, timer *domain.Timer) error {
	op := "insert"
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start)) }()

	callbackJSON, err := json.Marshal(timer.CallbackConfig)
	if err != nil {
		return fmt.Errorf("marshal callback_config: %w", err)
	}

	const query = `
		INSERT INTO timers (id, created_at, updated_at, execute_at, callback_config, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		timer.ID, timer.CreatedAt, timer.UpdatedAt, timer.ExecuteAt,
		callbackJSON, timer.Status, nullableJSON(timer.Metadata),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.metrics.errors.WithLabelValues(op, "conflict").Inc()
			return fmt.Errorf("%w: id %s", repository.ErrAlreadyExists, timer.ID)
		}
		r.metrics.errors.WithLabelValues(op, "query").Inc()
		return fmt.Errorf("%w: insert timer: %v", repository.ErrConnection, err)
	}
	r.metrics.operations.WithLabelValues(op).Inc()
	r.logger.Info("timer inserted", "timer_id", timer.ID, "execute_at", timer.ExecuteAt)
	return nil
}

func (r *Repository) LoadByID(ctx context.Context, id uuid.UUID) (*domain.Timer, error) {
	op := "load_by_id"
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start)) }()

	const query = `
		SELECT id, created_at, updated_at, execute_at, callback_config, status, last_error, executed_at, metadata
		FROM timers WHERE id = $1
	`
	row := r.pool.QueryRow(ctx, query, id)
	timer, err := scanTimer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.metrics.errors.WithLabelValues(op, "not_found").Inc()
			return nil, fmt.Errorf("%w: id %s", repository.ErrNotFound, id)
		}
		r.metrics.errors.WithLabelValues(op, "query").Inc()
		return nil, fmt.Errorf("%w: load timer: %v", repository.ErrConnection, err)
	}
	return timer, nil
}

func (r *Repository) List(ctx context.Context, filter repository.ListFilter, order repository.ListOrder, limit, offset int) ([]domain.Timer, int, error) {
	op := "list"
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start)) }()

	orderClause := "created_at ASC"
	if order == repository.OrderCreatedAtDesc {
		orderClause = "created_at DESC"
	}

	args := []interface{}{}
	where := ""
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = fmt.Sprintf("WHERE status = $%d", len(args))
	}

	var total int
	countQuery := fmt.Sprintf("SELECT count(*) FROM timers %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		r.metrics.errors.WithLabelValues(op, "count").Inc()
		return nil, 0, fmt.Errorf("%w: count timers: %v", repository.ErrConnection, err)
	}

	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(`
		SELECT id, created_at, updated_at, execute_at, callback_config, status, last_error, executed_at, metadata
		FROM timers %s ORDER BY %s LIMIT $%d OFFSET $%d
	`, where, orderClause, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		r.metrics.errors.WithLabelValues(op, "query").Inc()
		return nil, 0, fmt.Errorf("%w: list timers: %v", repository.ErrConnection, err)
	}
	defer rows.Close()

	var timers []domain.Timer
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scan timer: %v", repository.ErrConnection, err)
		}
		timers = append(timers, *timer)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterate timers: %v", repository.ErrConnection, err)
	}
	return timers, total, nil
}

func (r *Repository) UpdateMutable(ctx context.Context, id uuid.UUID, patch domain.MutablePatch) (*domain.Timer, error) {
	op := "update_mutable"
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start)) }()

	var updated *domain.Timer
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, created_at, updated_at, execute_at, callback_config, status, last_error, executed_at, metadata
			FROM timers WHERE id = $1 FOR UPDATE
		`, id)
		current, err := scanTimer(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: id %s", repository.ErrNotFound, id)
			}
			return err
		}
		if current.Status != domain.StatusPending {
			return fmt.Errorf("%w: id %s", repository.ErrNotPending, id)
		}

		patched, err := patch.Apply(*current)
		if err != nil {
			return fmt.Errorf("%w: %v", repository.ErrValidation, err)
		}
		callbackJSON, err := json.Marshal(patched.CallbackConfig)
		if err != nil {
			return fmt.Errorf("marshal callback_config: %w", err)
		}

		now := time.Now().UTC()
		_, err = tx.Exec(ctx, `
			UPDATE timers SET execute_at = $2, callback_config = $3, metadata = $4, updated_at = $5
			WHERE id = $1
		`, id, patched.ExecuteAt, callbackJSON, nullableJSON(patched.Metadata), now)
		if err != nil {
			return err
		}
		patched.UpdatedAt = now
		updated = &patched
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrNotPending), errors.Is(err, repository.ErrValidation):
			return nil, err
		default:
			r.metrics.errors.WithLabelValues(op, "query").Inc()
			return nil, fmt.Errorf("%w: update timer: %v", repository.ErrConnection, err)
		}
	}
	r.metrics.operations.WithLabelValues(op).Inc()
	return updated, nil
}

func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) (*domain.Timer, error) {
	op := "cancel"
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start)) }()

	now := time.Now().UTC()
	const query = `
		UPDATE timers SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING id, created_at, updated_at, execute_at, callback_config, status, last_error, executed_at, metadata
	`
	row := r.pool.QueryRow(ctx, query, id, domain.StatusCanceled, now, domain.StatusPending)
	timer, err := scanTimer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			exists, checkErr := r.LoadByID(ctx, id)
			if checkErr == nil && exists != nil {
				r.metrics.errors.WithLabelValues(op, "not_pending").Inc()
				return nil, fmt.Errorf("%w: id %s", repository.ErrNotPending, id)
			}
			r.metrics.errors.WithLabelValues(op, "not_found").Inc()
			return nil, fmt.Errorf("%w: id %s", repository.ErrNotFound, id)
		}
		r.metrics.errors.WithLabelValues(op, "query").Inc()
		return nil, fmt.Errorf("%w: cancel timer: %v", repository.ErrConnection, err)
	}
	r.metrics.operations.WithLabelValues(op).Inc()
	return timer, nil
}

// ClaimForFiring is the sole cross-process serialization point (spec §9):
// a conditional UPDATE gated on the current status, atomic at the row level.
// Only Pending rows are admitted; a crashed dispatcher's Executing row only
// becomes re-claimable once RecoverStaleExecuting has reset it back to
// Pending (spec §7 kind 6).
func (r *Repository) ClaimForFiring(ctx context.Context, id uuid.UUID) (bool, error) {
	op := "claim_for_firing"
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start)) }()

	const query = `
		UPDATE timers SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, id, domain.StatusExecuting, time.Now().UTC(), domain.StatusPending)
	if err != nil {
		r.metrics.errors.WithLabelValues(op, "query").Inc()
		return false, fmt.Errorf("%w: claim timer: %v", repository.ErrConnection, err)
	}
	won := tag.RowsAffected() == 1
	if won {
		r.metrics.operations.WithLabelValues(op).Inc()
	} else {
		r.metrics.errors.WithLabelValues(op, "lost_race").Inc()
	}
	return won, nil
}

func (r *Repository) Finalize(ctx context.Context, id uuid.UUID, outcome domain.Status, executedAt time.Time, dispatchErr *string) error {
	op := "finalize"
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start)) }()

	const query = `
		UPDATE timers SET status = $2, executed_at = $3, last_error = $4, updated_at = $3
		WHERE id = $1 AND status = $5
	`
	tag, err := r.pool.Exec(ctx, query, id, outcome, executedAt, dispatchErr, domain.StatusExecuting)
	if err != nil {
		r.metrics.errors.WithLabelValues(op, "query").Inc()
		return fmt.Errorf("%w: finalize timer: %v", repository.ErrConnection, err)
	}
	if tag.RowsAffected() == 0 {
		// Benign race (spec §7 kind 4/5): already terminal, or never claimed.
		r.metrics.errors.WithLabelValues(op, "stale").Inc()
		r.logger.Warn("finalize found no executing row", "timer_id", id, "outcome", outcome)
		return nil
	}
	r.metrics.operations.WithLabelValues(op).Inc()
	return nil
}

func (r *Repository) LoadActivationWindow(ctx context.Context, now time.Time, recoveryLookback, activationLookahead time.Duration) ([]domain.Timer, error) {
	op := "load_activation_window"
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start)) }()

	lower := now.Add(-recoveryLookback)
	upper := now.Add(activationLookahead)

	const query = `
		SELECT id, created_at, updated_at, execute_at, callback_config, status, last_error, executed_at, metadata
		FROM timers
		WHERE status = $1 AND execute_at BETWEEN $2 AND $3
	`
	rows, err := r.pool.Query(ctx, query, domain.StatusPending, lower, upper)
	if err != nil {
		r.metrics.errors.WithLabelValues(op, "query").Inc()
		return nil, fmt.Errorf("%w: load activation window: %v", repository.ErrConnection, err)
	}
	defer rows.Close()

	var timers []domain.Timer
	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan timer: %v", repository.ErrConnection, err)
		}
		timers = append(timers, *timer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate timers: %v", repository.ErrConnection, err)
	}
	r.metrics.operations.WithLabelValues(op).Inc()
	return timers, nil
}

// RecoverStaleExecuting performs the one-shot startup sweep that re-admits
// Executing rows left behind by a crashed process (spec §7 kind 6). It is
// the only place Executing rows are ever written back to Pending; callers
// run it once, before starting the refresh loader and fire scanner, never
// on an ongoing tick.
func (r *Repository) RecoverStaleExecuting(ctx context.Context, now time.Time, recoveryLookback time.Duration) (int, error) {
	op := "recover_stale_executing"
	start := time.Now()
	defer func() { r.metrics.observe(op, time.Since(start)) }()

	lower := now.Add(-recoveryLookback)

	const query = `
		UPDATE timers SET status = $1, updated_at = $2
		WHERE status = $3 AND execute_at BETWEEN $4 AND $5
	`
	tag, err := r.pool.Exec(ctx, query, domain.StatusPending, now, domain.StatusExecuting, lower, now)
	if err != nil {
		r.metrics.errors.WithLabelValues(op, "query").Inc()
		return 0, fmt.Errorf("%w: recover stale executing: %v", repository.ErrConnection, err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		r.metrics.operations.WithLabelValues(op).Add(float64(n))
		r.logger.Warn("recovered stale executing timers on startup", "count", n)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTimer(row scanner) (*domain.Timer, error) {
	var (
		t              domain.Timer
		callbackJSON   []byte
		metadataJSON   []byte
		status         string
	)
	if err := row.Scan(
		&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.ExecuteAt,
		&callbackJSON, &status, &t.LastError, &t.ExecutedAt, &metadataJSON,
	); err != nil {
		return nil, err
	}
	t.Status = domain.Status(status)
	if err := json.Unmarshal(callbackJSON, &t.CallbackConfig); err != nil {
		return nil, fmt.Errorf("unmarshal callback_config: %w", err)
	}
	if len(metadataJSON) > 0 {
		t.Metadata = metadataJSON
	}
	return &t, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
