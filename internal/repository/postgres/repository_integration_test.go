//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"

	pgrepo "github.com/vitaliisemenov/timerd/internal/repository/postgres"
	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/repository"
)

func startRepository(t *testing.T) *pgrepo.Repository {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("timerd"),
		postgres.WithUsername("timerd"),
		postgres.WithPassword("timerd"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(sqlDB, "../../../migrations"))
	require.NoError(t, sqlDB.Close())

	pool, err := pgrepo.Connect(ctx, pgrepo.PoolConfig{DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pgrepo.New(pool.Pool, nil, nil)
}

func newHTTPTimer(t *testing.T, executeAt time.Time) *domain.Timer {
	t.Helper()
	cb := domain.CallbackConfig{Kind: domain.CallbackHTTP, HTTP: &domain.HTTPCallback{URL: "http://example.com/hook"}}
	// Created a minute before it is due, so NewTimer's minimum creation
	// delay also admits timers whose execute_at is already in the past.
	timer, err := domain.NewTimer(executeAt.Add(-time.Minute), executeAt, cb, nil, time.Second)
	require.NoError(t, err)
	return timer
}

func TestRepository_InsertAndLoad(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()

	timer := newHTTPTimer(t, time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.Insert(ctx, timer))

	loaded, err := repo.LoadByID(ctx, timer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, loaded.Status)
	require.Equal(t, timer.CallbackConfig.HTTP.URL, loaded.CallbackConfig.HTTP.URL)

	require.ErrorIs(t, repo.Insert(ctx, timer), repository.ErrAlreadyExists)
}

func TestRepository_ClaimForFiringIsExclusive(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()

	timer := newHTTPTimer(t, time.Now().UTC().Add(time.Second))
	require.NoError(t, repo.Insert(ctx, timer))

	won1, err := repo.ClaimForFiring(ctx, timer.ID)
	require.NoError(t, err)
	require.True(t, won1)

	won2, err := repo.ClaimForFiring(ctx, timer.ID)
	require.NoError(t, err)
	require.False(t, won2, "an Executing row must not be re-claimable outside the startup recovery sweep")

	require.NoError(t, repo.Finalize(ctx, timer.ID, domain.StatusCompleted, time.Now().UTC(), nil))

	wonAfterTerminal, err := repo.ClaimForFiring(ctx, timer.ID)
	require.NoError(t, err)
	require.False(t, wonAfterTerminal)
}

func TestRepository_RecoverStaleExecutingResetsWithinLookback(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stuck := newHTTPTimer(t, now.Add(-time.Minute))
	require.NoError(t, repo.Insert(ctx, stuck))
	won, err := repo.ClaimForFiring(ctx, stuck.ID)
	require.NoError(t, err)
	require.True(t, won)

	tooOld := newHTTPTimer(t, now.Add(-time.Hour))
	require.NoError(t, repo.Insert(ctx, tooOld))
	won, err = repo.ClaimForFiring(ctx, tooOld.ID)
	require.NoError(t, err)
	require.True(t, won)

	n, err := repo.RecoverStaleExecuting(ctx, now, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	recovered, err := repo.LoadByID(ctx, stuck.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, recovered.Status)

	stillExecuting, err := repo.LoadByID(ctx, tooOld.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusExecuting, stillExecuting.Status, "outside recoveryLookback must not be reset")

	wonAfterRecovery, err := repo.ClaimForFiring(ctx, stuck.ID)
	require.NoError(t, err)
	require.True(t, wonAfterRecovery, "reset row must be claimable again through the normal Pending path")
}

func TestRepository_CancelOnlyWhilePending(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()

	timer := newHTTPTimer(t, time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.Insert(ctx, timer))

	canceled, err := repo.Cancel(ctx, timer.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCanceled, canceled.Status)

	_, err = repo.Cancel(ctx, timer.ID)
	require.ErrorIs(t, err, repository.ErrNotPending)
}

func TestRepository_LoadActivationWindow(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	inWindow := newHTTPTimer(t, now.Add(30*time.Second))
	tooFar := newHTTPTimer(t, now.Add(10*time.Minute))
	require.NoError(t, repo.Insert(ctx, inWindow))
	require.NoError(t, repo.Insert(ctx, tooFar))

	loaded, err := repo.LoadActivationWindow(ctx, now, 5*time.Minute, 60*time.Second)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, tm := range loaded {
		ids[tm.ID.String()] = true
	}
	require.True(t, ids[inWindow.ID.String()])
	require.False(t, ids[tooFar.ID.String()])
}

func TestRepository_UpdateMutableRejectsIncoherentCallback(t *testing.T) {
	repo := startRepository(t)
	ctx := context.Background()

	timer := newHTTPTimer(t, time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.Insert(ctx, timer))

	raw := json.RawMessage(`{"k":"v"}`)
	bad := domain.CallbackConfig{Kind: domain.CallbackPublish, HTTP: timer.CallbackConfig.HTTP}
	_, err := repo.UpdateMutable(ctx, timer.ID, domain.MutablePatch{CallbackConfig: &bad, Metadata: (*[]byte)(&raw)})
	require.ErrorIs(t, err, repository.ErrValidation)
}
