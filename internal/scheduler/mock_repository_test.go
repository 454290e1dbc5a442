package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/repository"
)

// mockRepository implements repository.Repository via testify's mock,
// following the teacher's mockRepository/mockSyncRepository pattern.
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Insert(ctx context.Context, timer *domain.Timer) error {
	args := m.Called(ctx, timer)
	return args.Error(0)
}

func (m *mockRepository) LoadByID(ctx context.Context, id uuid.UUID) (*domain.Timer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Timer), args.Error(1)
}

func (m *mockRepository) List(ctx context.Context, filter repository.ListFilter, order repository.ListOrder, limit, offset int) ([]domain.Timer, int, error) {
	args := m.Called(ctx, filter, order, limit, offset)
	var timers []domain.Timer
	if args.Get(0) != nil {
		timers = args.Get(0).([]domain.Timer)
	}
	return timers, args.Int(1), args.Error(2)
}

func (m *mockRepository) UpdateMutable(ctx context.Context, id uuid.UUID, patch domain.MutablePatch) (*domain.Timer, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Timer), args.Error(1)
}

func (m *mockRepository) Cancel(ctx context.Context, id uuid.UUID) (*domain.Timer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Timer), args.Error(1)
}

func (m *mockRepository) ClaimForFiring(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepository) Finalize(ctx context.Context, id uuid.UUID, outcome domain.Status, executedAt time.Time, dispatchErr *string) error {
	args := m.Called(ctx, id, outcome, executedAt, dispatchErr)
	return args.Error(0)
}

func (m *mockRepository) LoadActivationWindow(ctx context.Context, now time.Time, recoveryLookback, activationLookahead time.Duration) ([]domain.Timer, error) {
	args := m.Called(ctx, now, recoveryLookback, activationLookahead)
	var timers []domain.Timer
	if args.Get(0) != nil {
		timers = args.Get(0).([]domain.Timer)
	}
	return timers, args.Error(1)
}

func (m *mockRepository) RecoverStaleExecuting(ctx context.Context, now time.Time, recoveryLookback time.Duration) (int, error) {
	args := m.Called(ctx, now, recoveryLookback)
	return args.Int(0), args.Error(1)
}
