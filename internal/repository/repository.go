// Package repository defines the Persistent Store contract (spec §4.1).
// Every operation either succeeds or fails with one of the sentinel
// errors in errors.go; callers classify failures by errors.Is, never by
// inspecting driver-specific types.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/timerd/internal/domain"
)

// ListFilter narrows list() to a subset of timers for the API layer.
type ListFilter struct {
	Status *domain.Status
}

// ListOrder names the sort order list() uses: created_at ascending or
// created_at descending.
type ListOrder string

const (
	OrderCreatedAtAsc  ListOrder = "created_at_asc"
	OrderCreatedAtDesc ListOrder = "created_at_desc"
)

// Repository is the Persistent Store contract. Implementations must make
// claim_for_firing the sole cross-process serialization point (spec §9).
type Repository interface {
	// Insert atomically creates timer. Returns ErrAlreadyExists on a
	// duplicate id.
	Insert(ctx context.Context, timer *domain.Timer) error

	// LoadByID returns the timer, or ErrNotFound.
	LoadByID(ctx context.Context, id uuid.UUID) (*domain.Timer, error)

	// List returns a page of timers matching filter plus the total count
	// ignoring limit/offset.
	List(ctx context.Context, filter ListFilter, order ListOrder, limit, offset int) ([]domain.Timer, int, error)

	// UpdateMutable applies patch to the row, failing with ErrNotPending
	// unless current status is Pending. Returns the updated record.
	UpdateMutable(ctx context.Context, id uuid.UUID, patch domain.MutablePatch) (*domain.Timer, error)

	// Cancel transitions Pending to Canceled, failing with ErrNotPending
	// otherwise.
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Timer, error)

	// ClaimForFiring performs the sole required cross-process atomic
	// compare-and-set: Pending to Executing. won is false if the row was
	// not Pending (already claimed, canceled, or unknown).
	ClaimForFiring(ctx context.Context, id uuid.UUID) (won bool, err error)

	// Finalize records a terminal outcome. Idempotent: calling it on an
	// already-terminal row is a logged no-op, never an error.
	Finalize(ctx context.Context, id uuid.UUID, outcome domain.Status, executedAt time.Time, dispatchErr *string) error

	// LoadActivationWindow is the sole query the refresh loader issues on
	// every tick: every Pending row with execute_at in
	// [now-recoveryLookback, now+activationLookahead].
	LoadActivationWindow(ctx context.Context, now time.Time, recoveryLookback, activationLookahead time.Duration) ([]domain.Timer, error)

	// RecoverStaleExecuting resets Executing rows left behind by a crashed
	// process back to Pending, scoped to execute_at in
	// [now-recoveryLookback, now] (spec §7 kind 6). It is meant to run once,
	// at process startup, before the refresh loader's first pass — Executing
	// rows are never re-admitted by ClaimForFiring or LoadActivationWindow
	// on an ongoing basis. Returns the number of rows reset.
	RecoverStaleExecuting(ctx context.Context, now time.Time, recoveryLookback time.Duration) (int, error)
}
