package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/hotset"
	"github.com/vitaliisemenov/timerd/internal/transport/httpclient"
)

func TestFireScanner_ClaimsAndDispatchesDueTimers(t *testing.T) {
	repo := &mockRepository{}
	hs := hotset.New()

	timer := domain.Timer{
		ID:     uuid.New(),
		Status: domain.StatusPending,
		ExecuteAt: time.Now().Add(-time.Second),
		CallbackConfig: domain.CallbackConfig{
			Kind: domain.CallbackHTTP,
			HTTP: &domain.HTTPCallback{URL: "http://127.0.0.1:1/unreachable"},
		},
	}
	hs.Rebuild([]domain.Timer{timer})

	repo.On("ClaimForFiring", mock.Anything, timer.ID).Return(true, nil)
	repo.On("Finalize", mock.Anything, timer.ID, domain.StatusFailed, mock.Anything, mock.Anything).Return(nil)

	client := httpclient.New(200 * time.Millisecond)
	dispatcher := NewDispatcher(repo, client, nil, 200*time.Millisecond, nil, NewMetrics())

	cfg := Config{ScanInterval: time.Hour}
	fs := newFireScanner(repo, hs, dispatcher, cfg, nil, NewMetrics())

	fs.Start(context.Background())
	time.Sleep(500 * time.Millisecond)
	fs.Stop()

	assert.Equal(t, 0, hs.Len(), "due timer must be evicted from the hot set regardless of dispatch outcome")
	repo.AssertExpectations(t)
}

func TestFireScanner_SkipsLostClaimsWithoutDispatch(t *testing.T) {
	repo := &mockRepository{}
	hs := hotset.New()

	timer := domain.Timer{ID: uuid.New(), Status: domain.StatusPending, ExecuteAt: time.Now().Add(-time.Second)}
	hs.Rebuild([]domain.Timer{timer})

	repo.On("ClaimForFiring", mock.Anything, timer.ID).Return(false, nil)

	client := httpclient.New(time.Second)
	dispatcher := NewDispatcher(repo, client, nil, time.Second, nil, NewMetrics())

	cfg := Config{ScanInterval: time.Hour}
	fs := newFireScanner(repo, hs, dispatcher, cfg, nil, NewMetrics())

	fs.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	fs.Stop()

	assert.Equal(t, 0, hs.Len())
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
