package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/timerd/internal/domain"
	"github.com/vitaliisemenov/timerd/internal/repository"
)

// mockEngine implements scheduler.Engine via testify's mock, mirroring the
// scheduler package's own mockRepository pattern.
type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) CreateTimer(ctx context.Context, executeAt time.Time, callback domain.CallbackConfig, metadata []byte) (*domain.Timer, error) {
	args := m.Called(ctx, executeAt, callback, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Timer), args.Error(1)
}

func (m *mockEngine) GetTimer(ctx context.Context, id uuid.UUID) (*domain.Timer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Timer), args.Error(1)
}

func (m *mockEngine) ListTimers(ctx context.Context, filter repository.ListFilter, order repository.ListOrder, limit, offset int) ([]domain.Timer, int, error) {
	args := m.Called(ctx, filter, order, limit, offset)
	var timers []domain.Timer
	if args.Get(0) != nil {
		timers = args.Get(0).([]domain.Timer)
	}
	return timers, args.Int(1), args.Error(2)
}

func (m *mockEngine) UpdateTimer(ctx context.Context, id uuid.UUID, patch domain.MutablePatch) (*domain.Timer, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Timer), args.Error(1)
}

func (m *mockEngine) CancelTimer(ctx context.Context, id uuid.UUID) (*domain.Timer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Timer), args.Error(1)
}

func (m *mockEngine) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockEngine) Stop() {
	m.Called()
}

func newTestTimer() *domain.Timer {
	return &domain.Timer{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		ExecuteAt: time.Now().UTC().Add(time.Hour),
		CallbackConfig: domain.CallbackConfig{
			Kind: domain.CallbackHTTP,
			HTTP: &domain.HTTPCallback{URL: "http://example.com/hook"},
		},
		Status: domain.StatusPending,
	}
}

func newTestRouter(h *TimerHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/timers", h.CreateTimer).Methods(http.MethodPost)
	r.HandleFunc("/v1/timers", h.ListTimers).Methods(http.MethodGet)
	r.HandleFunc("/v1/timers/{id}", h.GetTimer).Methods(http.MethodGet)
	r.HandleFunc("/v1/timers/{id}", h.UpdateTimer).Methods(http.MethodPatch)
	r.HandleFunc("/v1/timers/{id}/cancel", h.CancelTimer).Methods(http.MethodPost)
	return r
}

func TestCreateTimer_Success(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	want := newTestTimer()
	engine.On("CreateTimer", mock.Anything, mock.AnythingOfType("time.Time"), mock.AnythingOfType("domain.CallbackConfig"), mock.Anything).
		Return(want, nil)

	body := `{"execute_at":"` + want.ExecuteAt.Format(time.RFC3339) + `","callback":{"type":"http","http":{"url":"http://example.com/hook"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/timers", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp timerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, want.ID, resp.ID)
	engine.AssertExpectations(t)
}

func TestCreateTimer_InvalidBody(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/timers", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	engine.AssertNotCalled(t, "CreateTimer")
}

func TestCreateTimer_ValidationFailure(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	// execute_at is the zero value, which fails the "required" tag.
	body := `{"callback":{"type":"http","http":{"url":"http://example.com/hook"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/timers", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	engine.AssertNotCalled(t, "CreateTimer")
}

func TestCreateTimer_DomainValidationError(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	engine.On("CreateTimer", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, repository.ErrValidation)

	body := `{"execute_at":"` + time.Now().Add(time.Hour).Format(time.RFC3339) + `","callback":{"type":"http","http":{"url":"http://example.com/hook"}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/timers", bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetTimer_Success(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	want := newTestTimer()
	engine.On("GetTimer", mock.Anything, want.ID).Return(want, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/timers/"+want.ID.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp timerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, want.ID, resp.ID)
}

func TestGetTimer_NotFound(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	id := uuid.New()
	engine.On("GetTimer", mock.Anything, id).Return(nil, repository.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/v1/timers/"+id.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetTimer_InvalidID(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/timers/not-a-uuid", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	engine.AssertNotCalled(t, "GetTimer")
}

func TestGetTimer_StorageUnavailable(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	id := uuid.New()
	engine.On("GetTimer", mock.Anything, id).Return(nil, repository.ErrConnection)

	req := httptest.NewRequest(http.MethodGet, "/v1/timers/"+id.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestListTimers_Success(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	timers := []domain.Timer{*newTestTimer(), *newTestTimer()}
	engine.On("ListTimers", mock.Anything, repository.ListFilter{}, repository.OrderCreatedAtDesc, 50, 0).
		Return(timers, 2, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/timers", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["total"])
}

func TestListTimers_FiltersByStatusAndOrder(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	status := domain.StatusCompleted
	engine.On("ListTimers", mock.Anything, repository.ListFilter{Status: &status}, repository.OrderCreatedAtAsc, 10, 5).
		Return([]domain.Timer{}, 0, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/timers?status=completed&order=created_at_asc&limit=10&offset=5", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	engine.AssertExpectations(t)
}

func TestUpdateTimer_Success(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	want := newTestTimer()
	engine.On("UpdateTimer", mock.Anything, want.ID, mock.AnythingOfType("domain.MutablePatch")).Return(want, nil)

	newExecuteAt := time.Now().UTC().Add(2 * time.Hour).Format(time.RFC3339)
	body := `{"execute_at":"` + newExecuteAt + `"}`
	req := httptest.NewRequest(http.MethodPatch, "/v1/timers/"+want.ID.String(), bytes.NewBufferString(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	engine.AssertExpectations(t)
}

func TestUpdateTimer_ConflictWhenNotPending(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	id := uuid.New()
	engine.On("UpdateTimer", mock.Anything, id, mock.AnythingOfType("domain.MutablePatch")).
		Return(nil, repository.ErrNotPending)

	req := httptest.NewRequest(http.MethodPatch, "/v1/timers/"+id.String(), bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCancelTimer_Success(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	want := newTestTimer()
	want.Status = domain.StatusCanceled
	engine.On("CancelTimer", mock.Anything, want.ID).Return(want, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/timers/"+want.ID.String()+"/cancel", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp timerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatusCanceled, resp.Status)
}

func TestCancelTimer_NotFound(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	id := uuid.New()
	engine.On("CancelTimer", mock.Anything, id).Return(nil, repository.ErrNotFound)

	req := httptest.NewRequest(http.MethodPost, "/v1/timers/"+id.String()+"/cancel", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelTimer_UnhandledErrorMapsToInternal(t *testing.T) {
	engine := new(mockEngine)
	h := NewTimerHandler(engine, nil)
	router := newTestRouter(h)

	id := uuid.New()
	engine.On("CancelTimer", mock.Anything, id).Return(nil, assert.AnError)

	req := httptest.NewRequest(http.MethodPost, "/v1/timers/"+id.String()+"/cancel", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
