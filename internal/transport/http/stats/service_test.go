package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgrelay-server-go/internal/domain/eventbus"
	"imgrelay-server-go/internal/platform/storage"
	platformtesting "imgrelay-server-go/internal/platform/testing"
	httptransport "imgrelay-server-go/internal/transport/http"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func newStatsRouter(t *testing.T) (*gin.Engine, *storage.EventRepository) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close(db) })
	repo := storage.NewEventRepository(db)

	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTaggedLogger(t)
	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger})
	require.NoError(t, err)

	svc, err := NewService(logger, NewHostSampler(), repo)
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), router.Root))
	return router.Engine, repo
}

func get(engine *gin.Engine, target string) (*httptest.ResponseRecorder, envelope) {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestStats_Summary(t *testing.T) {
	engine, repo := newStatsRouter(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, eventbus.EventRelayTranscoded, eventbus.RelayEventData{URL: "http://a/1", OriginalSize: 3000, OutputSize: 1000}))
	require.NoError(t, repo.Save(ctx, eventbus.EventRelayFailed, eventbus.RelayEventData{URL: "http://a/2", Kind: "transcode"}))

	rec, env := get(engine, "/stats?window=1h")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var summary storage.EventSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, int64(1), summary.Transcoded)
	assert.Equal(t, int64(1), summary.Failed)
	assert.Equal(t, int64(2000), summary.BytesSaved)
	assert.Equal(t, int64(1), summary.FailuresByKind["transcode"])
	assert.WithinDuration(t, time.Now().Add(-time.Hour), summary.Since, time.Minute)
}

func TestStats_Recent(t *testing.T) {
	engine, repo := newStatsRouter(t)
	for _, u := range []string{"http://a/1", "http://a/2", "http://a/3"} {
		require.NoError(t, repo.Save(context.Background(), eventbus.EventRelayBypassed, eventbus.RelayEventData{URL: u}))
	}

	rec, env := get(engine, "/stats/recent?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []storage.RelayEvent
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "http://a/3", events[0].URL)
}

func TestStats_BadParameters(t *testing.T) {
	engine, _ := newStatsRouter(t)

	for _, target := range []string{"/stats?window=soon", "/stats?window=-1h", "/stats/recent?limit=0", "/stats/recent?limit=x"} {
		rec, env := get(engine, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.False(t, env.Success, target)
	}
}

type fixedSampler struct {
	status *SystemStatus
	err    error
}

func (f fixedSampler) Sample(context.Context) (*SystemStatus, error) {
	return f.status, f.err
}

func TestStats_SystemWithoutJournal(t *testing.T) {
	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTaggedLogger(t)
	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger})
	require.NoError(t, err)

	svc, err := NewService(logger, fixedSampler{status: &SystemStatus{CPUUsage: 12.5, Goroutines: 7}}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), router.Root))

	rec, env := get(router.Engine, "/stats/system")
	require.Equal(t, http.StatusOK, rec.Code)
	var status SystemStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, 12.5, status.CPUUsage)
	assert.Equal(t, 7, status.Goroutines)

	rec, _ = get(router.Engine, "/stats")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats_SystemSampleError(t *testing.T) {
	cfg := platformtesting.SetupTestConfig(t)
	logger := platformtesting.SetupTaggedLogger(t)
	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger})
	require.NoError(t, err)

	svc, err := NewService(logger, fixedSampler{err: assert.AnError}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), router.Root))

	rec, env := get(router.Engine, "/stats/system")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
}

func TestHostSampler(t *testing.T) {
	status, err := NewHostSampler().Sample(context.Background())
	require.NoError(t, err)
	assert.Positive(t, status.MemoryTotal)
	assert.Positive(t, status.Goroutines)
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(nil, NewHostSampler(), nil)
	assert.Error(t, err)
	_, err = NewService(platformtesting.SetupTaggedLogger(t), nil, nil)
	assert.Error(t, err)
}
