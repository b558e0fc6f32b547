package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_ingestor/internal/feature/ticks/domain/entity"
	tickshandler "market_ingestor/internal/feature/ticks/transport/handler"
	"market_ingestor/internal/feature/ticks/usecase"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubCycleSource struct {
	report usecase.CycleReport
	ok     bool
}

func (s stubCycleSource) LastCycle() (usecase.CycleReport, bool) { return s.report, s.ok }
func (s stubCycleSource) Interval() time.Duration                { return time.Minute }

type stubLatestSource struct{}

func (stubLatestSource) Latest(ctx context.Context, symbol string) (entity.Tick, bool, error) {
	if symbol == "EX" {
		return entity.Placeholder("EX", 2024, time.March, 1), true, nil
	}
	return entity.Tick{}, false, nil
}

func newTestRouter(src stubCycleSource) *gin.Engine {
	return NewRouter(tickshandler.NewPollerHandler(src), tickshandler.NewLatestHandler(stubLatestSource{}))
}

func TestNewRouter(t *testing.T) {
	t.Parallel()

	r := newTestRouter(stubCycleSource{})

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"success: healthz before first cycle", http.MethodGet, "/healthz", http.StatusOK},
		{"success: healthz head", http.MethodHead, "/healthz", http.StatusOK},
		{"success: status", http.MethodGet, "/status", http.StatusOK},
		{"success: latest tick", http.MethodGet, "/ticks/EX/latest", http.StatusOK},
		{"failure: latest tick missing", http.MethodGet, "/ticks/ZZZ/latest", http.StatusNotFound},
		{"failure: unknown route", http.MethodGet, "/candles/EX", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestNewRouter_StaleHealth(t *testing.T) {
	t.Parallel()

	src := stubCycleSource{
		report: usecase.CycleReport{ID: "c1", StartedAt: time.Now().Add(-time.Hour)},
		ok:     true,
	}
	r := newTestRouter(src)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "stale", body["status"])
}
