package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setupRouter(check Checker) *gin.Engine {
	r := gin.New()
	h := NewHealth(check)
	r.GET("/healthz", h)
	r.HEAD("/healthz", h)
	r.OPTIONS("/healthz", h)
	r.POST("/healthz", h)
	return r
}

func TestHealth_ResponseStatus(t *testing.T) {
	t.Parallel()

	unhealthy := func() (string, bool) { return "stale", false }

	tests := []struct {
		name           string
		check          Checker
		method         string
		expectedStatus int
		expectedBody   string
	}{
		{"success: GET without checker", nil, http.MethodGet, http.StatusOK, "ok"},
		{"success: HEAD without checker", nil, http.MethodHead, http.StatusOK, ""},
		{"success: OPTIONS", nil, http.MethodOptions, http.StatusNoContent, ""},
		{"success: POST returns JSON", nil, http.MethodPost, http.StatusOK, "ok"},
		{"failure: GET unhealthy", unhealthy, http.MethodGet, http.StatusServiceUnavailable, "stale"},
		{"failure: HEAD unhealthy", unhealthy, http.MethodHead, http.StatusServiceUnavailable, ""},
		{"success: OPTIONS ignores health", unhealthy, http.MethodOptions, http.StatusNoContent, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/healthz", nil)
			setupRouter(tt.check).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

			if tt.expectedBody == "" {
				assert.Zero(t, w.Body.Len(), "expected empty body")
				return
			}
			var response map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedBody, response["status"])
		})
	}
}
