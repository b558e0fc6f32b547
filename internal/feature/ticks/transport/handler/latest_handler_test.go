package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_ingestor/internal/feature/ticks/domain/entity"
	"market_ingestor/internal/feature/ticks/transport/http/dto"
)

// mockLatestSource はLatestSourceインターフェースのモック実装です。
type mockLatestSource struct {
	latestFn func(ctx context.Context, symbol string) (entity.Tick, bool, error)
}

func (m *mockLatestSource) Latest(ctx context.Context, symbol string) (entity.Tick, bool, error) {
	return m.latestFn(ctx, symbol)
}

func TestLatestHandler_Latest(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC)
	price := decimal.RequireFromString("101.50")

	tests := []struct {
		name       string
		path       string
		latestFn   func(ctx context.Context, symbol string) (entity.Tick, bool, error)
		wantStatus int
		wantClose  string
	}{
		{
			name: "success: cached tick",
			path: "/ticks/ex/latest",
			latestFn: func(ctx context.Context, symbol string) (entity.Tick, bool, error) {
				if symbol != "EX" {
					return entity.Tick{}, false, nil
				}
				return entity.Tick{Time: at, Symbol: "EX", Open: price, High: price, Low: price, Close: price, Volume: 7, Exchange: "NSE"}, true, nil
			},
			wantStatus: http.StatusOK,
			wantClose:  "101.5",
		},
		{
			name: "failure: not cached",
			path: "/ticks/EX/latest",
			latestFn: func(ctx context.Context, symbol string) (entity.Tick, bool, error) {
				return entity.Tick{}, false, nil
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "failure: cache error",
			path: "/ticks/EX/latest",
			latestFn: func(ctx context.Context, symbol string) (entity.Tick, bool, error) {
				return entity.Tick{}, false, errors.New("connection refused")
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := gin.New()
			r.GET("/ticks/:symbol/latest", NewLatestHandler(&mockLatestSource{latestFn: tt.latestFn}).Latest)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got dto.TickItem
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, "EX", got.Symbol)
			assert.Equal(t, tt.wantClose, got.Close)
			assert.Equal(t, "2024-03-01T04:00:00Z", got.Time)
			assert.Equal(t, int64(7), got.Volume)
		})
	}
}
