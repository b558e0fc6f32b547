package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"market_ingestor/internal/feature/ticks/domain/entity"
	"market_ingestor/internal/feature/ticks/transport/http/dto"
)

// LatestSource は銘柄ごとの最新ティックを返します。
type LatestSource interface {
	Latest(ctx context.Context, symbol string) (entity.Tick, bool, error)
}

// LatestHandler は最新ティックの取得リクエストを処理します。
type LatestHandler struct {
	src LatestSource
}

// NewLatestHandler は新しい LatestHandler を作成します。
func NewLatestHandler(src LatestSource) *LatestHandler {
	return &LatestHandler{src: src}
}

// Latest は GET /ticks/:symbol/latest を処理します。
func (h *LatestHandler) Latest(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	tick, ok, err := h.src.Latest(c.Request.Context(), symbol)
	if err != nil {
		slog.Warn("failed to read latest tick", "symbol", symbol, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "latest tick unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tick for symbol"})
		return
	}

	c.JSON(http.StatusOK, dto.TickItem{
		Time:     tick.Time.UTC().Format(time.RFC3339),
		Symbol:   tick.Symbol,
		Open:     tick.Open.String(),
		High:     tick.High.String(),
		Low:      tick.Low.String(),
		Close:    tick.Close.String(),
		Volume:   tick.Volume,
		Exchange: tick.Exchange,
	})
}
