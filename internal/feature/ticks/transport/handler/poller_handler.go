package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"market_ingestor/internal/feature/ticks/transport/http/dto"
	"market_ingestor/internal/feature/ticks/usecase"
)

// staleCycles は最後のサイクル完了からこの回数分の間隔が過ぎたら停滞とみなす数です。
const staleCycles = 3

// CycleSource はポーラーの直近のサイクル結果を返します。
// Following Go convention: interfaces are defined by the consumer (handler), not the provider (usecase).
type CycleSource interface {
	LastCycle() (usecase.CycleReport, bool)
	Interval() time.Duration
}

// PollerHandler はポーラーの状態に関するHTTPリクエストを処理します。
type PollerHandler struct {
	src CycleSource
	now func() time.Time
}

// NewPollerHandler は新しい PollerHandler を作成します。
func NewPollerHandler(src CycleSource) *PollerHandler {
	return &PollerHandler{src: src, now: time.Now}
}

// Check はポーラーの状態を返します。最初のサイクルが終わるまでは "starting" で正常扱いです。
func (h *PollerHandler) Check() (string, bool) {
	last, ok := h.src.LastCycle()
	if !ok {
		return "starting", true
	}
	if h.now().Sub(last.FinishedAt()) > staleCycles*h.src.Interval() {
		return "stale", false
	}
	return "ok", true
}

// Status は直近のサイクル結果を返すAPIです。
func (h *PollerHandler) Status(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	status, _ := h.Check()
	res := dto.StatusResponse{
		Status:          status,
		IntervalSeconds: h.src.Interval().Seconds(),
	}
	if last, ok := h.src.LastCycle(); ok {
		res.LastCycle = &dto.CycleItem{
			ID:         last.ID,
			StartedAt:  last.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt: last.FinishedAt().UTC().Format(time.RFC3339),
			DurationMS: last.Duration.Milliseconds(),
			Symbols:    last.Symbols,
			Fetched:    last.Fetched,
			Stored:     last.Stored,
			Published:  last.Published,
			Failed:     last.Failed,
			Error:      last.Error,
		}
	}
	c.JSON(http.StatusOK, res)
}
