package router

import (
	tickshandler "market_ingestor/internal/feature/ticks/transport/handler"
	"market_ingestor/internal/platform/http/handler"

	"github.com/gin-gonic/gin"
)

// NewRouter はポーラープロセスの監視用ルートを登録します。
func NewRouter(poller *tickshandler.PollerHandler, latest *tickshandler.LatestHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 導通確認用
	health := handler.NewHealth(poller.Check)
	r.GET("/healthz", health)
	r.HEAD("/healthz", health)
	// 直近のポーリング結果
	r.GET("/status", poller.Status)
	// 銘柄ごとの最新ティック
	r.GET("/ticks/:symbol/latest", latest.Latest)

	return r
}
