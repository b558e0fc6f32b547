// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Checker はプロセスの状態を返します。healthy が false の場合 /healthz は 503 を返します。
type Checker func() (status string, healthy bool)

// NewHealth はサービスヘルスチェック用の /healthz エンドポイントのハンドラーを返します。
// HTTPメソッドに応じて適切にレスポンスし、キャッシュを防止します。check が nil の場合は常に正常です。
func NewHealth(check Checker) gin.HandlerFunc {
	if check == nil {
		check = func() (string, bool) { return "ok", true }
	}
	return func(c *gin.Context) {
		// 明示的にキャッシュを防止
		c.Header("Cache-Control", "no-store")

		status, healthy := check()
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}

		switch c.Request.Method {
		case http.MethodHead:
			c.Status(code)
		case http.MethodOptions:
			c.Status(http.StatusNoContent)
		default:
			c.JSON(code, gin.H{"status": status})
		}
	}
}
