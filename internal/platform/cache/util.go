package cache

import (
	"time"

	"market_ingestor/internal/shared/marketdata"
)

// 取引所の立会開始時刻（インド標準時）
const (
	sessionOpenHour   = 9
	sessionOpenMinute = 15
)

// TimeUntilNextOpen は now から次の立会開始（09:15 IST）までの期間を返します。
func TimeUntilNextOpen(now time.Time) time.Duration {
	local := now.In(marketdata.ExchangeLocation)

	next := time.Date(local.Year(), local.Month(), local.Day(), sessionOpenHour, sessionOpenMinute, 0, 0, marketdata.ExchangeLocation)

	// 今日の開始時刻を過ぎている場合は翌日
	if !local.Before(next) {
		next = next.AddDate(0, 0, 1)
	}

	return next.Sub(local)
}
