// Package entity defines the domain models for the ticks feature.
package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"market_ingestor/internal/shared/marketdata"
)

// Tick is one OHLCV record of a symbol at an instant. Time is always UTC.
type Tick struct {
	Time     time.Time
	Symbol   string
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   int64
	Exchange string
}

// Placeholder returns the all-zero tick that marks a day with no provider data.
// It is stamped at UTC midnight of the given civil date.
func Placeholder(symbol string, year int, month time.Month, day int) Tick {
	return Tick{
		Time:     time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		Symbol:   symbol,
		Open:     decimal.Zero,
		High:     decimal.Zero,
		Low:      decimal.Zero,
		Close:    decimal.Zero,
		Exchange: marketdata.Exchange,
	}
}

// IsPlaceholder reports whether t carries no price data.
func (t Tick) IsPlaceholder() bool {
	return t.Open.IsZero() && t.High.IsZero() && t.Low.IsZero() && t.Close.IsZero() && t.Volume == 0
}
