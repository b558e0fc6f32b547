// Package marketdata defines the data contract of the exchange market data provider.
//
// The provider is consumed through small interfaces declared by each usecase;
// this package only holds the values that cross that boundary.
package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exchange is the exchange identifier stamped on every tick.
const Exchange = "NSE"

// ExchangeLocation is the fixed local time offset of the exchange (IST, UTC+05:30).
var ExchangeLocation = time.FixedZone("IST", 5*60*60+30*60)

// SymbolCandidate is one result of a free-text symbol lookup.
type SymbolCandidate struct {
	Symbol          string // e.g. "RELIANCE"
	MatchedName     string // company name the query matched
	ListingDateText string // provider-formatted listing date, may be empty
	ListingType     string // provider result sub type, e.g. "equity"
}

// Quote is the current quote of a symbol.
// Raw holds the complete provider payload, including sections not modeled here.
type Quote struct {
	Symbol   string
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   int64
	DateText string // provider timestamp, e.g. "14-Oct-2026 15:30:00"
	Raw      map[string]any
}

// RawBar is one historical record with provider-specific field names.
type RawBar map[string]any

// IsEmpty reports whether the quote carries no price data at all.
func (q Quote) IsEmpty() bool {
	return q.DateText == "" && q.Open.IsZero() && q.High.IsZero() && q.Low.IsZero() && q.Close.IsZero() && q.Volume == 0
}
