// Package entity defines the domain models for the companies feature.
package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Industry is the four-level industry classification of a listed company.
type Industry struct {
	Macro  string // e.g. "Energy"
	Sector string // e.g. "Oil Gas & Consumable Fuels"
	Group  string // e.g. "Petroleum Products"
	Basic  string // e.g. "Refineries & Marketing"
}

// EligibilityFlags are the boolean eligibility markers published by the exchange.
type EligibilityFlags struct {
	FNO          bool // futures & options
	CorporateAct bool
	SLB          bool // securities lending & borrowing
	Debt         bool
	ETF          bool
	Hybrid       bool
	Top10        bool
	Derivatives  bool
}

// CompanySymbol is the metadata of one ticker symbol. There is exactly one per symbol.
// Misc collects provider fields that are not modeled; it is merged, never replaced, on upsert.
type CompanySymbol struct {
	Query               string // free-text query that resolved this symbol
	CompanyName         string
	Symbol              string
	ListingType         string // series, e.g. "EQ"
	ListingDate         time.Time
	ISIN                string
	IsSuspended         bool
	IsDelisted          bool
	ActiveSeries        []string
	TempSuspendedSeries []string
	TradingStatus       string
	BoardStatus         string
	Segment             string
	ClassOfShare        string
	FaceValue           decimal.Decimal
	Flags               EligibilityFlags
	Industry            Industry
	Misc                map[string]any
	LastChecked         time.Time
}
