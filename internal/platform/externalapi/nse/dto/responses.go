// Package dto holds the wire shapes of NSE API responses.
package dto

// AutocompleteResponse is the body of /api/search/autocomplete.
type AutocompleteResponse struct {
	Symbols []SymbolItem `json:"symbols"`
}

// SymbolItem is one autocomplete hit.
type SymbolItem struct {
	Symbol        string `json:"symbol"`
	SymbolInfo    string `json:"symbol_info"` // company name
	ResultType    string `json:"result_type"` // "symbol" for listed securities
	ResultSubType string `json:"result_sub_type"`
	ListingDate   string `json:"listing_date"`
}

// HistoricalResponse is the body of /api/historical/cm/equity.
// Records keep the provider field names; they are decoded with json.Number.
type HistoricalResponse struct {
	Data []map[string]any `json:"data"`
}
