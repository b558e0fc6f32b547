package dto

// TickItem は1件のティックを表すレスポンスです。価格は文字列の10進数です。
type TickItem struct {
	Time     string `json:"time"`
	Symbol   string `json:"symbol"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   int64  `json:"volume"`
	Exchange string `json:"exchange"`
}
