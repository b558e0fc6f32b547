package dto

// CycleItem はポーリングサイクル1回分の結果を表すレスポンスです。
type CycleItem struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	DurationMS int64  `json:"duration_ms"`
	Symbols    int    `json:"symbols"`
	Fetched    int    `json:"fetched"`
	Stored     int    `json:"stored"`
	Published  int    `json:"published"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
}

// StatusResponse は /status のレスポンスです。
type StatusResponse struct {
	Status          string     `json:"status"`
	IntervalSeconds float64    `json:"interval_seconds"`
	LastCycle       *CycleItem `json:"last_cycle"`
}
