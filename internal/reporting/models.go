package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest selects calls by start time in [From, To).
type SummaryRequest struct {
	Range TimeRange `json:"range"`
	// ShopID is optional.
	ShopID string `json:"shop_id,omitempty"`
}

type CallsSummary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	TotalCalls    int `json:"total_calls"`
	InboundCalls  int `json:"inbound_calls"`
	OutboundCalls int `json:"outbound_calls"`
	RecordedCalls int `json:"recorded_calls"`

	TranscribedCalls int `json:"transcribed_calls"`
	SampleOnlyCalls  int `json:"sample_only_calls"`
	SkippedCalls     int `json:"skipped_calls"`
	FailedCalls      int `json:"failed_calls"`
	PendingCalls     int `json:"pending_calls"`

	SalesCalls        int `json:"sales_calls"`
	UnattributedCalls int `json:"unattributed_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	ByShop map[string]int `json:"by_shop,omitempty"`
}
