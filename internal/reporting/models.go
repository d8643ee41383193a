package reporting

import "time"

// TimeRange bounds a report. Both ends are required and To must be after From.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummary aggregates call metrics across all users; admin surface only.
type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	TerminatedCalls int `json:"terminated_calls"`
	CancelledCalls  int `json:"cancelled_calls"`
	LiveCalls       int `json:"live_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// TotalCostMinor sums rated calls per currency.
	TotalCostMinor map[string]int64 `json:"total_cost_minor"`

	// AverageQualityScore averages switch-reported MOS over rated calls;
	// nil when no call carried a score.
	AverageQualityScore *float64 `json:"average_quality_score,omitempty"`
}
