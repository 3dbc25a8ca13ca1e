package domain

import "time"

// Daily analytics counter names.
const (
	MetricCacheHits      = "cache_hits"
	MetricCacheMisses    = "cache_misses"
	MetricLLMCalls       = "llm_calls"
	MetricTokensUsed     = "tokens_used"
	MetricFormatFailures = "format_failures"
)

// Metric is a daily counter identified by (Name, Date).
type Metric struct {
	Name     string    `db:"metric_name"`
	Date     time.Time `db:"metric_date"`
	Value    int64     `db:"value"`
	Metadata []byte    `db:"metadata"`
}
