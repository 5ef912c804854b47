package resolution

import (
	"time"

	"gorm.io/gorm"
)

// SearchHistoryRecord persists per-query counters. Keyed by
// (query, query_type); counts are monotonically incremented and never
// deleted by this service.
type SearchHistoryRecord struct {
	gorm.Model   `json:"-"`
	Query        string    `gorm:"uniqueIndex:idx_query_type" json:"query"`
	QueryType    string    `gorm:"uniqueIndex:idx_query_type" json:"query_type"`
	ResultFound  bool      `json:"result_found"`
	SearchCount  int64     `json:"search_count"`
	LastSearched time.Time `json:"last_searched"`
	ResponseMs   int64     `json:"response_ms"` // most recent response time
}
