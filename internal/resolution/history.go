package resolution

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// HistoryRecorder persists search outcomes. Recording is best effort by
// contract: failures are logged and never surface to the caller.
type HistoryRecorder struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewHistoryRecorder creates a recorder on an existing gorm connection.
func NewHistoryRecorder(db *gorm.DB, log zerolog.Logger) *HistoryRecorder {
	return &HistoryRecorder{
		db:  db,
		log: log.With().Str("component", "search_history").Logger(),
	}
}

// Record upserts the (query, queryType) row, incrementing its counter.
func (h *HistoryRecorder) Record(query, queryType string, found bool, elapsed time.Duration) {
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var rec SearchHistoryRecord
		err := tx.Where("query = ? AND query_type = ?", query, queryType).First(&rec).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		rec.Query = query
		rec.QueryType = queryType
		rec.ResultFound = found
		rec.SearchCount++
		rec.LastSearched = time.Now()
		rec.ResponseMs = elapsed.Milliseconds()
		return tx.Save(&rec).Error
	})
	if err != nil {
		h.log.Warn().Err(err).Str("query", query).Msg("failed to record search history")
	}
}

// SearchCount reports the historical frequency for a query, feeding the
// relevance scorer's popularity component. Errors read as zero.
func (h *HistoryRecorder) SearchCount(query, queryType string) int64 {
	var rec SearchHistoryRecord
	err := h.db.Where("query = ? AND query_type = ?", query, queryType).First(&rec).Error
	if err != nil {
		return 0
	}
	return rec.SearchCount
}

// Recent returns up to limit distinct queries, most recently searched
// first, for the scorer's recency component.
func (h *HistoryRecorder) Recent(limit int) []string {
	var recs []SearchHistoryRecord
	err := h.db.Order("last_searched DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to load recent searches")
		return nil
	}
	queries := make([]string, 0, len(recs))
	for _, r := range recs {
		queries = append(queries, r.Query)
	}
	return queries
}
