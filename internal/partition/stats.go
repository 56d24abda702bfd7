package partition

import (
	"time"

	"github.com/arkilian/drilldown/pkg/types"
)

// StatsTracker accumulates shard statistics while rows are encoded.
type StatsTracker struct {
	rowCount int64
	minDate  *time.Time
	maxDate  *time.Time
}

// NewStatsTracker creates a new statistics tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// Update adds one row.
func (s *StatsTracker) Update(row types.FactRow) {
	s.rowCount++
	d := types.Day(row.Date)
	if s.minDate == nil || d.Before(*s.minDate) {
		s.minDate = &d
	}
	if s.maxDate == nil || d.After(*s.maxDate) {
		s.maxDate = &d
	}
}

// RowCount returns the number of rows seen.
func (s *StatsTracker) RowCount() int64 {
	return s.rowCount
}

// Stats returns the shard statistics for an object of sizeBytes.
func (s *StatsTracker) Stats(sizeBytes int64) types.ShardStats {
	st := types.ShardStats{Records: s.rowCount, SizeBytes: sizeBytes}
	if s.minDate != nil {
		st.MinDate = s.minDate.Format("2006-01-02")
		st.MaxDate = s.maxDate.Format("2006-01-02")
	}
	return st
}
