package report

import (
	"fmt"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/internal/query/aggregator"
	"github.com/arkilian/drilldown/internal/query/filter"
	"github.com/arkilian/drilldown/pkg/types"
)

// Query is a base filter plus user conditions.
type Query struct {
	Filter     filter.BaseFilter  `json:"filter"`
	Conditions []filter.Condition `json:"conditions,omitempty"`
}

// withDefaults fills in the fields the base filter tests when the caller
// left them empty.
func (q Query) withDefaults(categoryField, dateField string) Query {
	if q.Filter.CategoryField == "" {
		q.Filter.CategoryField = categoryField
	}
	if q.Filter.DateField == "" {
		q.Filter.DateField = dateField
	}
	return q
}

// Overview is the headline summary of the filtered ads.
type Overview struct {
	Totals  types.Totals         `json:"totals"`
	Daily   []types.DetailRow    `json:"daily"`
	ByType  []types.AggregateRow `json:"by_type"`
	Version uint64               `json:"version"`
}

// RollupRequest asks for one hierarchy level under ancestor selections.
type RollupRequest struct {
	Query
	Level aggregator.Level `json:"level"`
	// Selections maps a level name to its selected ids.
	Selections map[string][]string  `json:"selections,omitempty"`
	OrderBy    []aggregator.OrderBy `json:"order_by,omitempty"`
	Offset     int                  `json:"offset,omitempty"`
	Limit      int                  `json:"limit,omitempty"`
}

// RollupResult is one page of a level's aggregate rows.
type RollupResult struct {
	Level   aggregator.Level     `json:"level"`
	Rows    []types.AggregateRow `json:"rows"`
	Total   int                  `json:"total"`
	Version uint64               `json:"version"`
}

// SeriesRequest drills into one node of a level.
type SeriesRequest struct {
	Query
	Level aggregator.Level `json:"level"`
	ID    string           `json:"id"`
}

// SeriesResult is the per-day series of one node.
type SeriesResult struct {
	Level   aggregator.Level  `json:"level"`
	ID      string            `json:"id"`
	Rows    []types.DetailRow `json:"rows"`
	Version uint64            `json:"version"`
}

func (s *Service) filteredFacts(q Query) ([]types.FactRow, uint64) {
	q = q.withDefaults(types.FieldCampaignType, types.FieldDate)
	filter.Observe(s.observer, q.Filter, q.Conditions)
	snap := s.ads.Snapshot()
	return filter.Apply(snap.Rows, q.Filter, q.Conditions), snap.Version
}

// Overview computes totals, the daily series and the campaign type
// breakdown of the filtered ads.
func (s *Service) Overview(q Query) *Overview {
	defer s.timed("overview")()
	rows, version := s.filteredFacts(q)
	return &Overview{
		Totals:  aggregator.Totals(rows),
		Daily:   aggregator.Daily(rows),
		ByType:  aggregator.Breakdown(rows, types.FieldCampaignType),
		Version: version,
	}
}

// Rollup groups the filtered ads at req.Level, restricted by the
// selections of every ancestor level.
func (s *Service) Rollup(req RollupRequest) (*RollupResult, error) {
	defer s.timed("rollup")()
	if !req.Level.Valid() {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidLevel,
			fmt.Sprintf("invalid level %d", int(req.Level)))
	}
	sel, err := aggregator.SelectionFromMap(req.Selections)
	if err != nil {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidLevel, err.Error())
	}
	if req.Offset < 0 || req.Limit < 0 {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidRequest, "offset and limit must not be negative")
	}

	rows, version := s.filteredFacts(req.Query)
	agg := aggregator.Rollup(rows, req.Level, sel)
	if err := aggregator.SortAggregates(agg, req.OrderBy...); err != nil {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidRequest, err.Error())
	}
	return &RollupResult{
		Level:   req.Level,
		Rows:    aggregator.Paginate(agg, req.Offset, req.Limit),
		Total:   len(agg),
		Version: version,
	}, nil
}

// Series returns the daily measures of one node of req.Level.
func (s *Service) Series(req SeriesRequest) (*SeriesResult, error) {
	defer s.timed("series")()
	if !req.Level.Valid() {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidLevel,
			fmt.Sprintf("invalid level %d", int(req.Level)))
	}
	if req.ID == "" {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidRequest, "series needs an id")
	}
	rows, version := s.filteredFacts(req.Query)
	return &SeriesResult{
		Level:   req.Level,
		ID:      req.ID,
		Rows:    req.Level.DetailSeries(rows, req.ID),
		Version: version,
	}, nil
}
