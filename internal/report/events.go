package report

import (
	"fmt"
	"time"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/internal/query/aggregator"
	"github.com/arkilian/drilldown/internal/query/filter"
	"github.com/arkilian/drilldown/pkg/types"
)

const (
	// TopSKUs is the length of the SKU ranking.
	TopSKUs = 10
	// DefaultRowPage caps the event rows returned for the detail table.
	DefaultRowPage = 1000
)

// EventSummary aggregates the filtered events on their core fields only;
// attrs payloads are never parsed here.
type EventSummary struct {
	Rows    int                      `json:"rows"`
	Counts  map[string]int64         `json:"counts"`
	Funnel  aggregator.FunnelResult  `json:"funnel"`
	Hourly  []aggregator.HourlyCount `json:"hourly"`
	TopSKUs []aggregator.RankRow     `json:"top_skus"`
	Version uint64                   `json:"version"`
}

// EventPage is a window of the filtered event rows.
type EventPage struct {
	Rows    []types.EventRow `json:"rows"`
	Total   int              `json:"total"`
	Version uint64           `json:"version"`
}

// AttrsRequest identifies one event row for expansion. Path optionally
// selects part of the payload with a JSONPath such as "$.price".
type AttrsRequest struct {
	UserID string    `json:"user_id"`
	TS     time.Time `json:"ts"`
	// SKUID and EventType narrow the match when a user logged several
	// events at the same timestamp.
	SKUID     string `json:"sku_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Path      string `json:"path,omitempty"`
}

// AttrsResult is the parsed payload of one row, or the matches of Path.
type AttrsResult struct {
	Key     string                 `json:"key"`
	Attrs   map[string]interface{} `json:"attrs"`
	Matches []interface{}          `json:"matches,omitempty"`
	// Error is set when the payload is not valid JSON.
	Error string `json:"error,omitempty"`
}

func (s *Service) filteredEvents(q Query) ([]types.EventRow, uint64) {
	q = q.withDefaults(types.FieldEventType, types.FieldTS)
	filter.Observe(s.observer, q.Filter, q.Conditions)
	snap := s.events.Snapshot()
	return filter.Apply(snap.Rows, q.Filter, q.Conditions), snap.Version
}

// EventSummary counts the filtered events per type, derives the funnel,
// buckets them by hour and ranks SKUs by purchases.
func (s *Service) EventSummary(q Query) *EventSummary {
	defer s.timed("event_summary")()
	rows, version := s.filteredEvents(q)
	counts := aggregator.CountByField(rows, types.FieldEventType)
	return &EventSummary{
		Rows:    len(rows),
		Counts:  counts,
		Funnel:  aggregator.Funnel(types.EventStages, counts),
		Hourly:  aggregator.HourlyCounts(rows),
		TopSKUs: aggregator.TopN(rows, types.FieldSKUID, types.EventStages, types.EventPurchase, TopSKUs),
		Version: version,
	}
}

// EventRows returns the window [offset, offset+limit) of the filtered
// events in load order. A non-positive limit uses DefaultRowPage.
func (s *Service) EventRows(q Query, offset, limit int) (*EventPage, error) {
	if offset < 0 {
		return nil, dderrors.NewValidationError(dderrors.CodeInvalidRequest, "offset must not be negative")
	}
	if limit <= 0 {
		limit = DefaultRowPage
	}
	rows, version := s.filteredEvents(q)
	page := &EventPage{Rows: []types.EventRow{}, Total: len(rows), Version: version}
	if offset < len(rows) {
		end := offset + limit
		if end > len(rows) {
			end = len(rows)
		}
		page.Rows = rows[offset:end]
	}
	return page, nil
}

// Attrs expands one event row: its payload is parsed on first access and
// memoized. A malformed payload is reported in the result, not as an error.
func (s *Service) Attrs(req AttrsRequest) (*AttrsResult, error) {
	row, ok := s.findEvent(req)
	if !ok {
		return nil, dderrors.NewValidationError(dderrors.CodeRowNotFound,
			fmt.Sprintf("no event for user %q at %s", req.UserID, req.TS.UTC().Format(time.RFC3339Nano)))
	}
	res := &AttrsResult{Key: row.Key()}
	attrs, err := s.payloads.Get(row)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}
	res.Attrs = attrs
	if req.Path != "" {
		matches, err := s.payloads.Lookup(row, req.Path)
		if err != nil {
			return nil, dderrors.NewValidationError(dderrors.CodeInvalidRequest, err.Error())
		}
		res.Matches = matches
	}
	return res, nil
}

// findEvent returns the first row in load order matching req.
func (s *Service) findEvent(req AttrsRequest) (types.EventRow, bool) {
	for _, r := range s.events.Snapshot().Rows {
		if r.UserID != req.UserID || !r.TS.Equal(req.TS) {
			continue
		}
		if req.SKUID != "" && r.SKUID != req.SKUID {
			continue
		}
		if req.EventType != "" && r.EventType != req.EventType {
			continue
		}
		return r, true
	}
	return types.EventRow{}, false
}
