package aggregator

import (
	"sort"
	"time"

	"github.com/arkilian/drilldown/pkg/types"
)

// DetailSeries returns the per-day measures of the rows whose field equals
// id, sorted ascending by date. No matching rows yields an empty slice.
func DetailSeries(rows []types.FactRow, field, id string) []types.DetailRow {
	byDay := make(map[time.Time]*types.DetailRow)
	for _, r := range rows {
		v, ok := r.Field(field)
		if !ok {
			continue
		}
		if s, _ := v.(string); s != id {
			continue
		}
		accumulateDay(byDay, r)
	}
	return sortedDays(byDay)
}

// DetailSeries drills into one node of level l.
func (l Level) DetailSeries(rows []types.FactRow, id string) []types.DetailRow {
	if !l.Valid() {
		return []types.DetailRow{}
	}
	return DetailSeries(rows, l.IDField(), id)
}

// Daily returns the per-day measures of every row, sorted ascending by date.
func Daily(rows []types.FactRow) []types.DetailRow {
	byDay := make(map[time.Time]*types.DetailRow)
	for _, r := range rows {
		accumulateDay(byDay, r)
	}
	return sortedDays(byDay)
}

func accumulateDay(byDay map[time.Time]*types.DetailRow, r types.FactRow) {
	d := types.Day(r.Date)
	dr, exists := byDay[d]
	if !exists {
		dr = &types.DetailRow{Date: d}
		byDay[d] = dr
	}
	dr.Measures.Add(r.Measures())
}

func sortedDays(byDay map[time.Time]*types.DetailRow) []types.DetailRow {
	out := make([]types.DetailRow, 0, len(byDay))
	for _, dr := range byDay {
		out = append(out, *dr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
