package aggregator

import (
	"github.com/arkilian/drilldown/pkg/types"
)

// Breakdown groups rows by a single field (campaign_type, date, any id) and
// returns one aggregate per distinct value in first-occurrence order. ID and
// Name both carry the rendered field value.
func Breakdown(rows []types.FactRow, field string) []types.AggregateRow {
	g := newGrouper()
	fields := []string{field}
	for _, r := range rows {
		g.add(keyValues(r, fields), r.Measures())
	}

	out := make([]types.AggregateRow, 0, g.len())
	g.each(func(gr *group) {
		out = append(out, types.AggregateRow{
			ID:       gr.keyVals[0],
			Name:     gr.keyVals[0],
			Measures: gr.measures,
			Ratios:   Derive(gr.measures),
		})
	})
	return out
}

// Totals sums every row and derives the overall ratios.
func Totals(rows []types.FactRow) types.Totals {
	var m types.Measures
	for _, r := range rows {
		m.Add(r.Measures())
	}
	return types.Totals{
		Rows:     len(rows),
		Measures: m,
		Ratios:   Derive(m),
	}
}
