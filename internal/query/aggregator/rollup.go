// Package aggregator computes hierarchical rollups, derived ratio metrics,
// drill-down series, rankings and funnels over in-memory row sets. Every
// entry point is a pure function of its arguments and returns freshly
// allocated results.
package aggregator

import (
	"github.com/arkilian/drilldown/pkg/types"
)

// Rollup groups rows at level l after restricting them to the selected ids
// of every ancestor level with a non-empty selection. Measures are summed per
// group, ratio metrics derived, and ancestor ids attached. Groups are returned
// in the order their key first appears in rows.
//
// A nil selection restricts nothing. An invalid level yields an empty result.
func Rollup(rows []types.FactRow, l Level, sel *Selection) []types.AggregateRow {
	if !l.Valid() {
		return []types.AggregateRow{}
	}

	restrict := ancestorPredicate(l, sel)
	def := levels[l]
	g := newGrouper()
	for i := range rows {
		r := rows[i]
		if !restrict(r) {
			continue
		}
		g.add(keyValues(r, def.groupBy), r.Measures())
	}

	out := make([]types.AggregateRow, 0, g.len())
	g.each(func(gr *group) {
		out = append(out, toAggregate(l, gr))
	})
	return out
}

// RollupAll computes the rollup of every level under the same selection.
func RollupAll(rows []types.FactRow, sel *Selection) map[Level][]types.AggregateRow {
	out := make(map[Level][]types.AggregateRow, levelCount)
	for _, l := range Levels() {
		out[l] = Rollup(rows, l, sel)
	}
	return out
}

// Restrict returns the rows that survive the ancestor selections of level l.
func Restrict(rows []types.FactRow, l Level, sel *Selection) []types.FactRow {
	restrict := ancestorPredicate(l, sel)
	out := make([]types.FactRow, 0, len(rows))
	for _, r := range rows {
		if restrict(r) {
			out = append(out, r)
		}
	}
	return out
}

// ancestorPredicate builds the cascading filter for level l: a row passes
// when, for every ancestor level with a non-empty selection, its id at that
// level is selected.
func ancestorPredicate(l Level, sel *Selection) func(types.FactRow) bool {
	type test struct {
		field string
		ids   map[string]struct{}
	}
	var tests []test
	if sel != nil {
		for a := LevelAccount; a < l; a++ {
			ids := sel.levels[a]
			if len(ids) == 0 {
				continue
			}
			set := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				set[id] = struct{}{}
			}
			tests = append(tests, test{field: a.IDField(), ids: set})
		}
	}
	return func(r types.FactRow) bool {
		for _, t := range tests {
			v, _ := r.Field(t.field)
			id, _ := v.(string)
			if _, ok := t.ids[id]; !ok {
				return false
			}
		}
		return true
	}
}

func toAggregate(l Level, gr *group) types.AggregateRow {
	k := gr.keyVals
	row := types.AggregateRow{
		ID:       k[0],
		Name:     levels[l].display(k),
		Measures: gr.measures,
		Ratios:   Derive(gr.measures),
	}
	switch l {
	case LevelAccount:
		row.AdvertiserID = k[0]
	case LevelCampaign:
		row.CampaignID = k[0]
		row.CampaignType = k[1]
		row.AdvertiserID = k[2]
	case LevelAdSet:
		row.AdSetID = k[0]
		row.CampaignID = k[1]
	case LevelAd:
		row.AdSetID = k[1]
		row.CampaignID = k[2]
	}
	return row
}

// AncestorID returns the id of the row's ancestor at level a, when the row's
// level carries it.
func AncestorID(row types.AggregateRow, a Level) (string, bool) {
	var id string
	switch a {
	case LevelAccount:
		id = row.AdvertiserID
	case LevelCampaign:
		id = row.CampaignID
	case LevelAdSet:
		id = row.AdSetID
	}
	return id, id != ""
}
