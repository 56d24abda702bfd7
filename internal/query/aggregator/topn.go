package aggregator

import (
	"sort"

	"github.com/arkilian/drilldown/pkg/types"
)

// RankRow is one ranked dimension value with its summed indicator counts.
type RankRow struct {
	Key    string           `json:"key"`
	Counts map[string]int64 `json:"counts"`
}

// TopN ranks event rows by dimension. Each row contributes a 0/1 indicator
// per entry of indicators (is this row's event type equal to the entry), the
// indicators are summed per dimension value, and the groups are stably sorted
// descending by the sum named by. Ties keep first-occurrence order. The
// result is truncated to n; n <= 0 returns every group.
func TopN(rows []types.EventRow, dimension string, indicators []string, by string, n int) []RankRow {
	index := make(map[string]int)
	out := make([]RankRow, 0)
	for _, r := range rows {
		t := keyValues(r, []string{dimension})
		key := t.vals[0]
		i, exists := index[t.key]
		if !exists {
			counts := make(map[string]int64, len(indicators))
			for _, ind := range indicators {
				counts[ind] = 0
			}
			out = append(out, RankRow{Key: key, Counts: counts})
			i = len(out) - 1
			index[t.key] = i
		}
		for _, ind := range indicators {
			if r.EventType == ind {
				out[i].Counts[ind]++
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Counts[by] > out[j].Counts[by]
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
