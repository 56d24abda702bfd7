package aggregator

import (
	"sort"
	"time"

	"github.com/arkilian/drilldown/pkg/types"
)

// FunnelStage is one named stage with its count.
type FunnelStage struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// FunnelStep is the conversion rate between two consecutive stages.
type FunnelStep struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
}

// FunnelResult holds stage counts, pairwise rates and the overall rate.
type FunnelResult struct {
	Stages  []FunnelStage `json:"stages"`
	Steps   []FunnelStep  `json:"steps"`
	Overall float64       `json:"overall"`
}

// Rate returns the rate of the step entering stage to, or 0 when absent.
func (f FunnelResult) Rate(to string) float64 {
	for _, s := range f.Steps {
		if s.To == to {
			return s.Rate
		}
	}
	return 0
}

// Funnel computes stage-to-stage conversion percentages for an ordered
// stage list. Stages missing from counts count as zero. Unlike the ratio
// metrics, a zero denominator yields a rate of 0 so the result is always
// finite.
func Funnel(stages []string, counts map[string]int64) FunnelResult {
	res := FunnelResult{
		Stages: make([]FunnelStage, len(stages)),
		Steps:  make([]FunnelStep, 0, len(stages)),
	}
	for i, name := range stages {
		res.Stages[i] = FunnelStage{Name: name, Count: counts[name]}
	}
	for i := 1; i < len(stages); i++ {
		res.Steps = append(res.Steps, FunnelStep{
			From: stages[i-1],
			To:   stages[i],
			Rate: funnelRate(res.Stages[i].Count, res.Stages[i-1].Count),
		})
	}
	if len(stages) > 0 {
		res.Overall = funnelRate(res.Stages[len(stages)-1].Count, res.Stages[0].Count)
	}
	return res
}

func funnelRate(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}

// CountByField counts rows per rendered value of field. Rows without a
// value for field are not counted.
func CountByField[R types.Fielder](rows []R, field string) map[string]int64 {
	counts := make(map[string]int64)
	for _, r := range rows {
		if s, present := keyPart(r.Field(field)); present {
			counts[s]++
		}
	}
	return counts
}

// HourlyCount is the number of events of one type within one hour.
type HourlyCount struct {
	Hour      string `json:"hour"`
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// HourlyCounts buckets events by (hour, event type). The result is ordered
// by hour, then by funnel stage order, with unknown event types last in
// lexical order.
func HourlyCounts(rows []types.EventRow) []HourlyCount {
	type bucket struct {
		hour      time.Time
		eventType string
	}
	counts := make(map[bucket]int64)
	for _, r := range rows {
		counts[bucket{hour: r.TS.UTC().Truncate(time.Hour), eventType: r.EventType}]++
	}

	keys := make([]bucket, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].hour.Equal(keys[j].hour) {
			return keys[i].hour.Before(keys[j].hour)
		}
		si, sj := stageRank(keys[i].eventType), stageRank(keys[j].eventType)
		if si != sj {
			return si < sj
		}
		return keys[i].eventType < keys[j].eventType
	})

	out := make([]HourlyCount, len(keys))
	for i, k := range keys {
		out[i] = HourlyCount{
			Hour:      k.hour.Format("2006-01-02 15:00"),
			EventType: k.eventType,
			Count:     counts[k],
		}
	}
	return out
}

func stageRank(eventType string) int {
	for i, s := range types.EventStages {
		if s == eventType {
			return i
		}
	}
	return len(types.EventStages)
}
