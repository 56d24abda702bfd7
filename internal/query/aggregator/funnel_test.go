package aggregator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/drilldown/pkg/types"
)

func TestFunnel(t *testing.T) {
	f := Funnel(types.EventStages, map[string]int64{"view": 1000, "cart_add": 200, "purchase": 40})
	require.Len(t, f.Stages, 3)
	require.Len(t, f.Steps, 2)
	assert.InDelta(t, 20.0, f.Rate(types.EventCartAdd), 1e-9)
	assert.InDelta(t, 20.0, f.Rate(types.EventPurchase), 1e-9)
	assert.InDelta(t, 4.0, f.Overall, 1e-9)
	assert.Equal(t, int64(200), f.Stages[1].Count)
}

func TestFunnel_ZeroDenominatorIsZero(t *testing.T) {
	f := Funnel(types.EventStages, map[string]int64{"view": 1000, "cart_add": 0, "purchase": 40})
	assert.Equal(t, 0.0, f.Rate(types.EventCartAdd))
	assert.Equal(t, 0.0, f.Rate(types.EventPurchase))
	assert.False(t, math.IsNaN(f.Rate(types.EventPurchase)))
	assert.InDelta(t, 4.0, f.Overall, 1e-9)

	empty := Funnel(types.EventStages, nil)
	assert.Equal(t, 0.0, empty.Overall)
	for _, s := range empty.Steps {
		assert.Equal(t, 0.0, s.Rate)
	}

	assert.Equal(t, 0.0, Funnel(nil, nil).Overall)
}

func events() []types.EventRow {
	ts := time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)
	return []types.EventRow{
		{TS: ts, UserID: "u1", SKUID: "sku1", EventType: "view"},
		{TS: ts.Add(time.Minute), UserID: "u1", SKUID: "sku1", EventType: "cart_add"},
		{TS: ts.Add(2 * time.Minute), UserID: "u1", SKUID: "sku1", EventType: "purchase"},
		{TS: ts.Add(time.Hour), UserID: "u2", SKUID: "sku2", EventType: "view"},
		{TS: ts.Add(time.Hour), UserID: "u2", SKUID: "sku2", EventType: "purchase"},
		{TS: ts.Add(time.Hour), UserID: "u3", SKUID: "sku2", EventType: "purchase"},
		{TS: ts.Add(2 * time.Hour), UserID: "u3", SKUID: "sku3", EventType: "view"},
		{TS: ts.Add(2 * time.Hour), UserID: "u4", SKUID: "sku4", EventType: "purchase"},
	}
}

func TestCountByField(t *testing.T) {
	counts := CountByField(events(), types.FieldEventType)
	assert.Equal(t, map[string]int64{"view": 3, "cart_add": 1, "purchase": 4}, counts)
}

func TestCountByField_SkipsAbsentValues(t *testing.T) {
	rows := []types.EventRow{{Attrs: `{"a": 1}`}, {}, {Attrs: nullKey}}
	assert.Equal(t, map[string]int64{`{"a": 1}`: 1, nullKey: 1}, CountByField(rows, types.FieldAttrs))
}

func TestTopN(t *testing.T) {
	top := TopN(events(), types.FieldSKUID, types.EventStages, types.EventPurchase, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "sku2", top[0].Key)
	assert.Equal(t, int64(2), top[0].Counts["purchase"])
	assert.Equal(t, int64(1), top[0].Counts["view"])
	// sku1 and sku4 tie on purchases; sku1 was seen first.
	assert.Equal(t, "sku1", top[1].Key)
	assert.Equal(t, int64(1), top[1].Counts["cart_add"])

	all := TopN(events(), types.FieldSKUID, types.EventStages, types.EventPurchase, 0)
	assert.Len(t, all, 4)
	assert.Equal(t, "sku3", all[3].Key)
	assert.Equal(t, int64(0), all[3].Counts["purchase"])

	assert.Empty(t, TopN(nil, types.FieldSKUID, types.EventStages, types.EventPurchase, 10))
}

func TestHourlyCounts(t *testing.T) {
	rows := append(events(), types.EventRow{TS: time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC), EventType: "share"})
	hourly := HourlyCounts(rows)
	require.NotEmpty(t, hourly)

	assert.Equal(t, HourlyCount{Hour: "2024-05-01 10:00", EventType: "view", Count: 1}, hourly[0])
	assert.Equal(t, HourlyCount{Hour: "2024-05-01 10:00", EventType: "cart_add", Count: 1}, hourly[1])
	assert.Equal(t, HourlyCount{Hour: "2024-05-01 10:00", EventType: "purchase", Count: 1}, hourly[2])
	assert.Equal(t, HourlyCount{Hour: "2024-05-01 10:00", EventType: "share", Count: 1}, hourly[3])
	assert.Equal(t, HourlyCount{Hour: "2024-05-01 11:00", EventType: "purchase", Count: 2}, hourly[5])
	assert.Len(t, hourly, 8)
}
