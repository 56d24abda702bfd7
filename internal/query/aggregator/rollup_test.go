package aggregator

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/drilldown/pkg/types"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// factFromSeed builds a fact row whose position in a fixed 2x2x2x3 hierarchy
// and whose integer-valued measures are derived from seed.
func factFromSeed(seed int) types.FactRow {
	ad := seed % 24
	adSet := ad / 3
	campaign := adSet / 2
	account := campaign / 2
	campaignType := "search"
	if campaign%2 == 1 {
		campaignType = "display"
	}
	return types.FactRow{
		Date:         base.AddDate(0, 0, seed%7),
		AdvertiserID: fmt.Sprintf("A%d", account),
		CampaignID:   fmt.Sprintf("C%d", campaign),
		CampaignType: campaignType,
		AdSetID:      fmt.Sprintf("S%d", adSet),
		AdID:         fmt.Sprintf("AD%d", ad),
		Impressions:  float64(seed % 1000),
		Clicks:       float64(seed % 97),
		Cost:         float64(seed % 53),
		Conversions:  float64(seed % 11),
		GMV:          float64(seed % 211),
	}
}

func factsFromSeeds(seeds []int) []types.FactRow {
	rows := make([]types.FactRow, len(seeds))
	for i, s := range seeds {
		rows[i] = factFromSeed(s)
	}
	return rows
}

func sameBits(a, b []types.AggregateRow) bool {
	if len(a) != len(b) {
		return false
	}
	floats := func(r types.AggregateRow) []float64 {
		return []float64{r.Impressions, r.Clicks, r.Cost, r.Conversions, r.GMV, r.CTR, r.CVR, r.ROI}
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Name != b[i].Name ||
			a[i].AdvertiserID != b[i].AdvertiserID || a[i].CampaignID != b[i].CampaignID ||
			a[i].CampaignType != b[i].CampaignType || a[i].AdSetID != b[i].AdSetID {
			return false
		}
		fa, fb := floats(a[i]), floats(b[i])
		for j := range fa {
			if math.Float64bits(fa[j]) != math.Float64bits(fb[j]) {
				return false
			}
		}
	}
	return true
}

func TestRollup_Levels(t *testing.T) {
	rows := []types.FactRow{
		{AdvertiserID: "1", CampaignID: "7", CampaignType: "search", AdSetID: "9", AdID: "4", Impressions: 100, Clicks: 10, Cost: 50, Conversions: 2, GMV: 75},
		{AdvertiserID: "1", CampaignID: "7", CampaignType: "search", AdSetID: "9", AdID: "5", Impressions: 100, Clicks: 30, Cost: 50, Conversions: 3, GMV: 25},
		{AdvertiserID: "2", CampaignID: "8", CampaignType: "display", AdSetID: "10", AdID: "6", Impressions: 0, Clicks: 0, Cost: 0},
	}

	accounts := Rollup(rows, LevelAccount, nil)
	require.Len(t, accounts, 2)
	assert.Equal(t, "1", accounts[0].ID)
	assert.Equal(t, "Account 1", accounts[0].Name)
	assert.Equal(t, 200.0, accounts[0].Impressions)
	assert.Equal(t, 40.0, accounts[0].Clicks)
	assert.InDelta(t, 20.0, accounts[0].CTR, 1e-9)
	assert.InDelta(t, 12.5, accounts[0].CVR, 1e-9)
	assert.InDelta(t, 0.0, accounts[0].ROI, 1e-9)
	assert.True(t, math.IsNaN(accounts[1].CTR), "zero impressions must yield NaN")

	campaigns := Rollup(rows, LevelCampaign, nil)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "Campaign 7 (search)", campaigns[0].Name)
	assert.Equal(t, "search", campaigns[0].CampaignType)
	assert.Equal(t, "1", campaigns[0].AdvertiserID)

	adSets := Rollup(rows, LevelAdSet, nil)
	require.Len(t, adSets, 2)
	assert.Equal(t, "Ad Set 9", adSets[0].Name)
	assert.Equal(t, "7", adSets[0].CampaignID)

	ads := Rollup(rows, LevelAd, nil)
	require.Len(t, ads, 3)
	assert.Equal(t, "Ad 4", ads[0].Name)
	assert.Equal(t, "9", ads[0].AdSetID)
	assert.Equal(t, "7", ads[0].CampaignID)
}

func TestRollup_SeparatorInIdentifiers(t *testing.T) {
	rows := []types.FactRow{
		{AdvertiserID: "A", CampaignID: "a|b", CampaignType: "c", Impressions: 1},
		{AdvertiserID: "A", CampaignID: "a", CampaignType: "b|c", Impressions: 1},
		{AdvertiserID: "A", CampaignID: "1:x", CampaignType: "y", Impressions: 1},
		{AdvertiserID: "A", CampaignID: "1", CampaignType: ":x1:y", Impressions: 1},
	}
	campaigns := Rollup(rows, LevelCampaign, nil)
	require.Len(t, campaigns, 4)
	assert.Equal(t, "a|b", campaigns[0].CampaignID)
	assert.Equal(t, "c", campaigns[0].CampaignType)
	assert.Equal(t, "a", campaigns[1].CampaignID)
	assert.Equal(t, "b|c", campaigns[1].CampaignType)
	for _, c := range campaigns {
		assert.Equal(t, 1.0, c.Impressions)
	}

	byType := Breakdown(rows, types.FieldCampaignType)
	assert.Len(t, byType, 4)
}

type nullableRow struct {
	fields map[string]string
}

func (r nullableRow) Field(name string) (interface{}, bool) {
	v, ok := r.fields[name]
	return v, ok
}

func TestKeyValues_AbsentIsNotTheNullLabel(t *testing.T) {
	absent := keyValues(nullableRow{}, []string{"sku_id"})
	literal := keyValues(nullableRow{fields: map[string]string{"sku_id": nullKey}}, []string{"sku_id"})
	assert.Equal(t, absent.vals, literal.vals)
	assert.NotEqual(t, absent.key, literal.key)

	empty := keyValues(nullableRow{fields: map[string]string{"sku_id": ""}}, []string{"sku_id"})
	assert.NotEqual(t, absent.key, empty.key)
}

func TestRollup_EmptyAndInvalid(t *testing.T) {
	out := Rollup(nil, LevelAd, nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Empty(t, Rollup(factsFromSeeds([]int{1, 2}), Level(9), nil))
}

func TestRollup_CascadingSelection(t *testing.T) {
	rows := factsFromSeeds([]int{0, 3, 6, 12, 15, 18, 21, 23})

	sel := NewSelection()
	sel.Select(LevelAccount, "A1")
	campaigns := Rollup(rows, LevelCampaign, sel)
	require.NotEmpty(t, campaigns)
	for _, c := range campaigns {
		assert.Equal(t, "A1", c.AdvertiserID)
	}

	sel.Select(LevelCampaign, "C3")
	adSets := Rollup(rows, LevelAdSet, sel)
	require.NotEmpty(t, adSets)
	for _, s := range adSets {
		assert.Equal(t, "C3", s.CampaignID)
	}

	// Selecting at the campaign level does not restrict campaigns themselves.
	assert.Len(t, Rollup(rows, LevelCampaign, sel), len(campaigns))

	// A selection that matches nothing yields nothing below it.
	sel.Select(LevelAccount, "missing")
	assert.Empty(t, Rollup(rows, LevelAd, sel))
}

func TestRollup_DoesNotMutateInput(t *testing.T) {
	rows := factsFromSeeds([]int{1, 2, 3, 4})
	before := append([]types.FactRow(nil), rows...)
	sel := NewSelection()
	sel.Select(LevelAccount, "A0")
	_ = Rollup(rows, LevelAd, sel)
	assert.Equal(t, before, rows)
}

func TestRollupAll(t *testing.T) {
	all := RollupAll(factsFromSeeds([]int{0, 5, 11, 23}), nil)
	require.Len(t, all, 4)
	assert.Len(t, all[LevelAd], 4)
	assert.Len(t, all[LevelAccount], 2)
}

func TestAncestorID(t *testing.T) {
	row := types.AggregateRow{ID: "S1", AdSetID: "S1", CampaignID: "C0"}
	id, ok := AncestorID(row, LevelCampaign)
	assert.True(t, ok)
	assert.Equal(t, "C0", id)
	_, ok = AncestorID(row, LevelAccount)
	assert.False(t, ok)
}

// TestProperty_RollupConservesMass validates that, for every level, the sum
// of each measure across the aggregate rows equals the sum across the input.
func TestProperty_RollupConservesMass(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("measure sums are preserved at every level", prop.ForAll(
		func(seeds []int) bool {
			rows := factsFromSeeds(seeds)
			want := Totals(rows).Measures
			for _, l := range Levels() {
				var got types.Measures
				for _, agg := range Rollup(rows, l, nil) {
					got.Add(agg.Measures)
				}
				if got != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1<<20)),
	))

	properties.TestingRun(t)
}

// TestProperty_RollupIdempotent validates that repeated rollups over the same
// inputs are bit-identical, including NaN ratios.
func TestProperty_RollupIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("rollup is a pure function", prop.ForAll(
		func(seeds []int, levelIdx int, account int) bool {
			rows := factsFromSeeds(seeds)
			sel := NewSelection()
			if account >= 0 {
				sel.Select(LevelAccount, fmt.Sprintf("A%d", account))
			}
			l := Level(levelIdx)
			return sameBits(Rollup(rows, l, sel), Rollup(rows, l, sel.Snapshot()))
		},
		gen.SliceOf(gen.IntRange(0, 1<<20)),
		gen.IntRange(0, levelCount-1),
		gen.IntRange(-1, 1),
	))

	properties.TestingRun(t)
}

// TestProperty_CascadeMatchesSelection validates that level L+1 aggregates
// under a selection at L are exactly those whose ancestor id is selected.
func TestProperty_CascadeMatchesSelection(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("child aggregates belong to selected parents", prop.ForAll(
		func(seeds []int, levelIdx int, pick []int) bool {
			rows := factsFromSeeds(seeds)
			parent := Level(levelIdx)
			child := parent + 1

			parents := Rollup(rows, parent, nil)
			if len(parents) == 0 {
				return len(Rollup(rows, child, nil)) == 0
			}
			var ids []string
			for _, p := range pick {
				ids = append(ids, parents[p%len(parents)].ID)
			}
			sel := NewSelection()
			sel.Select(parent, ids...)

			selected := make(map[string]bool)
			for _, id := range ids {
				selected[id] = true
			}
			got := Rollup(rows, child, sel)
			for _, c := range got {
				id, ok := AncestorID(c, parent)
				if !ok || !selected[id] {
					return false
				}
			}
			expected := 0
			for _, c := range Rollup(rows, child, nil) {
				if id, _ := AncestorID(c, parent); selected[id] {
					expected++
				}
			}
			return expected == len(got)
		},
		gen.SliceOf(gen.IntRange(0, 1<<20)),
		gen.IntRange(0, int(LevelAdSet)),
		gen.SliceOfN(2, gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}

// idTokens mixes plain ids with ids containing the key separator, the length
// delimiter and the null label.
var idTokens = []string{"a", "b", "c", "a|b", "b|c", "|", "", "1:a", "<NULL>"}

func tokenFact(seed int) types.FactRow {
	k := len(idTokens)
	return types.FactRow{
		AdvertiserID: idTokens[(seed/(k*k))%k],
		CampaignID:   idTokens[seed%k],
		CampaignType: idTokens[(seed/k)%k],
		AdSetID:      idTokens[(seed/(k*k*k))%k],
		AdID:         idTokens[(seed/(k*k*k*k))%k],
		Impressions:  float64(seed % 1000),
		Clicks:       float64(seed % 97),
	}
}

// TestProperty_GroupsMatchDistinctTuples validates that every level yields
// exactly one aggregate per distinct key tuple, whatever bytes the ids hold.
func TestProperty_GroupsMatchDistinctTuples(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("one group per distinct tuple", prop.ForAll(
		func(seeds []int) bool {
			rows := make([]types.FactRow, len(seeds))
			for i, s := range seeds {
				rows[i] = tokenFact(s)
			}
			want := Totals(rows).Measures
			for _, l := range Levels() {
				distinct := make(map[[3]string]bool)
				for _, r := range rows {
					var tuple [3]string
					for i, f := range l.GroupBy() {
						v, _ := r.Field(f)
						tuple[i] = v.(string)
					}
					distinct[tuple] = true
				}
				aggs := Rollup(rows, l, nil)
				if len(aggs) != len(distinct) {
					return false
				}
				var got types.Measures
				for _, agg := range aggs {
					got.Add(agg.Measures)
				}
				if got != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1<<20)),
	))

	properties.TestingRun(t)
}
