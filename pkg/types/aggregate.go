package types

import (
	"math"
	"time"
)

// Measures holds the summed base measures of a group of fact rows.
type Measures struct {
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Cost        float64 `json:"cost"`
	Conversions float64 `json:"conversions"`
	GMV         float64 `json:"gmv"`
}

// Add accumulates o into m.
func (m *Measures) Add(o Measures) {
	m.Impressions += o.Impressions
	m.Clicks += o.Clicks
	m.Cost += o.Cost
	m.Conversions += o.Conversions
	m.GMV += o.GMV
}

// Get returns the measure with the given field name.
func (m Measures) Get(field string) (float64, bool) {
	switch field {
	case FieldImpressions:
		return m.Impressions, true
	case FieldClicks:
		return m.Clicks, true
	case FieldCost:
		return m.Cost, true
	case FieldConversions:
		return m.Conversions, true
	case FieldGMV:
		return m.GMV, true
	}
	return 0, false
}

// Ratios holds the derived percentage metrics. Values may be NaN or ±Inf
// when the denominator is zero.
type Ratios struct {
	CTR float64 `json:"ctr"`
	CVR float64 `json:"cvr"`
	ROI float64 `json:"roi"`
}

// Finite reports whether every ratio is a finite number.
func (r Ratios) Finite() bool {
	return isFinite(r.CTR) && isFinite(r.CVR) && isFinite(r.ROI)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AggregateRow is one group produced by a rollup at a hierarchy level.
// Ancestor identifiers are set when the level groups by them.
type AggregateRow struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Measures
	Ratios

	AdvertiserID string `json:"advertiser_id,omitempty"`
	CampaignID   string `json:"campaign_id,omitempty"`
	CampaignType string `json:"campaign_type,omitempty"`
	AdSetID      string `json:"ad_set_id,omitempty"`
}

// DetailRow is one day of a drill-down series.
type DetailRow struct {
	Date time.Time `json:"date"`
	Measures
}

// Totals is the overall summary of a filtered fact set.
type Totals struct {
	Rows int `json:"rows"`
	Measures
	Ratios
}
