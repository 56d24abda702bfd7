package aggregator

import "github.com/arkilian/drilldown/pkg/types"

// CTR is clicks per impression as a percentage.
func CTR(m types.Measures) float64 {
	return m.Clicks / m.Impressions * 100
}

// CVR is conversions per click as a percentage.
func CVR(m types.Measures) float64 {
	return m.Conversions / m.Clicks * 100
}

// ROI is the return on cost as a percentage.
func ROI(m types.Measures) float64 {
	return (m.GMV/m.Cost - 1) * 100
}

// Derive computes every ratio metric from summed measures. A zero
// denominator yields NaN or ±Inf; the value is returned unchanged and
// display fallback is left to the caller.
func Derive(m types.Measures) types.Ratios {
	return types.Ratios{
		CTR: CTR(m),
		CVR: CVR(m),
		ROI: ROI(m),
	}
}
