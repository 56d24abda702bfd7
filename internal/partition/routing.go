package partition

import (
	"sort"

	"github.com/arkilian/drilldown/pkg/types"
)

// RouteByMonth groups fact rows by the month of their date. Rows keep
// their input order inside each group.
func RouteByMonth(rows []types.FactRow) map[string][]types.FactRow {
	groups := make(map[string][]types.FactRow)
	for _, r := range rows {
		m := MonthOfTime(r.Date)
		groups[m] = append(groups[m], r)
	}
	return groups
}

// SortedMonths returns the group months in ascending order.
func SortedMonths(groups map[string][]types.FactRow) []string {
	months := make([]string, 0, len(groups))
	for m := range groups {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}
