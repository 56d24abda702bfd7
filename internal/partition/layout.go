// Package partition maps the month-sharded dataset onto object storage:
// object naming, Arrow IPC decoding and encoding, metadata, and the sources
// that feed the record stores.
package partition

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/arkilian/drilldown/pkg/types"
)

const (
	// DefaultAdsPrefix is the object prefix of the ad fact shards.
	DefaultAdsPrefix = "ads"

	// DefaultEventsObject is the single object holding the event log.
	DefaultEventsObject = "events/user_sku_logs.arrow"

	// MonthLayout formats partition months.
	MonthLayout = "2006-01"

	metadataName = "metadata.json"
	shardPrefix  = "ads_"
	shardSuffix  = ".arrow"
)

// Layout names the objects of a dataset.
type Layout struct {
	AdsPrefix    string
	EventsObject string
}

// DefaultLayout returns ads/ads_YYYY-MM.arrow shards, ads/metadata.json and
// events/user_sku_logs.arrow.
func DefaultLayout() Layout {
	return Layout{AdsPrefix: DefaultAdsPrefix, EventsObject: DefaultEventsObject}
}

// AdsObject returns the shard path of month.
func (l Layout) AdsObject(month string) string {
	return path.Join(l.AdsPrefix, shardPrefix+month+shardSuffix)
}

// MetadataObject returns the path of the shard metadata document.
func (l Layout) MetadataObject() string {
	return path.Join(l.AdsPrefix, metadataName)
}

// MonthOf extracts the month from a shard path, reporting false for
// objects that are not ads shards.
func (l Layout) MonthOf(objectPath string) (string, bool) {
	dir, name := path.Split(objectPath)
	if strings.TrimSuffix(dir, "/") != strings.Trim(l.AdsPrefix, "/") {
		return "", false
	}
	if !strings.HasPrefix(name, shardPrefix) || !strings.HasSuffix(name, shardSuffix) {
		return "", false
	}
	month := strings.TrimSuffix(strings.TrimPrefix(name, shardPrefix), shardSuffix)
	if _, err := ParseMonth(month); err != nil {
		return "", false
	}
	return month, true
}

// ObjectFor returns the object holding key.
func (l Layout) ObjectFor(key types.PartitionKey) (string, error) {
	switch key.Kind {
	case types.KindAds:
		if _, err := ParseMonth(key.Value); err != nil {
			return "", err
		}
		return l.AdsObject(key.Value), nil
	case types.KindEvents:
		return key.Value, nil
	default:
		return "", fmt.Errorf("partition: unknown kind %q", key.Kind)
	}
}

// MonthKey is the partition key of an ads month.
func MonthKey(month string) types.PartitionKey {
	return types.PartitionKey{Kind: types.KindAds, Value: month}
}

// MonthKeys converts months to partition keys.
func MonthKeys(months []string) []types.PartitionKey {
	keys := make([]types.PartitionKey, len(months))
	for i, m := range months {
		keys[i] = MonthKey(m)
	}
	return keys
}

// EventsKey is the partition key of an events object.
func EventsKey(object string) types.PartitionKey {
	return types.PartitionKey{Kind: types.KindEvents, Value: object}
}

// ParseMonth parses a YYYY-MM month.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, fmt.Errorf("partition: invalid month %q", month)
	}
	return t, nil
}

// MonthOfTime formats the month containing t.
func MonthOfTime(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// MonthsInRange lists every month touched by the inclusive range
// [start, end], ascending. An inverted range lists nothing.
func MonthsInRange(start, end time.Time) []string {
	start, end = start.UTC(), end.UTC()
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	months := []string{}
	for !cur.After(last) {
		months = append(months, cur.Format(MonthLayout))
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// Available keeps the months listed in meta, preserving order.
func Available(meta types.PartitionMetadata, months []string) []string {
	out := make([]string, 0, len(months))
	for _, m := range months {
		if meta.Has(m) {
			out = append(out, m)
		}
	}
	return out
}
