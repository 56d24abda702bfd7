package types

import (
	"fmt"
	"strings"
)

// PartitionKind identifies the row family stored in a partition.
type PartitionKind string

const (
	// KindAds holds month-sharded ad-performance facts
	KindAds PartitionKind = "ads"

	// KindEvents holds the user–SKU interaction log
	KindEvents PartitionKind = "events"
)

// PartitionKey names one loadable unit of rows.
type PartitionKey struct {
	// Kind is the row family of the partition
	Kind PartitionKind

	// Value is the month (YYYY-MM) for ads, or the object name for events
	Value string
}

// String returns "kind/value".
func (k PartitionKey) String() string {
	return string(k.Kind) + "/" + k.Value
}

// MarshalText encodes the key as "kind/value" so keys can be JSON map keys.
func (k PartitionKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses "kind/value".
func (k *PartitionKey) UnmarshalText(text []byte) error {
	kind, value, ok := strings.Cut(string(text), "/")
	if !ok || value == "" {
		return fmt.Errorf("invalid partition key %q", text)
	}
	switch PartitionKind(kind) {
	case KindAds, KindEvents:
	default:
		return fmt.Errorf("unknown partition kind %q", kind)
	}
	k.Kind, k.Value = PartitionKind(kind), value
	return nil
}

// PartitionMetadata describes the available month shards of the ads dataset.
type PartitionMetadata struct {
	// Months lists the available months in YYYY-MM form, ascending
	Months []string `json:"months"`

	// TotalRecords is the row count across every month
	TotalRecords int64 `json:"total_records"`

	// TotalSizeMB is the summed object size in megabytes
	TotalSizeMB float64 `json:"total_size_mb"`

	// Shards holds per-month statistics for shards written by this
	// service. Metadata produced elsewhere may omit it.
	Shards map[string]ShardStats `json:"shards,omitempty"`
}

// ShardStats describes one published month shard.
type ShardStats struct {
	Records   int64  `json:"records"`
	SizeBytes int64  `json:"size_bytes"`
	MinDate   string `json:"min_date,omitempty"`
	MaxDate   string `json:"max_date,omitempty"`
}

// Has reports whether month is listed in the metadata.
func (m PartitionMetadata) Has(month string) bool {
	for _, v := range m.Months {
		if v == month {
			return true
		}
	}
	return false
}

// Latest returns the most recent month, or "" when none is listed.
func (m PartitionMetadata) Latest() string {
	if len(m.Months) == 0 {
		return ""
	}
	latest := m.Months[0]
	for _, v := range m.Months[1:] {
		if v > latest {
			latest = v
		}
	}
	return latest
}
