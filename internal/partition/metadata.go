package partition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/internal/storage"
	"github.com/arkilian/drilldown/pkg/types"
)

const bytesPerMB = 1024 * 1024

// Catalog reads and writes the shard metadata document.
type Catalog struct {
	storage storage.ObjectStorage
	layout  Layout
}

// NewCatalog creates a catalog over storage.
func NewCatalog(s storage.ObjectStorage, layout Layout) *Catalog {
	return &Catalog{storage: s, layout: layout}
}

// Layout returns the object layout of the catalog.
func (c *Catalog) Layout() Layout {
	return c.layout
}

// Metadata reads the metadata document. Months are returned ascending.
func (c *Catalog) Metadata(ctx context.Context) (types.PartitionMetadata, error) {
	data, err := c.storage.Read(ctx, c.layout.MetadataObject())
	if err != nil {
		return types.PartitionMetadata{}, dderrors.NewPartitionError(dderrors.CodeMetadataUnavailable,
			"read "+c.layout.MetadataObject(), err)
	}
	var meta types.PartitionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.PartitionMetadata{}, dderrors.NewPartitionError(dderrors.CodeMetadataUnavailable,
			"decode "+c.layout.MetadataObject(), err)
	}
	if meta.Months == nil {
		meta.Months = []string{}
	}
	sort.Strings(meta.Months)
	return meta, nil
}

// metadataOrEmpty reads the metadata, treating a missing document as an
// empty dataset.
func (c *Catalog) metadataOrEmpty(ctx context.Context) (types.PartitionMetadata, error) {
	meta, err := c.Metadata(ctx)
	if err == nil {
		return meta, nil
	}
	if errors.Is(err, storage.ErrObjectNotFound) {
		return types.PartitionMetadata{Months: []string{}}, nil
	}
	return meta, err
}

// Write replaces the metadata document.
func (c *Catalog) Write(ctx context.Context, meta types.PartitionMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata: encode: %w", err)
	}
	if err := c.storage.Write(ctx, c.layout.MetadataObject(), data); err != nil {
		return dderrors.NewStorageError(dderrors.CodeUploadFailed, "write "+c.layout.MetadataObject(), err)
	}
	return nil
}

// mergeShards folds freshly published shard statistics into meta. Totals
// are adjusted by the difference for months that were replaced; months
// published elsewhere without statistics keep their share of the totals.
func mergeShards(meta types.PartitionMetadata, shards map[string]types.ShardStats) types.PartitionMetadata {
	out := types.PartitionMetadata{
		TotalRecords: meta.TotalRecords,
		TotalSizeMB:  meta.TotalSizeMB,
		Shards:       make(map[string]types.ShardStats, len(meta.Shards)+len(shards)),
	}
	for m, st := range meta.Shards {
		out.Shards[m] = st
	}

	months := make(map[string]struct{}, len(meta.Months)+len(shards))
	for _, m := range meta.Months {
		months[m] = struct{}{}
	}
	for m, st := range shards {
		if prev, ok := out.Shards[m]; ok {
			out.TotalRecords -= prev.Records
			out.TotalSizeMB -= float64(prev.SizeBytes) / bytesPerMB
		}
		out.Shards[m] = st
		out.TotalRecords += st.Records
		out.TotalSizeMB += float64(st.SizeBytes) / bytesPerMB
		months[m] = struct{}{}
	}

	out.Months = make([]string, 0, len(months))
	for m := range months {
		out.Months = append(out.Months, m)
	}
	sort.Strings(out.Months)
	return out
}
