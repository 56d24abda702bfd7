package partition

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/internal/storage"
	"github.com/arkilian/drilldown/internal/store"
	"github.com/arkilian/drilldown/pkg/types"
)

// FactSource loads ads month shards for a fact store.
type FactSource struct {
	downloader *storage.BatchDownloader
	layout     Layout
	log        logrus.FieldLogger
}

// NewFactSource creates a source reading shards through downloader.
func NewFactSource(downloader *storage.BatchDownloader, layout Layout, log logrus.FieldLogger) *FactSource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FactSource{
		downloader: downloader,
		layout:     layout,
		log:        log.WithField("component", "partition"),
	}
}

// Fetch implements store.Source.
func (s *FactSource) Fetch(ctx context.Context, keys []types.PartitionKey) (*store.Batch[types.FactRow], error) {
	return fetch(ctx, s.downloader, s.layout, s.log, keys, DecodeFacts)
}

// EventSource loads the event log for an event store.
type EventSource struct {
	downloader *storage.BatchDownloader
	layout     Layout
	limit      int
	log        logrus.FieldLogger
}

// NewEventSource creates a source keeping at most limit rows per object
// (limit <= 0 keeps all).
func NewEventSource(downloader *storage.BatchDownloader, layout Layout, limit int, log logrus.FieldLogger) *EventSource {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &EventSource{
		downloader: downloader,
		layout:     layout,
		limit:      limit,
		log:        log.WithField("component", "partition"),
	}
}

// Fetch implements store.Source.
func (s *EventSource) Fetch(ctx context.Context, keys []types.PartitionKey) (*store.Batch[types.EventRow], error) {
	return fetch(ctx, s.downloader, s.layout, s.log, keys, func(data []byte) ([]types.EventRow, error) {
		return DecodeEvents(data, s.limit)
	})
}

// fetch downloads the objects of keys in parallel, then decodes each.
// Failures are reported per key.
func fetch[R any](
	ctx context.Context,
	d *storage.BatchDownloader,
	layout Layout,
	log logrus.FieldLogger,
	keys []types.PartitionKey,
	decode func([]byte) ([]R, error),
) (*store.Batch[R], error) {
	batch := &store.Batch[R]{
		Rows:   make(map[types.PartitionKey][]R, len(keys)),
		Errors: make(map[types.PartitionKey]error),
	}

	objects := make([]string, 0, len(keys))
	objectKey := make(map[string]types.PartitionKey, len(keys))
	for _, k := range keys {
		obj, err := layout.ObjectFor(k)
		if err != nil {
			batch.Errors[k] = dderrors.NewValidationError(dderrors.CodeInvalidRequest, err.Error())
			continue
		}
		objects = append(objects, obj)
		objectKey[obj] = k
	}

	res, err := d.Download(ctx, objects)
	if err != nil {
		return nil, dderrors.NewStorageError(dderrors.CodeDownloadFailed, "batch download", err)
	}

	for _, obj := range objects {
		k := objectKey[obj]
		if derr, failed := res.Errors[obj]; failed {
			code := dderrors.CodeDownloadFailed
			if errors.Is(derr, storage.ErrObjectNotFound) {
				code = dderrors.CodeObjectNotFound
			}
			batch.Errors[k] = dderrors.NewStorageError(code, "download "+obj, derr)
			continue
		}

		data, err := os.ReadFile(res.LocalPaths[obj])
		if err != nil {
			batch.Errors[k] = dderrors.NewStorageError(dderrors.CodeDownloadFailed, "read cached "+obj, err)
			continue
		}
		rows, err := decode(data)
		if err != nil {
			// A corrupt cached copy must not poison later retries.
			if evictErr := d.Evict(obj); evictErr != nil {
				log.WithError(evictErr).WithField("object", obj).Warn("failed to evict cached object")
			}
			batch.Errors[k] = dderrors.NewPartitionError(dderrors.CodeDecodeFailed, fmt.Sprintf("decode %s", obj), err)
			continue
		}
		batch.Rows[k] = rows
		log.WithFields(logrus.Fields{"partition": k.String(), "rows": len(rows)}).Debug("partition decoded")
	}

	log.WithFields(logrus.Fields{
		"objects":    len(objects),
		"downloads":  res.Downloads,
		"cache_hits": res.CacheHits,
		"failed":     len(batch.Errors),
	}).Info("partitions fetched")
	return batch, nil
}
