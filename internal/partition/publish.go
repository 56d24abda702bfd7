package partition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/internal/storage"
	"github.com/arkilian/drilldown/pkg/types"
)

// Publisher writes datasets: fact rows are split into month shards,
// validated, encoded and uploaded, then the metadata document is updated.
type Publisher struct {
	storage     storage.ObjectStorage
	catalog     *Catalog
	layout      Layout
	concurrency int
	log         logrus.FieldLogger
}

// NewPublisher creates a publisher uploading up to concurrency shards at
// once.
func NewPublisher(s storage.ObjectStorage, layout Layout, concurrency int, log logrus.FieldLogger) *Publisher {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{
		storage:     s,
		catalog:     NewCatalog(s, layout),
		layout:      layout,
		concurrency: concurrency,
		log:         log.WithField("component", "publisher"),
	}
}

// PublishResult describes a fact publish.
type PublishResult struct {
	Shards   map[string]types.ShardStats `json:"shards"`
	Metadata types.PartitionMetadata     `json:"metadata"`
	Failed   map[string]string           `json:"failed,omitempty"`
}

// PublishFacts replaces the shards of every month present in rows.
// Shards that fail are left untouched and reported; metadata is updated
// for the shards that were written.
func (p *Publisher) PublishFacts(ctx context.Context, rows []types.FactRow) (*PublishResult, error) {
	groups := RouteByMonth(rows)
	months := SortedMonths(groups)
	for _, m := range months {
		if err := ValidateFacts(m, groups[m]); err != nil {
			return nil, dderrors.NewValidationError(dderrors.CodeInvalidRequest,
				fmt.Sprintf("month %s: %v", m, err))
		}
	}

	tmpDir, err := os.MkdirTemp("", "drilldown-publish-*")
	if err != nil {
		return nil, fmt.Errorf("publish: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	result := &PublishResult{Shards: make(map[string]types.ShardStats, len(months))}
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures []error
	)
	fail := func(month string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if result.Failed == nil {
			result.Failed = make(map[string]string)
		}
		result.Failed[month] = err.Error()
		failures = append(failures, fmt.Errorf("%s: %w", month, err))
	}

	sem := semaphore.NewWeighted(int64(p.concurrency))
	for _, m := range months {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(m, err)
			continue
		}
		wg.Add(1)
		go func(month string, shard []types.FactRow) {
			defer sem.Release(1)
			defer wg.Done()

			st, err := p.uploadShard(ctx, tmpDir, month, shard)
			if err != nil {
				fail(month, err)
				return
			}
			mu.Lock()
			result.Shards[month] = st
			mu.Unlock()
			p.log.WithFields(logrus.Fields{"month": month, "rows": st.Records, "bytes": st.SizeBytes}).Info("shard published")
		}(m, groups[m])
	}
	wg.Wait()

	if len(result.Shards) > 0 {
		meta, err := p.catalog.metadataOrEmpty(ctx)
		if err != nil {
			return result, err
		}
		result.Metadata = mergeShards(meta, result.Shards)
		if err := p.catalog.Write(ctx, result.Metadata); err != nil {
			return result, err
		}
	}
	if len(failures) > 0 {
		return result, dderrors.NewStorageError(dderrors.CodeUploadFailed,
			fmt.Sprintf("%d of %d shards failed", len(failures), len(months)), errors.Join(failures...))
	}
	return result, nil
}

func (p *Publisher) uploadShard(ctx context.Context, tmpDir, month string, rows []types.FactRow) (types.ShardStats, error) {
	local := filepath.Join(tmpDir, shardPrefix+month+shardSuffix)
	f, err := os.Create(local)
	if err != nil {
		return types.ShardStats{}, err
	}
	tracker := NewStatsTracker()
	for _, r := range rows {
		tracker.Update(r)
	}
	if err := EncodeFacts(f, rows, FormatFile); err != nil {
		f.Close()
		return types.ShardStats{}, err
	}
	if err := f.Close(); err != nil {
		return types.ShardStats{}, err
	}
	info, err := os.Stat(local)
	if err != nil {
		return types.ShardStats{}, err
	}
	if err := p.storage.Upload(ctx, local, p.layout.AdsObject(month)); err != nil {
		return types.ShardStats{}, err
	}
	return tracker.Stats(info.Size()), nil
}

// PublishEvents replaces the event log object.
func (p *Publisher) PublishEvents(ctx context.Context, rows []types.EventRow) (types.ShardStats, error) {
	if err := ValidateEvents(rows); err != nil {
		return types.ShardStats{}, dderrors.NewValidationError(dderrors.CodeInvalidRequest, err.Error())
	}

	f, err := os.CreateTemp("", "drilldown-events-*.arrow")
	if err != nil {
		return types.ShardStats{}, fmt.Errorf("publish: temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := EncodeEvents(f, rows, FormatFile); err != nil {
		f.Close()
		return types.ShardStats{}, err
	}
	if err := f.Close(); err != nil {
		return types.ShardStats{}, err
	}
	info, err := os.Stat(f.Name())
	if err != nil {
		return types.ShardStats{}, err
	}
	if err := p.storage.Upload(ctx, f.Name(), p.layout.EventsObject); err != nil {
		return types.ShardStats{}, dderrors.NewStorageError(dderrors.CodeUploadFailed, "upload "+p.layout.EventsObject, err)
	}
	p.log.WithFields(logrus.Fields{"object": p.layout.EventsObject, "rows": len(rows)}).Info("event log published")
	return types.ShardStats{Records: int64(len(rows)), SizeBytes: info.Size()}, nil
}
