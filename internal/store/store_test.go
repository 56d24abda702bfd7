package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/pkg/types"
)

type fakeSource struct {
	mu      sync.Mutex
	rows    map[types.PartitionKey][]int
	fail    map[types.PartitionKey]error
	batchEr error
	calls   [][]types.PartitionKey
}

func (f *fakeSource) Fetch(_ context.Context, keys []types.PartitionKey) (*Batch[int], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]types.PartitionKey(nil), keys...))
	if f.batchEr != nil {
		return nil, f.batchEr
	}
	b := &Batch[int]{Rows: map[types.PartitionKey][]int{}, Errors: map[types.PartitionKey]error{}}
	for _, k := range keys {
		if err, ok := f.fail[k]; ok {
			b.Errors[k] = err
			continue
		}
		b.Rows[k] = f.rows[k]
	}
	return b, nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	loads    int
	failed   int
	resident int
}

func (m *fakeMetrics) ObservePartitionLoad(_ string, _ int, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if err != nil {
		m.failed++
	}
}

func (m *fakeMetrics) SetResidentRows(_ string, rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resident = rows
}

func month(m string) types.PartitionKey {
	return types.PartitionKey{Kind: types.KindAds, Value: m}
}

func newTestStore(src Source[int], opts ...Option) *Store[int] {
	logger, _ := test.NewNullLogger()
	return New[int]("ads", src, append([]Option{WithLogger(logger)}, opts...)...)
}

func TestStore_EmptySnapshot(t *testing.T) {
	s := newTestStore(&fakeSource{})
	snap := s.Snapshot()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Rows)
	assert.NotNil(t, snap.Rows)
	assert.Zero(t, snap.Version)
	assert.NoError(t, s.LastError())
}

func TestStore_LoadIsIdempotent(t *testing.T) {
	src := &fakeSource{rows: map[types.PartitionKey][]int{
		month("2024-04"): {1, 2, 3},
		month("2024-05"): {4, 5},
	}}
	s := newTestStore(src)
	ctx := context.Background()

	res, err := s.Load(ctx, month("2024-05"), month("2024-04"), month("2024-05"))
	require.NoError(t, err)
	assert.Equal(t, []types.PartitionKey{month("2024-04"), month("2024-05")}, res.Loaded)
	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, s.Snapshot().Rows)

	res, err = s.Load(ctx, month("2024-04"))
	require.NoError(t, err)
	assert.Empty(t, res.Loaded)
	assert.Equal(t, []types.PartitionKey{month("2024-04")}, res.Skipped)
	assert.Len(t, s.Snapshot().Rows, 5)
	assert.Equal(t, uint64(1), s.Snapshot().Version)
	assert.Len(t, src.calls, 1, "resident partitions must not be fetched again")
}

func TestStore_SnapshotsAreImmutable(t *testing.T) {
	src := &fakeSource{rows: map[types.PartitionKey][]int{
		month("2024-04"): {1},
		month("2024-05"): {2},
	}}
	s := newTestStore(src)
	_, err := s.Load(context.Background(), month("2024-04"))
	require.NoError(t, err)
	before := s.Snapshot()

	_, err = s.Load(context.Background(), month("2024-05"))
	require.NoError(t, err)
	after := s.Snapshot()

	assert.Equal(t, []int{1}, before.Rows)
	assert.True(t, before.Has(month("2024-04")))
	assert.False(t, before.Has(month("2024-05")))
	assert.Equal(t, []int{1, 2}, after.Rows)
	assert.Equal(t, []types.PartitionKey{month("2024-04"), month("2024-05")}, after.Partitions)
}

func TestStore_PartialFailureKeepsSuccesses(t *testing.T) {
	boom := errors.New("object missing")
	src := &fakeSource{
		rows: map[types.PartitionKey][]int{month("2024-04"): {1, 2}},
		fail: map[types.PartitionKey]error{month("2024-05"): boom},
	}
	metrics := &fakeMetrics{}
	s := newTestStore(src, WithMetrics(metrics))

	res, err := s.Load(context.Background(), month("2024-04"), month("2024-05"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, dderrors.CodePartitionLoadFailed, dderrors.GetCode(err))
	assert.True(t, dderrors.IsRetryable(err))

	assert.Equal(t, []types.PartitionKey{month("2024-04")}, res.Loaded)
	assert.Contains(t, res.Failed, month("2024-05"))
	assert.Equal(t, []int{1, 2}, s.Snapshot().Rows)
	assert.False(t, s.Snapshot().Has(month("2024-05")))
	assert.Equal(t, err, s.LastError())

	assert.Equal(t, 2, metrics.loads)
	assert.Equal(t, 1, metrics.failed)
	assert.Equal(t, 2, metrics.resident)

	// A retry that succeeds clears the recorded error.
	delete(src.fail, month("2024-05"))
	src.rows[month("2024-05")] = []int{3}
	_, err = s.Load(context.Background(), month("2024-05"))
	require.NoError(t, err)
	assert.NoError(t, s.LastError())
	assert.Equal(t, []int{1, 2, 3}, s.Snapshot().Rows)
}

func TestStore_BatchFailureLeavesSnapshot(t *testing.T) {
	src := &fakeSource{batchEr: errors.New("bucket unreachable")}
	s := newTestStore(src)
	_, err := s.Load(context.Background(), month("2024-04"))
	require.Error(t, err)
	assert.Equal(t, dderrors.ErrCategoryPartition, dderrors.GetCategory(err))
	assert.Zero(t, s.Snapshot().Version)
	assert.Error(t, s.LastError())
}

func TestStore_ConcurrentLoadsAndReads(t *testing.T) {
	rows := map[types.PartitionKey][]int{}
	var keys []types.PartitionKey
	for i := 1; i <= 12; i++ {
		k := month(fmt.Sprintf("2024-%02d", i))
		keys = append(keys, k)
		rows[k] = []int{i, i, i}
	}
	s := newTestStore(&fakeSource{rows: rows})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Load(context.Background(), keys...)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			assert.Equal(t, 0, len(snap.Rows)%3, "snapshot observed mid-merge")
		}()
	}
	wg.Wait()
	assert.Len(t, s.Snapshot().Rows, 36)
	assert.Equal(t, uint64(1), s.Snapshot().Version)
}
