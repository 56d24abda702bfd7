package viewstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dderrors "github.com/arkilian/drilldown/internal/errors"
	"github.com/arkilian/drilldown/pkg/types"
)

func newTestStore(kv KV) *Store {
	logger, _ := test.NewNullLogger()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	clock := func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return NewStore(kv, WithLogger(logger), WithClock(clock))
}

func TestStore_SaveLoadPreservesOrder(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(kv)
			ctx := context.Background()
			cols := DefaultColumns()
			cols[3].Visible = false
			cols = append(cols, NewCustomColumn("Margin", "(gmv - cost) / cost"))
			// Reverse the order so it differs from the defaults.
			for i, j := 0, len(cols)-1; i < j; i, j = i+1, j-1 {
				cols[i], cols[j] = cols[j], cols[i]
			}

			id, err := s.Save(ctx, "  my view ", cols)
			require.NoError(t, err)
			require.NotEmpty(t, id)

			got, err := s.Load(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, cols, got)

			v, err := s.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "my view", v.Name)
			assert.Equal(t, string(id), v.ID)
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(NewMemoryKV())
	ctx := context.Background()
	first, err := s.Save(ctx, "first", DefaultColumns())
	require.NoError(t, err)
	second, err := s.Save(ctx, "second", DefaultColumns()[:2])
	require.NoError(t, err)

	views, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, string(second), views[0].ID)
	assert.Equal(t, string(first), views[1].ID)
	assert.True(t, views[0].CreatedAt.After(views[1].CreatedAt))
}

func TestStore_LoadMissingAndCorrupt(t *testing.T) {
	kv := NewMemoryKV()
	s := newTestStore(kv)
	ctx := context.Background()

	_, err := s.Load(ctx, "nope")
	require.Error(t, err)
	assert.Equal(t, dderrors.CodeViewNotFound, dderrors.GetCode(err))
	assert.Equal(t, dderrors.ErrCategoryView, dderrors.GetCategory(err))

	require.NoError(t, kv.Put(ctx, Namespace, "bad", []byte("not snappy")))
	_, err = s.Load(ctx, "bad")
	assert.Equal(t, dderrors.CodeViewCorrupt, dderrors.GetCode(err))

	// Corrupt documents are skipped by List.
	_, err = s.Save(ctx, "ok", DefaultColumns())
	require.NoError(t, err)
	views, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(NewMemoryKV())
	ctx := context.Background()
	id, err := s.Save(ctx, "v", DefaultColumns())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Load(ctx, id)
	assert.Equal(t, dderrors.CodeViewNotFound, dderrors.GetCode(err))
	assert.NoError(t, s.Delete(ctx, id))
}

func TestStore_SaveValidates(t *testing.T) {
	s := newTestStore(NewMemoryKV())
	ctx := context.Background()
	tests := []struct {
		name    string
		view    string
		columns []types.ColumnConfig
	}{
		{"blank name", " ", DefaultColumns()},
		{"missing key", "v", []types.ColumnConfig{{Label: "x"}}},
		{"duplicate key", "v", []types.ColumnConfig{{Key: "a"}, {Key: "a"}}},
		{"bad fixed", "v", []types.ColumnConfig{{Key: "a", Fixed: "top"}}},
		{"custom without expression", "v", []types.ColumnConfig{{Key: "custom_x", IsCustom: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Save(ctx, tt.view, tt.columns)
			require.Error(t, err)
			assert.Equal(t, dderrors.ErrCategoryValidation, dderrors.GetCategory(err))
		})
	}
}

func TestStore_DocumentsAreCompressed(t *testing.T) {
	kv := NewMemoryKV()
	s := newTestStore(kv)
	ctx := context.Background()
	id, err := s.Save(ctx, "v", DefaultColumns())
	require.NoError(t, err)

	raw, err := kv.Get(ctx, Namespace, string(id))
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(string(raw), "{"), "document stored uncompressed")

	v, err := decode(raw)
	require.NoError(t, err)
	assert.Equal(t, DefaultColumns(), v.Columns)
}

func TestNewCustomColumn(t *testing.T) {
	a := NewCustomColumn("Margin", "gmv - cost")
	b := NewCustomColumn("Margin", "gmv - cost")
	assert.NotEqual(t, a.Key, b.Key)
	assert.True(t, IsCustomKey(a.Key))
	assert.True(t, a.IsCustom)
	assert.True(t, a.Visible)
	assert.Equal(t, "gmv - cost", a.Expression)
	assert.Len(t, a.Key, len(CustomColumnPrefix)+26)

	for _, c := range DefaultColumns() {
		assert.False(t, IsCustomKey(c.Key), c.Key)
	}
}

func TestDefaultColumns(t *testing.T) {
	cols := DefaultColumns()
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = c.Key
	}
	assert.Equal(t, []string{"name", "impressions", "clicks", "ctr", "cost", "conversions", "cvr", "gmv", "roi"}, keys)
	assert.Equal(t, types.FixedLeft, cols[0].Fixed)
	assert.Equal(t, 200, cols[0].Width)
	assert.Equal(t, 140, cols[7].Width)
}
