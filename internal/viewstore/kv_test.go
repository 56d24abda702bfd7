package viewstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "views.db"))
	require.NoError(t, err)
	bdb, err := OpenBadger("")
	require.NoError(t, err)
	disk, err := OpenBadger(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)

	kvs := map[string]KV{
		"memory":      NewMemoryKV(),
		"sqlite":      sqlite,
		"badger-mem":  bdb,
		"badger-disk": disk,
	}
	t.Cleanup(func() {
		for _, kv := range kvs {
			kv.Close()
		}
	})
	return kvs
}

func TestKV_Contract(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := kv.Get(ctx, "ns", "a")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Put(ctx, "ns", "b", []byte("2")))
			require.NoError(t, kv.Put(ctx, "ns", "a", []byte("1")))
			require.NoError(t, kv.Put(ctx, "other", "a", []byte("x")))

			v, err := kv.Get(ctx, "ns", "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), v)

			// Last writer wins.
			require.NoError(t, kv.Put(ctx, "ns", "a", []byte("1b")))
			v, err = kv.Get(ctx, "ns", "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("1b"), v)

			entries, err := kv.List(ctx, "ns")
			require.NoError(t, err)
			assert.Equal(t, []Entry{{Key: "a", Value: []byte("1b")}, {Key: "b", Value: []byte("2")}}, entries)

			require.NoError(t, kv.Delete(ctx, "ns", "a"))
			require.NoError(t, kv.Delete(ctx, "ns", "missing"))
			_, err = kv.Get(ctx, "ns", "a")
			assert.ErrorIs(t, err, ErrNotFound)

			entries, err = kv.List(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, entries)

			other, err := kv.Get(ctx, "other", "a")
			require.NoError(t, err)
			assert.Equal(t, []byte("x"), other)
		})
	}
}

func TestMemoryKV_CopiesValues(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, kv.Put(ctx, "ns", "k", buf))
	buf[0] = 'z'
	got, err := kv.Get(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestSQLiteKV_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.db")
	kv, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, kv.Put(context.Background(), Namespace, "v1", []byte("doc")))
	require.NoError(t, kv.Close())

	kv, err = OpenSQLite(path)
	require.NoError(t, err)
	defer kv.Close()
	got, err := kv.Get(context.Background(), Namespace, "v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), got)
}
