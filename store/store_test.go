package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kademux/kadtuple/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every Backend implementation, so
// each round-trip property is exercised against both.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	db, err := OpenLevelDBStore(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Backend{
		"memory":  NewMemoryStore(),
		"leveldb": db,
	}
}

func TestSetThenGetRoundTrips(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := id.HashKey("k")
			publisher, err := id.Generate()
			require.NoError(t, err)
			t0 := time.Unix(1000, 0)
			t1 := time.Unix(2000, 0)

			require.NoError(t, b.Put(key, Entry{
				Value:               []byte("v"),
				Publisher:           publisher,
				OriginalPublishTime: t0,
				LastPublished:       t1,
			}))

			e, ok, err := b.Get(key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("v"), e.Value)
			assert.Equal(t, publisher, e.Publisher)
			assert.True(t, t0.Equal(e.OriginalPublishTime))
			assert.True(t, t1.Equal(e.LastPublished))
		})
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := id.HashKey("gone")
			require.NoError(t, b.Put(key, Entry{Value: []byte("x"), LastPublished: time.Now()}))

			require.NoError(t, b.Delete(key))

			_, ok, err := b.Get(key)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestKeysEnumeratesStoredEntries(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			k1, k2 := id.HashKey("a"), id.HashKey("b")
			require.NoError(t, b.Put(k1, Entry{Value: []byte("1"), LastPublished: time.Now()}))
			require.NoError(t, b.Put(k2, Entry{Value: []byte("2"), LastPublished: time.Now()}))

			keys, err := b.Keys()
			require.NoError(t, err)
			assert.ElementsMatch(t, []id.ID{k1, k2}, keys)
		})
	}
}

func TestExpireOlderThanRemovesStaleEntries(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			stale := id.HashKey("stale")
			fresh := id.HashKey("fresh")
			now := time.Unix(10_000, 0)

			require.NoError(t, b.Put(stale, Entry{Value: []byte("s"), LastPublished: now.Add(-2 * time.Hour)}))
			require.NoError(t, b.Put(fresh, Entry{Value: []byte("f"), LastPublished: now.Add(-10 * time.Minute)}))

			removed, err := b.ExpireOlderThan(now, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			_, ok, err := b.Get(stale)
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = b.Get(fresh)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestEntryExpiredMeasuresFromLastPublished(t *testing.T) {
	now := time.Unix(10_000, 0)
	e := Entry{LastPublished: now.Add(-2 * time.Hour)}
	assert.True(t, e.Expired(now, time.Hour))
	assert.False(t, e.Expired(now, 3*time.Hour))
}
