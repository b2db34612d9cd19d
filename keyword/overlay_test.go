package keyword

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kademlia"
	"github.com/kademux/kadtuple/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T) *kademlia.Node {
	t.Helper()
	selfID, err := id.Generate()
	require.NoError(t, err)
	cfg := kademlia.DefaultConfig()
	cfg.RPCTimeout = 2 * time.Second
	cfg.IterativeLookupDelay = cfg.RPCTimeout * 2 / 3
	n, err := kademlia.New(selfID, "127.0.0.1:0", store.NewMemoryStore(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

// twoNodePair returns a joined pair of nodes, each aware of the other's
// real id — publish_data/search need a peer to actually hold the stored
// value, since a node never dispatches STORE/FIND_VALUE to itself.
func twoNodePair(t *testing.T) (a, b *kademlia.Node) {
	t.Helper()
	a = newTestNode(t)
	b = newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Join(ctx, []net.Addr{a.LocalAddr()}))
	return a, b
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world"}, tokenize("Hello_World"))
	assert.Equal(t, []string{"photo", "2024", "summer"}, tokenize("photo.2024/summer"))
	assert.Empty(t, tokenize("a_b_c"), "tokens shorter than 3 chars are dropped")
}

func TestPublishAndSearch(t *testing.T) {
	a, b := twoNodePair(t)
	publisher := New(a)
	searcher := New(b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, publisher.Publish(ctx, "summer_vacation_photo", []byte("jpeg-bytes")))

	entries, err := searcher.Search(ctx, "summer")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "summer_vacation_photo", entries[0].Name)
	assert.Equal(t, id.HashKey("summer_vacation_photo"), entries[0].Key)
}

func TestSearchMissingKeywordReturnsEmpty(t *testing.T) {
	_, b := twoNodePair(t)
	overlay := New(b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := overlay.Search(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPublishAppendsToSharedToken(t *testing.T) {
	a, b := twoNodePair(t)
	publisher := New(a)
	searcher := New(b)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, publisher.Publish(ctx, "beach_photo_one", []byte("a")))
	require.NoError(t, publisher.Publish(ctx, "beach_photo_two", []byte("b")))

	entries, err := searcher.Search(ctx, "beach")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
