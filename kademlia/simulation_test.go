package kademlia

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	selfID, err := id.Generate()
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.RPCTimeout = 2 * time.Second
	cfg.IterativeLookupDelay = cfg.RPCTimeout * 2 / 3
	n, err := New(selfID, "127.0.0.1:0", store.NewMemoryStore(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

// ring bootstraps every node in nodes off of nodes[0], pairwise, so that an
// iterative_find against any id converges across the whole set.
func ring(t *testing.T, nodes []*Node) {
	t.Helper()
	for i := 1; i < len(nodes); i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := nodes[i].Join(ctx, []net.Addr{nodes[0].LocalAddr()})
		cancel()
		require.NoError(t, err)
	}
	// Let 0 learn about everyone it was contacted by, then have every node
	// re-run a find against the whole set so bucket tables fill in both
	// directions.
	for _, n := range nodes {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = n.IterativeFindNode(ctx, n.ID)
		cancel()
	}
}

func TestTwoNodeJoinLearnsRealIDs(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Join(ctx, []net.Addr{a.LocalAddr()}))

	found := false
	for _, c := range a.Contacts() {
		if c.ID.Equal(b.ID) {
			found = true
		}
	}
	assert.True(t, found, "a should know b's real id after join")

	found = false
	for _, c := range b.Contacts() {
		if c.ID.Equal(a.ID) {
			found = true
		}
	}
	assert.True(t, found, "b should know a's real id after join")
}

// TestIterativeFindRecoversRealIDFromBootstrapPlaceholder exercises spec
// §8's property directly against IterativeFind's returned active contacts
// (not just the routing table, which a separate background probe could
// paper over): a shortlist entry carrying a synthetic bootstrap id must be
// replaced, in the result, by the id the peer's own reply actually carried.
func TestIterativeFindRecoversRealIDFromBootstrapPlaceholder(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	placeholder, err := id.Generate()
	require.NoError(t, err)
	require.False(t, placeholder.Equal(b.ID))

	shortlist := []*contact.Contact{contact.New(placeholder, b.LocalAddr())}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := a.IterativeFind(ctx, a.ID, rpcFindNode, shortlist)
	require.NoError(t, err)
	require.NotEmpty(t, state.activeContacts)

	found := false
	for _, c := range state.activeContacts {
		assert.False(t, c.ID.Equal(placeholder), "active contact must not retain the bootstrap placeholder id")
		if c.ID.Equal(b.ID) {
			found = true
		}
	}
	assert.True(t, found, "active contacts should carry b's real id")
}

func TestIterativeStoreAndFindValue(t *testing.T) {
	const n = 5
	nodes := make([]*Node, n)
	for i := range nodes {
		nodes[i] = newTestNode(t)
	}
	ring(t, nodes)

	key := id.HashKey("some-name")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, nodes[0].IterativeStore(ctx, key, []byte("value"), id.ID{}, 0))

	// Give fire-and-forget STORE RPCs time to land.
	time.Sleep(200 * time.Millisecond)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	value, found, _, err := nodes[n-1].IterativeFindValue(ctx2, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("value"), value)
}

func TestIterativeFindNodeConverges(t *testing.T) {
	const n = 6
	nodes := make([]*Node, n)
	for i := range nodes {
		nodes[i] = newTestNode(t)
	}
	ring(t, nodes)

	target, err := id.Generate()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	contacts, err := nodes[0].IterativeFindNode(ctx, target)
	require.NoError(t, err)
	assert.NotEmpty(t, contacts)

	for i := 1; i < len(contacts); i++ {
		prev := contacts[i-1].ID.Distance(target)
		cur := contacts[i].ID.Distance(target)
		assert.True(t, id.Less(prev, cur) || prev == cur, "results must be sorted by distance")
	}
}
