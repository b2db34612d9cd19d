package routing

import (
	"net"
	"testing"
	"time"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kaderr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(s string) net.Addr {
	a, _ := net.ResolveUDPAddr("udp", s)
	return a
}

func TestTableRejectsSelf(t *testing.T) {
	self, _ := id.Generate()
	tbl := NewTable(self, 8)

	added, _, err := tbl.Add(contact.New(self, addr("127.0.0.1:1")))
	assert.False(t, added)
	assert.NoError(t, err)
}

func TestTableAddAndFindClosest(t *testing.T) {
	self, _ := id.Generate()
	tbl := NewTable(self, 8)

	var last id.ID
	for i := 0; i < 5; i++ {
		cid, _ := id.Generate()
		last = cid
		added, _, err := tbl.Add(contact.New(cid, addr("127.0.0.1:1")))
		require.NoError(t, err)
		require.True(t, added)
	}

	closest := tbl.FindClosest(last, 3, nil)
	require.NotEmpty(t, closest)
	assert.True(t, closest[0].ID.Equal(last))
}

func TestBucketFullReturnsEvictionCandidate(t *testing.T) {
	self, _ := id.Generate()

	// Force contacts into the same bucket by giving them IDs that share the
	// self table's topmost distinguishing bit range: easiest is to put them
	// all via the bucket directly.
	b := NewBucket(2)
	c1 := contact.New(idWith(self, 10), addr("127.0.0.1:1"))
	c2 := contact.New(idWith(self, 11), addr("127.0.0.1:2"))
	c3 := contact.New(idWith(self, 12), addr("127.0.0.1:3"))

	added, _, err := b.Add(c1)
	require.True(t, added)
	require.NoError(t, err)
	added, _, err = b.Add(c2)
	require.True(t, added)
	require.NoError(t, err)

	added, evict, err := b.Add(c3)
	assert.False(t, added)
	require.Error(t, err)
	var bf *kaderr.BucketFull
	assert.ErrorAs(t, err, &bf)
	assert.True(t, evict.Equal(c1))
}

func TestBucketReplace(t *testing.T) {
	b := NewBucket(1)
	self, _ := id.Generate()
	c1 := contact.New(idWith(self, 1), addr("127.0.0.1:1"))
	b.Add(c1)

	c2 := contact.New(idWith(self, 2), addr("127.0.0.1:2"))
	b.Replace(c2)

	contacts := b.Contacts()
	require.Len(t, contacts, 1)
	assert.True(t, contacts[0].Equal(c2))
}

func TestRemoveStale(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	contact.SetDefaultTimeProvider(clock)
	defer contact.SetDefaultTimeProvider(nil)

	self, _ := id.Generate()
	tbl := NewTable(self, 8)
	cid, _ := id.Generate()
	tbl.Add(contact.New(cid, addr("127.0.0.1:1")))

	clock.t = clock.t.Add(2 * time.Hour)
	removed := tbl.RemoveStale(time.Hour)
	assert.Equal(t, 1, removed)
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

// idWith perturbs self's last byte to produce a distinct but nearby ID,
// useful for forcing multiple contacts into the same bucket in tests.
func idWith(self id.ID, salt byte) id.ID {
	out := self
	out[id.Length-1] ^= salt
	return out
}
