package contact

import (
	"net"
	"testing"
	"time"

	"github.com/kademux/kadtuple/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func addr(s string) net.Addr {
	a, _ := net.ResolveUDPAddr("udp", s)
	return a
}

func TestNewSetsLastSeen(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cid, err := id.Generate()
	require.NoError(t, err)

	c := NewWithTimeProvider(cid, addr("127.0.0.1:9000"), clock)
	assert.Equal(t, clock.t, c.LastSeen())
}

func TestTouchUpdatesLastSeen(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	cid, _ := id.Generate()
	c := NewWithTimeProvider(cid, addr("127.0.0.1:9000"), clock)

	clock.t = time.Unix(2000, 0)
	c.TouchWithTimeProvider(clock)
	assert.Equal(t, clock.t, c.LastSeen())
}

func TestReliabilityUnprovenIsZero(t *testing.T) {
	var s PingStats
	assert.Equal(t, 0.0, s.Reliability())
}

func TestReliabilityComputesRatio(t *testing.T) {
	s := PingStats{PingCount: 4, SuccessCount: 3}
	assert.InDelta(t, 0.75, s.Reliability(), 0.0001)
}

func TestRecordPingResultSuccessTouches(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1, 0)}
	SetDefaultTimeProvider(clock)
	defer SetDefaultTimeProvider(nil)

	cid, _ := id.Generate()
	c := New(cid, addr("127.0.0.1:9000"))
	c.RecordPingSent()
	clock.t = time.Unix(5, 0)
	c.RecordPingResult(true)

	assert.Equal(t, uint32(1), c.PingStats().SuccessCount)
	assert.Equal(t, clock.t, c.LastSeen())
}

func TestIsStale(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	SetDefaultTimeProvider(clock)
	defer SetDefaultTimeProvider(nil)

	cid, _ := id.Generate()
	c := New(cid, addr("127.0.0.1:9000"))

	clock.t = time.Unix(1000, 0).Add(2 * time.Hour)
	assert.True(t, c.IsStale(time.Hour))
	assert.False(t, c.IsStale(3*time.Hour))
}

func TestEqualComparesID(t *testing.T) {
	cid, _ := id.Generate()
	a := New(cid, addr("127.0.0.1:1"))
	b := New(cid, addr("127.0.0.1:2"))
	assert.True(t, a.Equal(b))
}
