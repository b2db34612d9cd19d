package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kaderr"
	"github.com/kademux/kadtuple/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T, onContact ContactObserver) (*Transport, id.ID) {
	t.Helper()
	selfID, err := id.Generate()
	require.NoError(t, err)
	tr, err := New(selfID, "127.0.0.1:0", onContact)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr, selfID
}

func pongHandler(sender id.ID, addr net.Addr, args wire.Value) (wire.Value, error) {
	return wire.Str("pong"), nil
}

func TestPingRoundTrip(t *testing.T) {
	server, _ := newTestTransport(t, nil)
	server.RegisterHandler("ping", pongHandler)

	client, _ := newTestTransport(t, nil)
	client.SetTimeout(2 * time.Second)

	result, err := client.Call(context.Background(), id.ID{}, server.LocalAddr(), "ping", wire.List())
	require.NoError(t, err)
	s, _ := result.Str()
	assert.Equal(t, "pong", s)
}

func TestUnknownMethodReturnsInvalidMethodRemoteError(t *testing.T) {
	server, _ := newTestTransport(t, nil)
	client, _ := newTestTransport(t, nil)
	client.SetTimeout(2 * time.Second)

	_, err := client.Call(context.Background(), id.ID{}, server.LocalAddr(), "nonexistent", wire.List())
	require.Error(t, err)
	re, ok := kaderr.AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, "InvalidMethod", re.Kind)
}

func TestCallTimesOutWhenNoReply(t *testing.T) {
	client, _ := newTestTransport(t, nil)
	client.SetTimeout(100 * time.Millisecond)

	// A UDP socket we bind then immediately close: sends to it will not
	// generate a reply, simulating an unresponsive peer without relying on
	// an external, possibly-firewalled address.
	dead, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.LocalAddr()
	dead.Close()

	_, err = client.Call(context.Background(), id.ID{}, deadAddr, "ping", wire.List())
	require.Error(t, err)
	assert.ErrorIs(t, err, kaderr.ErrTimeout)
}

func TestOnPacketObserverFiresForInboundRequest(t *testing.T) {
	seen := make(chan *contact.Contact, 1)
	server, _ := newTestTransport(t, func(c *contact.Contact) {
		select {
		case seen <- c:
		default:
		}
	})
	server.RegisterHandler("ping", pongHandler)

	client, _ := newTestTransport(t, nil)
	client.SetTimeout(2 * time.Second)
	_, err := client.Call(context.Background(), id.ID{}, server.LocalAddr(), "ping", wire.List())
	require.NoError(t, err)

	select {
	case <-seen:
	case <-time.After(time.Second):
		t.Fatal("expected contact observer to fire")
	}
}
