package kademlia

import (
	"net"
	"testing"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactRoundTrip(t *testing.T) {
	cid, err := id.Generate()
	require.NoError(t, err)
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:4000")
	require.NoError(t, err)
	c := contact.New(cid, addr)

	decoded, err := decodeContact(encodeContact(c))
	require.NoError(t, err)
	assert.True(t, cid.Equal(decoded.ID))
	assert.Equal(t, addr.String(), decoded.Addr.String())
}

func TestFindNodeResultRoundTrip(t *testing.T) {
	cid, _ := id.Generate()
	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:4001")
	contacts := []*contact.Contact{contact.New(cid, addr)}

	decoded, err := decodeFindResult(encodeFindNodeResult(contacts))
	require.NoError(t, err)
	assert.False(t, decoded.HasValue)
	require.Len(t, decoded.Contacts, 1)
	assert.True(t, decoded.Contacts[0].ID.Equal(cid))
}

func TestFindValueResultRoundTrip(t *testing.T) {
	decoded, err := decodeFindResult(encodeFindValueResult([]byte("hello")))
	require.NoError(t, err)
	assert.True(t, decoded.HasValue)
	assert.Equal(t, []byte("hello"), decoded.Value)
}

func TestDecodeFindResultRejectsEmptyDict(t *testing.T) {
	_, err := decodeFindResult(wire.Dict(map[string]wire.Value{}))
	assert.Error(t, err)
}
