package tuplespace

import (
	"testing"

	"github.com/kademux/kadtuple/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID(t *testing.T, salt byte) id.ID {
	t.Helper()
	var b [id.Length]byte
	b[0] = salt
	out, err := id.FromBytes(b[:])
	require.NoError(t, err)
	return out
}

func TestIntersectIDs(t *testing.T) {
	a := []id.ID{testID(t, 1), testID(t, 2), testID(t, 3)}
	b := []id.ID{testID(t, 2), testID(t, 3), testID(t, 4)}
	assert.ElementsMatch(t, []id.ID{testID(t, 2), testID(t, 3)}, intersectIDs(a, b))
	assert.Empty(t, intersectIDs(a, nil))
}

func TestIntersectBlobs(t *testing.T) {
	a := [][]byte{[]byte("x"), []byte("y")}
	b := [][]byte{[]byte("y"), []byte("z")}
	assert.Equal(t, [][]byte{[]byte("y")}, intersectBlobs(a, b))
	assert.Empty(t, intersectBlobs(a, nil))
}
