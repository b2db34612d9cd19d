package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsRandomAndCorrectLength(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a.Bytes(), Length)
}

func TestFromStringRoundTrip(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)

	parsed, err := FromString(a.String())
	require.NoError(t, err)
	assert.True(t, a.Equal(parsed))
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestDistanceSelfIsZero(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)

	d := a.Distance(a)
	assert.Equal(t, ID{}, d)
}

func TestDistanceIsSymmetric(t *testing.T) {
	a, _ := Generate()
	b, _ := Generate()

	assert.Equal(t, a.Distance(b), b.Distance(a))
}

func TestBucketIndexHighestSetBit(t *testing.T) {
	var self, other ID
	// identical except the last bit of the last byte
	other[Length-1] = 1
	assert.Equal(t, Bits-1, BucketIndex(self, other))

	other = ID{}
	other[0] = 0x80
	assert.Equal(t, 0, BucketIndex(self, other))
}

func TestBucketIndexCloserNodesHaveHigherIndex(t *testing.T) {
	var self ID
	var near, far ID
	near[Length-1] = 0x01       // differs only in the lowest bit
	far[0] = 0x80               // differs in the highest bit

	assert.Greater(t, BucketIndex(self, near), BucketIndex(self, far))
}

func TestLessOrdersByMostSignificantByteFirst(t *testing.T) {
	a := ID{0x01}
	b := ID{0x02}
	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
}

func TestHashKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, HashKey("alpha"), HashKey("alpha"))
	assert.NotEqual(t, HashKey("alpha"), HashKey("beta"))
}
