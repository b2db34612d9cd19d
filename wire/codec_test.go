package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := Dict(map[string]Value{
		"name": Str("alice"),
		"age":  Int(30),
		"pi":   Float(3.14159),
		"tags": List(Str("a"), Str("b"), Int(7)),
	})

	data := Encode(v)
	decoded, err := Decode(data)
	require.NoError(t, err)

	name, ok := decoded.Field("name")
	require.True(t, ok)
	s, _ := name.Str()
	assert.Equal(t, "alice", s)

	age, ok := decoded.Field("age")
	require.True(t, ok)
	n, _ := age.Int()
	assert.EqualValues(t, 30, n)

	pi, ok := decoded.Field("pi")
	require.True(t, ok)
	f, _ := pi.Float()
	assert.InDelta(t, 3.14159, f, 1e-9)

	tags, ok := decoded.Field("tags")
	require.True(t, ok)
	list, ok := tags.List()
	require.True(t, ok)
	assert.Len(t, list, 3)
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	_, err := Decode([]byte("garbage"))
	assert.Error(t, err)

	_, err = Decode([]byte("5:ab"))
	assert.Error(t, err)

	_, err = Decode([]byte("i5"))
	assert.Error(t, err)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	_, err := Decode([]byte("i5ei6e"))
	assert.Error(t, err)
}
