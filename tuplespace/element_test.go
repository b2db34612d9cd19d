package tuplespace

import (
	"testing"

	"github.com/kademux/kadtuple/wire"
	"github.com/stretchr/testify/assert"
)

func TestTemplateElementMatches(t *testing.T) {
	assert.True(t, Any().Matches(wire.Int(7)))
	assert.True(t, Any().Matches(wire.Str("x")))

	assert.True(t, OfType(wire.KindInt).Matches(wire.Int(7)))
	assert.False(t, OfType(wire.KindInt).Matches(wire.Str("x")))

	assert.True(t, Equals(wire.Int(7)).Matches(wire.Int(7)))
	assert.False(t, Equals(wire.Int(7)).Matches(wire.Int(8)))
}

func TestTemplateDeterministic(t *testing.T) {
	det := Template{Equals(wire.Str("z")), Equals(wire.Int(7))}
	assert.True(t, det.Deterministic())
	assert.Equal(t, Tuple{wire.Str("z"), wire.Int(7)}, det.AsTuple())

	withWildcard := Template{Equals(wire.Str("z")), Any()}
	assert.False(t, withWildcard.Deterministic())
}

func TestTemplateMatches(t *testing.T) {
	tmpl := Template{Equals(wire.Str("z")), Any(), OfType(wire.KindInt)}
	assert.True(t, tmpl.Matches(Tuple{wire.Str("z"), wire.Str("anything"), wire.Int(1)}))
	assert.False(t, tmpl.Matches(Tuple{wire.Str("not-z"), wire.Str("anything"), wire.Int(1)}))
	assert.False(t, tmpl.Matches(Tuple{wire.Str("z"), wire.Str("anything"), wire.Str("not-int")}))
	assert.False(t, tmpl.Matches(Tuple{wire.Str("z"), wire.Str("anything")}))
}
