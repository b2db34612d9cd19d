package tuplespace

import (
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/wire"
)

// subKeyVariant names which of a position's three derived hashes a lookup
// or registration targets: the element's type, its exact value, or the
// wildcard (matches anything at that position).
type subKeyVariant string

const (
	variantType     subKeyVariant = "type"
	variantValue    subKeyVariant = "value"
	variantWildcard subKeyVariant = "wildcard"
)

// subKeyVariants lists every variant produced per position; its length (3)
// sizes tupleIndexSubKeys' result. The listener-index union in find.go
// builds its three sub-keys explicitly and does not read this list.
func subKeyVariants() []subKeyVariant {
	return []subKeyVariant{variantType, variantValue, variantWildcard}
}

// subKey derives the DHT key for one (length, position, variant) facet of
// a tuple or template, under either the "tuple:" or "listener:" namespace.
// payload carries the variant-specific data: the element's type tag for
// variantType, the element's value for variantValue, and is ignored for
// variantWildcard (the variant name alone disambiguates it).
func subKey(prefix string, length, pos int, variant subKeyVariant, payload wire.Value) id.ID {
	body := wire.Dict(map[string]wire.Value{
		"len":     wire.Int(int64(length)),
		"pos":     wire.Int(int64(pos)),
		"variant": wire.Str(string(variant)),
		"payload": payload,
	})
	return id.HashKey(prefix + string(wire.Encode(body)))
}

func typeSubKey(prefix string, length, pos int, tag wire.Kind) id.ID {
	return subKey(prefix, length, pos, variantType, wire.Int(int64(tag)))
}

func valueSubKey(prefix string, length, pos int, v wire.Value) id.ID {
	return subKey(prefix, length, pos, variantValue, v)
}

func wildcardSubKey(prefix string, length, pos int) id.ID {
	return subKey(prefix, length, pos, variantWildcard, wire.Int(0))
}

// tupleValue renders a concrete tuple as the wire.Value that gets hashed
// for its main key and encoded as its stored payload.
func tupleValue(t Tuple) wire.Value {
	return wire.List(t...)
}

// mainKey is the DHT key a tuple (or a fully-deterministic template,
// treated as the tuple it names) is stored/looked up under.
func mainKey(prefix string, t Tuple) id.ID {
	return id.HashKey(prefix + string(wire.Encode(tupleValue(t))))
}

// tupleIndexSubKeys returns all three variant sub-keys for every position
// of a concrete tuple, grounded on the reference's "type/value/wildcard"
// derivation — used to index a newly published tuple (so it can be found
// by any of a future template's single-variant queries), to drop a consumed
// tuple from that index, and, under the "listener:" prefix, to clear a
// delivered listener's entries under whichever of the three it used.
func tupleIndexSubKeys(prefix string, t Tuple) []id.ID {
	out := make([]id.ID, 0, len(t)*len(subKeyVariants()))
	for i, element := range t {
		out = append(out,
			typeSubKey(prefix, len(t), i, element.Kind()),
			valueSubKey(prefix, len(t), i, element),
			wildcardSubKey(prefix, len(t), i),
		)
	}
	return out
}

// templateListenerKey derives the opaque identifier a non-deterministic
// template's listener registration is filed and waited under: the pending
// request table key, the value embedded in every index payload for later
// cleanup, and the (best-effort, usually empty) iterativeDelete target once
// the listener fires. It is distinct from mainKey because a template's
// wildcard positions have no tuple-value encoding of their own; a fully
// deterministic template instead reuses mainKey directly (see
// Space.listenerKeyFor) so a producer's exact-match probe in
// findListenerPayload lines up with a consumer's registration.
func templateListenerKey(tmpl Template) id.ID {
	items := make([]wire.Value, len(tmpl))
	for i, e := range tmpl {
		items[i] = wire.Dict(map[string]wire.Value{
			"kind":  wire.Int(int64(e.kind)),
			"tag":   wire.Int(int64(e.tag)),
			"value": e.value,
		})
	}
	return id.HashKey("listener:" + string(wire.Encode(wire.List(items...))))
}

// templateSearchSubKeys returns exactly one sub-key per position of a
// template, chosen by that position's match rule: the value sub-key for
// Equals, the type sub-key for OfType, and the wildcard sub-key for Any.
// Used both to search for a matching tuple (each position's single
// relevant variant, AND-intersected) and to register a listener under the
// one variant its own template specifies.
func templateSearchSubKeys(prefix string, tmpl Template) []id.ID {
	out := make([]id.ID, len(tmpl))
	for i, e := range tmpl {
		switch e.kind {
		case templateEquals:
			out[i] = valueSubKey(prefix, len(tmpl), i, e.value)
		case templateOfType:
			out[i] = typeSubKey(prefix, len(tmpl), i, e.tag)
		default:
			out[i] = wildcardSubKey(prefix, len(tmpl), i)
		}
	}
	return out
}
