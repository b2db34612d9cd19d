// Package tuplespace implements the distributed tuple space overlay: a
// content-addressed tuple store layered on the DHT, searchable by wildcard
// template via an inverted index, with blocking rendezvous between
// producers and consumers that may not yet coexist.
package tuplespace

import "github.com/kademux/kadtuple/wire"

// Tuple is an ordered sequence of concrete elements. Elements reuse
// wire.Value's tagged union (Int/Float/Bytes/Str) since that already
// captures the dynamically-typed value space the overlay needs, plus its
// own Kind() as the type tag used by wildcard-by-type matching.
type Tuple []wire.Value

// templateKind selects how one position of a Template matches a tuple
// element: any value, any value of a given type, or exactly one value.
type templateKind uint8

const (
	templateAny templateKind = iota
	templateOfType
	templateEquals
)

// TemplateElement is one position of a search Template: either a wildcard
// (Any), a type-constrained wildcard (OfType), or an exact value (Equals).
type TemplateElement struct {
	kind  templateKind
	tag   wire.Kind
	value wire.Value
}

// Any matches any element at this position.
func Any() TemplateElement { return TemplateElement{kind: templateAny} }

// OfType matches any element of kind tag at this position.
func OfType(tag wire.Kind) TemplateElement {
	return TemplateElement{kind: templateOfType, tag: tag}
}

// Equals matches only an element identical to v at this position.
func Equals(v wire.Value) TemplateElement {
	return TemplateElement{kind: templateEquals, value: v}
}

// Matches reports whether element satisfies this template position.
func (t TemplateElement) Matches(element wire.Value) bool {
	switch t.kind {
	case templateAny:
		return true
	case templateOfType:
		return element.Kind() == t.tag
	case templateEquals:
		return wire.Equal(t.value, element)
	default:
		return false
	}
}

// Template is an ordered sequence of per-position match rules used to
// search the tuple space.
type Template []TemplateElement

// Deterministic reports whether every position of the template is an
// Equals rule, meaning the template names exactly one tuple whose main key
// can be computed directly without consulting any inverted index.
func (t Template) Deterministic() bool {
	for _, e := range t {
		if e.kind != templateEquals {
			return false
		}
	}
	return true
}

// AsTuple converts a fully-deterministic template into the concrete Tuple
// it names. Callers must check Deterministic first.
func (t Template) AsTuple() Tuple {
	out := make(Tuple, len(t))
	for i, e := range t {
		out[i] = e.value
	}
	return out
}

// Matches reports whether tuple satisfies every position of the template.
func (t Template) Matches(tuple Tuple) bool {
	if len(t) != len(tuple) {
		return false
	}
	for i, e := range t {
		if !e.Matches(tuple[i]) {
			return false
		}
	}
	return true
}
