// Package wire implements the request/response/error message envelope and
// its bencode-like wire encoding: the self-describing primitive-tree format
// carrying RPC arguments, results, and tuple-space elements across the
// network.
package wire

import "fmt"

// Kind tags which variant a Value holds.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindBytes
	KindList
	KindDict
)

// Value is a self-describing primitive: an integer, a float, a byte string,
// an ordered list of values, or a string-keyed map of values. This is the
// "primitive-tree representation" the spec requires for RPC args/results
// and is reused by the tuple-space overlay to represent tuple elements.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    []byte
	list []Value
	dict map[string]Value
}

func Int(i int64) Value       { return Value{kind: KindInt, i: i} }
func Float(f float64) Value   { return Value{kind: KindFloat, f: f} }
func Bytes(b []byte) Value    { return Value{kind: KindBytes, b: append([]byte(nil), b...)} }
func Str(s string) Value      { return Value{kind: KindBytes, b: []byte(s)} }
func List(items ...Value) Value {
	return Value{kind: KindList, list: items}
}
func Dict(m map[string]Value) Value { return Value{kind: KindDict, dict: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.b, true
}

func (v Value) Str() (string, bool) {
	b, ok := v.Bytes()
	return string(b), ok
}

func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) Dict() (map[string]Value, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Field fetches a key from a dict-kind Value.
func (v Value) Field(key string) (Value, bool) {
	d, ok := v.Dict()
	if !ok {
		return Value{}, false
	}
	val, ok := d[key]
	return val, ok
}

// Equal reports whether a and b hold the same kind and content, recursing
// into lists and dicts. Used by the tuple-space overlay to compare a
// template's Equals element against a candidate tuple element.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindBytes:
		return string(a.b) == string(b.b)
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(a.dict) != len(b.dict) {
			return false
		}
		for k, av := range a.dict {
			bv, ok := b.dict[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBytes:
		return fmt.Sprintf("%q", v.b)
	case KindList:
		return fmt.Sprintf("%v", v.list)
	case KindDict:
		return fmt.Sprintf("%v", v.dict)
	default:
		return "<invalid>"
	}
}
