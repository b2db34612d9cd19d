package wire

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Encode serialises v into a bencode-derived byte string: integers as
// "i<digits>e", byte strings as "<len>:<bytes>", floats as "f<hex64>e" (an
// extension bencode itself has no native float form for, needed by the
// tuple space's Float element kind), lists as "l...e", and dicts as
// "d...e" with keys written in sorted order for a canonical encoding.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeInto(&buf, v)
	return buf.Bytes()
}

func encodeInto(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindInt:
		fmt.Fprintf(buf, "i%de", v.i)
	case KindFloat:
		fmt.Fprintf(buf, "f%xe", math.Float64bits(v.f))
	case KindBytes:
		fmt.Fprintf(buf, "%d:", len(v.b))
		buf.Write(v.b)
	case KindList:
		buf.WriteByte('l')
		for _, item := range v.list {
			encodeInto(buf, item)
		}
		buf.WriteByte('e')
	case KindDict:
		buf.WriteByte('d')
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(buf, "%d:", len(k))
			buf.WriteString(k)
			encodeInto(buf, v.dict[k])
		}
		buf.WriteByte('e')
	}
}

// Decode parses a byte string produced by Encode, rejecting malformed input
// with an error rather than panicking.
func Decode(data []byte) (Value, error) {
	v, rest, err := decodeOne(data)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, fmt.Errorf("wire: %d trailing bytes after top-level value", len(rest))
	}
	return v, nil
}

func decodeOne(data []byte) (Value, []byte, error) {
	if len(data) == 0 {
		return Value{}, nil, fmt.Errorf("wire: unexpected end of input")
	}

	switch {
	case data[0] == 'i':
		return decodeInt(data)
	case data[0] == 'f':
		return decodeFloat(data)
	case data[0] == 'l':
		return decodeList(data)
	case data[0] == 'd':
		return decodeDict(data)
	case data[0] >= '0' && data[0] <= '9':
		return decodeBytes(data)
	default:
		return Value{}, nil, fmt.Errorf("wire: invalid type marker %q", data[0])
	}
}

func decodeInt(data []byte) (Value, []byte, error) {
	end := bytes.IndexByte(data, 'e')
	if end < 0 {
		return Value{}, nil, fmt.Errorf("wire: unterminated integer")
	}
	n, err := strconv.ParseInt(string(data[1:end]), 10, 64)
	if err != nil {
		return Value{}, nil, fmt.Errorf("wire: invalid integer: %w", err)
	}
	return Int(n), data[end+1:], nil
}

func decodeFloat(data []byte) (Value, []byte, error) {
	end := bytes.IndexByte(data, 'e')
	if end < 0 {
		return Value{}, nil, fmt.Errorf("wire: unterminated float")
	}
	bits, err := strconv.ParseUint(string(data[1:end]), 16, 64)
	if err != nil {
		return Value{}, nil, fmt.Errorf("wire: invalid float: %w", err)
	}
	return Float(math.Float64frombits(bits)), data[end+1:], nil
}

func decodeBytes(data []byte) (Value, []byte, error) {
	colon := bytes.IndexByte(data, ':')
	if colon < 0 {
		return Value{}, nil, fmt.Errorf("wire: malformed byte string length")
	}
	n, err := strconv.Atoi(string(data[:colon]))
	if err != nil || n < 0 {
		return Value{}, nil, fmt.Errorf("wire: invalid byte string length")
	}
	start := colon + 1
	if start+n > len(data) {
		return Value{}, nil, fmt.Errorf("wire: byte string truncated")
	}
	return Bytes(data[start : start+n]), data[start+n:], nil
}

func decodeList(data []byte) (Value, []byte, error) {
	rest := data[1:]
	var items []Value
	for {
		if len(rest) == 0 {
			return Value{}, nil, fmt.Errorf("wire: unterminated list")
		}
		if rest[0] == 'e' {
			return List(items...), rest[1:], nil
		}
		item, next, err := decodeOne(rest)
		if err != nil {
			return Value{}, nil, err
		}
		items = append(items, item)
		rest = next
	}
}

func decodeDict(data []byte) (Value, []byte, error) {
	rest := data[1:]
	m := make(map[string]Value)
	for {
		if len(rest) == 0 {
			return Value{}, nil, fmt.Errorf("wire: unterminated dict")
		}
		if rest[0] == 'e' {
			return Dict(m), rest[1:], nil
		}
		keyVal, next, err := decodeBytes(rest)
		if err != nil {
			return Value{}, nil, fmt.Errorf("wire: dict key: %w", err)
		}
		key, _ := keyVal.Str()
		val, next2, err := decodeOne(next)
		if err != nil {
			return Value{}, nil, err
		}
		m[key] = val
		rest = next2
	}
}
