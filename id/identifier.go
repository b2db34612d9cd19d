// Package id implements the 160-bit node and key identifier space used by
// the Kademlia routing layer: random generation, the XOR distance metric,
// and bucket-index computation.
package id

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"errors"
)

// Length is the size of an identifier in bytes (160 bits).
const Length = 20

// Bits is the size of an identifier in bits, and the number of k-buckets a
// routing table maintains.
const Bits = Length * 8

// ID is a 160-bit Kademlia identifier, used both for node IDs and for keys
// in the data store / keyword / tuple-space overlays.
type ID [Length]byte

// ErrInvalidLength is returned when parsing a string or byte slice that is
// not exactly Length bytes long.
var ErrInvalidLength = errors.New("id: invalid identifier length")

// Generate returns a cryptographically random identifier.
func Generate() (ID, error) {
	var out ID
	if _, err := rand.Read(out[:]); err != nil {
		return ID{}, err
	}
	return out, nil
}

// FromBytes copies b into an ID, requiring an exact length match.
func FromBytes(b []byte) (ID, error) {
	var out ID
	if len(b) != Length {
		return out, ErrInvalidLength
	}
	copy(out[:], b)
	return out, nil
}

// FromString parses the hex representation produced by String.
func FromString(s string) (ID, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, err
	}
	return FromBytes(data)
}

// HashKey derives the identifier under which a named value lives in the
// data store: the SHA-1 digest of its key string. This mirrors the
// reference implementation's use of its hash function to map arbitrary
// keys (data-store names, keyword tokens, tuple sub-keys) onto the ID space.
func HashKey(key string) ID {
	sum := sha1.Sum([]byte(key))
	return ID(sum)
}

// String returns the hexadecimal representation of id.
func (i ID) String() string {
	return hex.EncodeToString(i[:])
}

// Bytes returns a copy of the identifier's bytes.
func (i ID) Bytes() []byte {
	out := make([]byte, Length)
	copy(out, i[:])
	return out
}

// Equal reports whether i and other are the same identifier.
func (i ID) Equal(other ID) bool {
	return i == other
}

// Distance returns the XOR metric distance between i and other, as defined
// by Kademlia: distance(a, b) = a XOR b, compared as an unsigned integer.
func (i ID) Distance(other ID) ID {
	var out ID
	for b := 0; b < Length; b++ {
		out[b] = i[b] ^ other[b]
	}
	return out
}

// Less reports whether distance a is numerically smaller than distance b,
// comparing bytes most-significant-first.
func Less(a, b ID) bool {
	for i := 0; i < Length; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// BucketIndex returns the index (0..Bits-1) of the k-bucket that other
// belongs to in a routing table centered on self: the index of the highest
// set bit in distance(self, other), scanning most-significant bit first. A
// self-distance of zero (self == other) has no defined bucket and returns
// -1; callers must special-case self-lookups before calling this.
func BucketIndex(self, other ID) int {
	d := self.Distance(other)
	for byteIdx := 0; byteIdx < Length; byteIdx++ {
		if d[byteIdx] == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if d[byteIdx]&(0x80>>uint(bit)) != 0 {
				return byteIdx*8 + bit
			}
		}
	}
	return -1
}
