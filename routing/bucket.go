// Package routing implements the Kademlia routing table: per-distance
// k-buckets holding known contacts, and the closest-contact lookups used by
// every RPC and iterative-find operation.
package routing

import (
	"sync"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kaderr"
)

// Bucket holds up to K contacts whose distance from the owning table's self
// ID falls in this bucket's range. Contacts are ordered least-recently-seen
// first, most-recently-seen last, matching the reference k-bucket's
// move-to-tail-on-touch behaviour.
type Bucket struct {
	mu       sync.Mutex
	contacts []*contact.Contact
	size     int
}

// NewBucket returns an empty bucket with capacity for size contacts.
func NewBucket(size int) *Bucket {
	return &Bucket{contacts: make([]*contact.Contact, 0, size), size: size}
}

// Add inserts or refreshes c in the bucket.
//
//   - If c is already present, it is moved to the tail (most recently seen).
//   - If the bucket has room, c is appended.
//   - If the bucket is full, the head (least recently seen) contact is
//     returned as an eviction candidate along with kaderr.BucketFull: per
//     spec this error never leaves the local node — the caller is expected
//     to ping the candidate and call Replace or Touch depending on the
//     outcome, rather than evicting a contact that might still be alive.
func (b *Bucket) Add(c *contact.Contact) (added bool, evictionCandidate *contact.Contact, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.contacts {
		if existing.Equal(c) {
			b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
			b.contacts = append(b.contacts, c)
			return true, nil, nil
		}
	}

	if len(b.contacts) < b.size {
		b.contacts = append(b.contacts, c)
		return true, nil, nil
	}

	return false, b.contacts[0], &kaderr.BucketFull{}
}

// Replace evicts the bucket's head contact and inserts replacement in its
// place, used after a ping to the head candidate has timed out.
func (b *Bucket) Replace(replacement *contact.Contact) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.contacts) == 0 {
		b.contacts = append(b.contacts, replacement)
		return
	}
	b.contacts = append(b.contacts[1:], replacement)
}

// Touch moves the contact with the given ID to the tail, used after a ping
// to the head candidate has succeeded (it's still alive; keep it, and the
// new contender is dropped).
func (b *Bucket) Touch(target id.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.contacts {
		if existing.ID.Equal(target) {
			existing.Touch()
			b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
			b.contacts = append(b.contacts, existing)
			return
		}
	}
}

// Remove deletes the contact with the given ID, if present, preserving the
// least-recently-seen-first ordering of the remaining contacts.
func (b *Bucket) Remove(target id.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.contacts {
		if existing.ID.Equal(target) {
			b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
			return true
		}
	}
	return false
}

// Contacts returns a defensive copy of the bucket's contents, head first.
func (b *Bucket) Contacts() []*contact.Contact {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*contact.Contact, len(b.contacts))
	copy(out, b.contacts)
	return out
}

// Len returns the number of contacts currently in the bucket.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.contacts)
}
