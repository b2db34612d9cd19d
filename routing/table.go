package routing

import (
	"sort"
	"time"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kaderr"
)

// Table is the full Kademlia routing table for a local node: one Bucket per
// bit of the identifier space, each holding up to K contacts.
type Table struct {
	selfID  id.ID
	buckets [id.Bits]*Bucket
}

// NewTable returns an empty routing table for selfID, with each bucket sized
// to hold bucketSize contacts (spec default K=8).
func NewTable(selfID id.ID, bucketSize int) *Table {
	t := &Table{selfID: selfID}
	for i := range t.buckets {
		t.buckets[i] = NewBucket(bucketSize)
	}
	return t
}

// Self returns the table owner's identifier.
func (t *Table) Self() id.ID { return t.selfID }

// bucketIndexFor returns the bucket a contact with the given ID belongs in,
// treating the degenerate self-lookup (id.BucketIndex returns -1) as bucket
// 0, matching the reference implementation's handling of that edge case.
func (t *Table) bucketIndexFor(target id.ID) int {
	idx := id.BucketIndex(t.selfID, target)
	if idx < 0 {
		return 0
	}
	return idx
}

// Add inserts or refreshes c, rejecting the owning node's own identifier.
// See Bucket.Add for the eviction-candidate / BucketFull contract.
func (t *Table) Add(c *contact.Contact) (added bool, evictionCandidate *contact.Contact, err error) {
	if c.ID.Equal(t.selfID) {
		return false, nil, nil
	}
	idx := t.bucketIndexFor(c.ID)
	added, evictionCandidate, err = t.buckets[idx].Add(c)
	if bf, ok := err.(*kaderr.BucketFull); ok {
		bf.BucketIndex = idx
	}
	return added, evictionCandidate, err
}

// Replace evicts the head of the bucket target would live in and inserts
// replacement, used once a ping to that head contact has timed out.
func (t *Table) Replace(target id.ID, replacement *contact.Contact) {
	t.buckets[t.bucketIndexFor(target)].Replace(replacement)
}

// TouchBucket refreshes the position of an existing contact within its
// bucket, used once a ping to a contending bucket's head contact succeeds.
func (t *Table) TouchBucket(target id.ID) {
	t.buckets[t.bucketIndexFor(target)].Touch(target)
}

// Remove deletes the contact with the given ID from the routing table.
func (t *Table) Remove(target id.ID) bool {
	return t.buckets[t.bucketIndexFor(target)].Remove(target)
}

// FindClosest returns up to count contacts closest to target, widening the
// search outward from target's own bucket into neighbouring buckets when
// that bucket alone doesn't hold enough contacts, then sorting the
// candidates by XOR distance. excluded, if non-nil, is skipped (used so an
// RPC handler can omit the requesting peer from its own results).
func (t *Table) FindClosest(target id.ID, count int, excluded *id.ID) []*contact.Contact {
	bucketIndex := t.bucketIndexFor(target)

	var candidates []*contact.Contact
	collect := func(idx int) {
		if idx < 0 || idx >= id.Bits {
			return
		}
		for _, c := range t.buckets[idx].Contacts() {
			if excluded != nil && c.ID.Equal(*excluded) {
				continue
			}
			candidates = append(candidates, c)
		}
	}

	collect(bucketIndex)

	step := 1
	canGoLower := bucketIndex-step >= 0
	canGoHigher := bucketIndex+step < id.Bits
	for len(candidates) < count && (canGoLower || canGoHigher) {
		if canGoLower {
			collect(bucketIndex - step)
			canGoLower = bucketIndex-(step+1) >= 0
		}
		if canGoHigher {
			collect(bucketIndex + step)
			canGoHigher = bucketIndex+(step+1) < id.Bits
		}
		step++
	}

	sort.Slice(candidates, func(i, j int) bool {
		return id.Less(candidates[i].ID.Distance(target), candidates[j].ID.Distance(target))
	})

	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates
}

// All returns every contact currently known across all buckets, used for
// diagnostics (Contacts()).
func (t *Table) All() []*contact.Contact {
	var out []*contact.Contact
	for _, b := range t.buckets {
		out = append(out, b.Contacts()...)
	}
	return out
}

// RemoveStale drops every contact not seen within timeout and returns how
// many were removed. The maintenance loop does not call it.
func (t *Table) RemoveStale(timeout time.Duration) int {
	removed := 0
	for _, b := range t.buckets {
		for _, c := range b.Contacts() {
			if c.IsStale(timeout) {
				if b.Remove(c.ID) {
					removed++
				}
			}
		}
	}
	return removed
}

// NonEmptyBucketIndexes returns the indexes of buckets that currently hold
// at least one contact, used by the periodic refresh cycle to decide which
// distance ranges need a random lookup.
func (t *Table) NonEmptyBucketIndexes() []int {
	var out []int
	for i, b := range t.buckets {
		if b.Len() > 0 {
			out = append(out, i)
		}
	}
	return out
}

// Count returns the total number of contacts known across all buckets.
func (t *Table) Count() int {
	count := 0
	for _, b := range t.buckets {
		count += b.Len()
	}
	return count
}
