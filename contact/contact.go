// Package contact represents a single peer known to a Kademlia node: its
// identifier, network address, and liveness bookkeeping, following the
// reference DHT node's TimeProvider seam and ping-statistics tracking.
package contact

import (
	"net"
	"sync"
	"time"

	"github.com/kademux/kadtuple/id"
)

// TimeProvider abstracts time operations so tests can drive liveness and
// staleness deterministically instead of sleeping.
type TimeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now() }

var defaultTimeProvider TimeProvider = realTimeProvider{}

// SetDefaultTimeProvider overrides the package-level time source used by
// constructors that don't take one explicitly. Passing nil restores the
// real clock.
func SetDefaultTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = realTimeProvider{}
	}
	defaultTimeProvider = tp
}

// PingStats tracks the reliability history of a single contact. The
// replacement probe records each ping here; its keep-or-replace decision
// depends only on the outcome of the current ping, not on this history.
type PingStats struct {
	LastPingSent     time.Time
	LastPingReceived time.Time
	PingCount        uint32
	SuccessCount     uint32
	FailureCount     uint32
}

// Reliability returns a score in [0,1]; a contact never pinged scores 0 so
// it's treated as unproven rather than trusted.
func (s PingStats) Reliability() float64 {
	if s.PingCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.PingCount)
}

// Contact is a single peer: its Kademlia identifier, its address, when it
// was last seen, and its ping history. ID and Addr are fixed at
// construction; LastSeen and PingStats are mutated concurrently by the
// transport's receive loop and by replacement-probe goroutines holding the
// same pointer the routing table stores, so mu guards them.
type Contact struct {
	ID   id.ID
	Addr net.Addr

	mu        sync.Mutex
	lastSeen  time.Time
	pingStats PingStats
}

// LastSeen returns when the contact was last touched.
func (c *Contact) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// PingStats returns a snapshot of the contact's ping history.
func (c *Contact) PingStats() PingStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingStats
}

// New creates a contact last seen now.
func New(contactID id.ID, addr net.Addr) *Contact {
	return NewWithTimeProvider(contactID, addr, defaultTimeProvider)
}

// NewWithTimeProvider creates a contact using an explicit time source.
func NewWithTimeProvider(contactID id.ID, addr net.Addr, tp TimeProvider) *Contact {
	if tp == nil {
		tp = defaultTimeProvider
	}
	return &Contact{ID: contactID, Addr: addr, lastSeen: tp.Now()}
}

// Touch marks the contact as seen just now. It updates only LastSeen; the
// contact's position in its bucket is unchanged.
func (c *Contact) Touch() {
	c.TouchWithTimeProvider(defaultTimeProvider)
}

// TouchWithTimeProvider marks the contact seen using an explicit clock.
func (c *Contact) TouchWithTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = defaultTimeProvider
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = tp.Now()
}

// RecordPingSent records that a liveness probe was sent to this contact.
func (c *Contact) RecordPingSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingStats.LastPingSent = defaultTimeProvider.Now()
	c.pingStats.PingCount++
}

// RecordPingResult records the outcome of a previously sent probe.
func (c *Contact) RecordPingResult(success bool) {
	c.mu.Lock()
	if success {
		c.pingStats.LastPingReceived = defaultTimeProvider.Now()
		c.pingStats.SuccessCount++
		c.lastSeen = defaultTimeProvider.Now()
	} else {
		c.pingStats.FailureCount++
	}
	c.mu.Unlock()
}

// IsStale reports whether the contact hasn't been seen within timeout.
func (c *Contact) IsStale(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return defaultTimeProvider.Now().Sub(c.lastSeen) > timeout
}

// Equal reports whether two contacts refer to the same peer identity.
func (c *Contact) Equal(other *Contact) bool {
	return other != nil && c.ID.Equal(other.ID)
}
