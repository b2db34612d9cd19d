package kademlia

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/wire"
)

// rpcMethod selects which RPC an iterative lookup dispatches against the k
// closest nodes: FIND_NODE for a plain traversal, FIND_VALUE when looking
// for a stored value, or DELETE when driving an iterative_delete.
type rpcMethod string

const (
	rpcFindNode  rpcMethod = "find_node"
	rpcFindValue rpcMethod = "find_value"
	rpcDelete    rpcMethod = "delete"
)

// probeOutcome is what a single in-flight probe reports back to the
// iteration loop: either a decoded find-result, or an error (possibly a
// timeout) naming the contact that failed to answer. queriedID is always
// the id the probe was dialled against (the activeProbes/alreadyContacted
// bookkeeping key); contact is the corrected, real-id contact to fold into
// activeContacts on success, which may differ from queriedID when the
// dialled id was a bootstrap-synthesised placeholder.
type probeOutcome struct {
	queriedID id.ID
	contact   *contact.Contact
	result    findResult
	err       error
}

// IterativeFindState is the explicit state machine backing one
// iterative-find invocation, replacing the closures-over-mutable-list
// approach of the reference implementation with named fields any method can
// inspect or mutate directly.
type IterativeFindState struct {
	key       id.ID
	method    rpcMethod
	findValue bool

	shortlist        []*contact.Contact
	alreadyContacted map[id.ID]bool
	activeContacts   []*contact.Contact
	activeProbes     map[id.ID]bool

	prevClosest *contact.Contact

	foundValue         bool
	valueResult        []byte
	closestNodeNoValue *contact.Contact

	results chan probeOutcome
}

func newIterativeFindState(key id.ID, method rpcMethod, bootstrap []*contact.Contact) *IterativeFindState {
	return &IterativeFindState{
		key:              key,
		method:           method,
		findValue:        method == rpcFindValue,
		shortlist:        append([]*contact.Contact(nil), bootstrap...),
		alreadyContacted: make(map[id.ID]bool),
		activeProbes:     make(map[id.ID]bool),
		results:          make(chan probeOutcome, 8),
	}
}

func (s *IterativeFindState) sortByDistance(contacts []*contact.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		return id.Less(contacts[i].ID.Distance(s.key), contacts[j].ID.Distance(s.key))
	})
}

// closest returns the best (smallest-distance) active contact, or nil.
func (s *IterativeFindState) closest() *contact.Contact {
	if len(s.activeContacts) == 0 {
		return nil
	}
	return s.activeContacts[0]
}

// IterativeFind is the heart of the system: a bounded-parallelism shortlist
// traversal that converges on the k closest reachable contacts to key, or
// (when method is rpcFindValue) the first value found along the way.
//
// If bootstrap is nil, the shortlist is seeded from the local routing
// table's alpha closest contacts to key, and routing.Table.TouchBucket(key)
// is called, which moves key to the tail of its bucket only when key is
// itself a known contact. A lookup does not update the per-bucket refresh
// times that RefreshNode consults.
func (n *Node) IterativeFind(ctx context.Context, key id.ID, method rpcMethod, bootstrap []*contact.Contact) (*IterativeFindState, error) {
	if bootstrap == nil {
		bootstrap = n.routing.FindClosest(key, n.config.Alpha, nil)
		n.routing.TouchBucket(key)
	}
	s := newIterativeFindState(key, method, bootstrap)
	if len(s.shortlist) == 0 {
		return s, nil
	}

	for {
		s.sortByDistance(s.activeContacts)

		if s.findValue && s.foundValue {
			return s, nil
		}
		if len(s.activeContacts) > 0 && !s.findValue &&
			(len(s.activeContacts) >= n.config.K || s.bestUnchangedNoProbes()) {
			return s, nil
		}

		launched := s.launchProbes(ctx, n)
		if launched == 0 && len(s.activeProbes) == 0 {
			// Nothing left to try and nothing in flight: resolve with
			// whatever we have.
			return s, nil
		}

		select {
		case outcome := <-s.results:
			s.handleOutcome(outcome)
		case <-time.After(n.config.IterativeLookupDelay):
			// Tick expired with probes still outstanding; loop around and
			// re-evaluate termination / launch more probes.
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// bestUnchangedNoProbes reports whether the closest known contact hasn't
// improved since the previous iteration and no probes remain in flight —
// the "converged, nothing more to gain" termination case.
func (s *IterativeFindState) bestUnchangedNoProbes() bool {
	if len(s.activeProbes) > 0 {
		return false
	}
	best := s.closest()
	unchanged := s.prevClosest != nil && best != nil && s.prevClosest.ID.Equal(best.ID)
	s.prevClosest = best
	return unchanged
}

// launchProbes starts up to Alpha new probes against uncontacted shortlist
// entries, sorted by distance, and returns how many it started.
func (s *IterativeFindState) launchProbes(ctx context.Context, n *Node) int {
	s.sortByDistance(s.shortlist)

	launched := 0
	for _, c := range s.shortlist {
		if launched+len(s.activeProbes) >= n.config.Alpha {
			break
		}
		if s.alreadyContacted[c.ID] {
			continue
		}
		s.alreadyContacted[c.ID] = true
		s.activeProbes[c.ID] = true
		launched++
		go s.probe(ctx, n, c)
	}
	return launched
}

// probe issues the RPC named by s.method against c and reports the outcome
// on s.results. On success the reported contact is rebuilt from the
// reply's sender id — the socket address that actually delivered the
// reply is c.Addr, the address we dialled, but the id is trusted from the
// reply itself, overwriting any bootstrap-synthesised placeholder in c.ID.
func (s *IterativeFindState) probe(ctx context.Context, n *Node, c *contact.Contact) {
	callCtx, cancel := context.WithTimeout(ctx, n.config.RPCTimeout)
	defer cancel()

	args := wire.Dict(map[string]wire.Value{"key": wire.Bytes(s.key.Bytes())})
	reply, senderID, err := n.callWithSender(callCtx, c.ID, c.Addr, string(s.method), args)
	if err != nil {
		s.results <- probeOutcome{queriedID: c.ID, contact: c, err: fmt.Errorf("probe %s: %w", c.ID, err)}
		return
	}
	result, err := decodeFindResult(reply)
	if err != nil {
		s.results <- probeOutcome{queriedID: c.ID, contact: c, err: err}
		return
	}
	s.results <- probeOutcome{queriedID: c.ID, contact: contact.New(senderID, c.Addr), result: result}
}

// handleOutcome applies one probe's result to the state: extend-shortlist
// on success, error-remove on failure, and always cancel-probe bookkeeping.
func (s *IterativeFindState) handleOutcome(o probeOutcome) {
	delete(s.activeProbes, o.queriedID)

	if o.err != nil {
		s.removeFromShortlist(o.queriedID)
		return
	}
	s.extendShortlist(o.contact, o.result)
}

// removeFromShortlist drops a contact that failed to answer; it never
// becomes active and is not retried.
func (s *IterativeFindState) removeFromShortlist(deadID id.ID) {
	out := s.shortlist[:0]
	for _, c := range s.shortlist {
		if !c.ID.Equal(deadID) {
			out = append(out, c)
		}
	}
	s.shortlist = out
}

// extendShortlist folds a successful reply into the state: the replying
// contact becomes active (its id taken from the reply's sender field, not
// any bootstrap placeholder), any value
// found populates the findValue accumulator, and any returned contacts
// extend the shortlist if unseen.
func (s *IterativeFindState) extendShortlist(replier *contact.Contact, result findResult) {
	s.activeContacts = append(s.activeContacts, replier)

	if result.HasValue {
		s.foundValue = true
		s.valueResult = result.Value
		return
	}

	// replier answered with a list, not a value: it's a candidate to
	// receive the cache-warming STORE once a value is found elsewhere,
	// tracked by the replier's own distance to key.
	if s.closestNodeNoValue == nil ||
		id.Less(replier.ID.Distance(s.key), s.closestNodeNoValue.ID.Distance(s.key)) {
		s.closestNodeNoValue = replier
	}

	for _, c := range result.Contacts {
		if s.alreadyContacted[c.ID] {
			continue
		}
		s.shortlist = append(s.shortlist, c)
	}
}

// IterativeFindNode runs a plain FIND_NODE traversal and returns the k
// closest reachable contacts.
func (n *Node) IterativeFindNode(ctx context.Context, key id.ID) ([]*contact.Contact, error) {
	s, err := n.IterativeFind(ctx, key, rpcFindNode, nil)
	if err != nil {
		return nil, err
	}
	return s.activeContacts, nil
}

// IterativeStore runs a FIND_NODE traversal to locate the nodes responsible
// for key, then issues a best-effort STORE against each. publisher and age
// default to self/0 when zero-valued.
func (n *Node) IterativeStore(ctx context.Context, key id.ID, value []byte, publisher id.ID, age time.Duration) error {
	if publisher.Equal(id.ID{}) {
		publisher = n.ID
	}
	contacts, err := n.IterativeFindNode(ctx, key)
	if err != nil {
		return err
	}
	args := wire.Dict(map[string]wire.Value{
		"key":          wire.Bytes(key.Bytes()),
		"value":        wire.Bytes(value),
		"publisher_id": wire.Bytes(publisher.Bytes()),
		"age":          wire.Int(int64(age / time.Second)),
	})
	for _, c := range contacts {
		go n.fireAndForgetStore(c, args)
	}
	return nil
}

func (n *Node) fireAndForgetStore(c *contact.Contact, args wire.Value) {
	callCtx, cancel := context.WithTimeout(context.Background(), n.config.RPCTimeout)
	defer cancel()
	if _, err := n.transport.Call(callCtx, c.ID, c.Addr, "store", args); err != nil {
		n.log.WithError(err).WithField("contact", c.ID.String()).Debug("store rpc failed")
	}
}

// IterativeFindValue looks for key across the network, resolving with the
// value if found or the k closest contacts otherwise. On success it
// opportunistically warms the cache at the closest node known not to hold
// the value. When no peer returns the value, the node's own data store is
// checked before resolving with the contacts.
func (n *Node) IterativeFindValue(ctx context.Context, key id.ID) (value []byte, found bool, contacts []*contact.Contact, err error) {
	s, err := n.IterativeFind(ctx, key, rpcFindValue, nil)
	if err != nil {
		return nil, false, nil, err
	}
	if s.foundValue {
		if s.closestNodeNoValue != nil {
			args := wire.Dict(map[string]wire.Value{
				"key":          wire.Bytes(key.Bytes()),
				"value":        wire.Bytes(s.valueResult),
				"publisher_id": wire.Bytes(n.ID.Bytes()),
				"age":          wire.Int(0),
			})
			go n.fireAndForgetStore(s.closestNodeNoValue, args)
		}
		return s.valueResult, true, nil, nil
	}
	if entry, ok, _ := n.dataStore.Get(key); ok {
		return entry.Value, true, nil, nil
	}
	return nil, false, s.activeContacts, nil
}

// IterativeDelete removes the local copy of key (if any) and drives a
// DELETE traversal against the k closest nodes, each of which removes its
// own local copy and replies as find_node would.
func (n *Node) IterativeDelete(ctx context.Context, key id.ID) error {
	_ = n.dataStore.Delete(key)
	_, err := n.IterativeFind(ctx, key, rpcDelete, nil)
	return err
}

// Join binds the node's bootstrap contacts (synthesised with placeholder
// ids that get overwritten by the real id on first reply) and runs an
// iterative_find against the node's own id to populate its routing table.
func (n *Node) Join(ctx context.Context, bootstrapAddrs []net.Addr) error {
	if len(bootstrapAddrs) == 0 {
		return nil
	}
	shortlist := make([]*contact.Contact, 0, len(bootstrapAddrs))
	for _, addr := range bootstrapAddrs {
		placeholder := randomIDInRange()
		shortlist = append(shortlist, contact.New(placeholder, addr))
	}
	_, err := n.IterativeFind(ctx, n.ID, rpcFindNode, shortlist)
	return err
}
