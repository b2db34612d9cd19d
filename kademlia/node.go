// Package kademlia implements the node that composes the routing table,
// data store, and RPC transport into the iterative FIND_NODE / FIND_VALUE /
// STORE / DELETE operations, bootstrap, and periodic refresh/republish
// cycle.
package kademlia

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kaderr"
	"github.com/kademux/kadtuple/logging"
	"github.com/kademux/kadtuple/routing"
	"github.com/kademux/kadtuple/rpc"
	"github.com/kademux/kadtuple/store"
	"github.com/kademux/kadtuple/wire"
)

// Node composes a local identifier, routing table, data store, and RPC
// transport into the full Kademlia protocol surface.
type Node struct {
	ID id.ID

	routing   *routing.Table
	dataStore store.Backend
	transport *rpc.Transport
	config    Config

	lastAccessed map[int]time.Time

	log *logging.Helper
}

// New binds a UDP transport at listenAddr and returns a Node ready to
// Join a network, using backend for locally-held values.
func New(selfID id.ID, listenAddr string, backend store.Backend, config Config) (*Node, error) {
	n := &Node{
		ID:           selfID,
		routing:      routing.NewTable(selfID, config.K),
		dataStore:    backend,
		config:       config,
		lastAccessed: make(map[int]time.Time),
		log:          logging.New("kademlia", "Node"),
	}

	tr, err := rpc.New(selfID, listenAddr, n.observeContact)
	if err != nil {
		return nil, err
	}
	tr.SetTimeout(config.RPCTimeout)
	n.transport = tr

	tr.RegisterHandler("ping", n.handlePing)
	tr.RegisterHandler("store", n.handleStore)
	tr.RegisterHandler("find_node", n.handleFindNode)
	tr.RegisterHandler("find_value", n.handleFindValue)
	tr.RegisterHandler("delete", n.handleDelete)

	return n, nil
}

// LocalAddr returns the address the node's transport is bound to.
func (n *Node) LocalAddr() net.Addr { return n.transport.LocalAddr() }

// Close releases the node's transport resources.
func (n *Node) Close() error { return n.transport.Close() }

// observeContact feeds every contact seen on the wire into the routing
// table, running the replacement-probe policy when a bucket is full.
func (n *Node) observeContact(c *contact.Contact) {
	if c.ID.Equal(n.ID) {
		return
	}
	added, evictionCandidate, err := n.routing.Add(c)
	if added || err == nil {
		return
	}
	var bucketFull *kaderr.BucketFull
	if !isBucketFull(err, &bucketFull) {
		return
	}
	go n.probeReplacement(evictionCandidate, c)
}

func isBucketFull(err error, target **kaderr.BucketFull) bool {
	bf, ok := err.(*kaderr.BucketFull)
	if ok {
		*target = bf
	}
	return ok
}

// probeReplacement pings the bucket's least-recently-seen contact
// (evictionCandidate); on timeout it is dropped and candidate takes its
// place, otherwise it is refreshed and candidate is discarded. Either way
// the ping is recorded on head's PingStats so Reliability reflects what
// actually happened on the wire.
func (n *Node) probeReplacement(head, candidate *contact.Contact) {
	ctx, cancel := context.WithTimeout(context.Background(), n.config.RPCTimeout)
	defer cancel()

	head.RecordPingSent()
	_, err := n.transport.Call(ctx, head.ID, head.Addr, "ping", wire.List())
	if err != nil {
		head.RecordPingResult(false)
		n.routing.Replace(head.ID, candidate)
		return
	}
	head.RecordPingResult(true)
	n.routing.TouchBucket(head.ID)
}

// Contacts returns a diagnostic snapshot of every contact the routing
// table currently knows about.
func (n *Node) Contacts() []*contact.Contact {
	return n.routing.All()
}

// RegisterHandler exposes an additional RPC method on this node's
// transport, for overlays (keyword, tuplespace) that extend the base
// Kademlia dispatch table with their own direct messages.
func (n *Node) RegisterHandler(method string, h rpc.Handler) {
	n.transport.RegisterHandler(method, h)
}

// Call issues a direct RPC against a known contact, for overlays that need
// to reach a specific node rather than run an iterative lookup.
func (n *Node) Call(ctx context.Context, dest id.ID, addr net.Addr, method string, args wire.Value) (wire.Value, error) {
	return n.transport.Call(ctx, dest, addr, method, args)
}

// callWithSender issues a direct RPC and also returns the id the reply's
// sender field carried, for the iterative-lookup probe path.
func (n *Node) callWithSender(ctx context.Context, dest id.ID, addr net.Addr, method string, args wire.Value) (wire.Value, id.ID, error) {
	return n.transport.CallWithSender(ctx, dest, addr, method, args)
}

// FindContact returns the routing table's record of target, if known.
func (n *Node) FindContact(target id.ID) (*contact.Contact, bool) {
	for _, c := range n.routing.FindClosest(target, n.config.K, nil) {
		if c.ID.Equal(target) {
			return c, true
		}
	}
	return nil, false
}

// Self exposes the node's own config, for overlays that need Alpha/K/etc.
func (n *Node) Self() Config { return n.config }

// --- RPC handlers (exposed) ---

func (n *Node) handlePing(sender id.ID, addr net.Addr, args wire.Value) (wire.Value, error) {
	return wire.Str("pong"), nil
}

func (n *Node) handleStore(sender id.ID, addr net.Addr, args wire.Value) (wire.Value, error) {
	keyVal, ok := args.Field("key")
	if !ok {
		return wire.Value{}, fmt.Errorf("store: missing key")
	}
	keyBytes, ok := keyVal.Bytes()
	if !ok {
		return wire.Value{}, fmt.Errorf("store: key malformed")
	}
	key, err := id.FromBytes(keyBytes)
	if err != nil {
		return wire.Value{}, err
	}

	valueVal, ok := args.Field("value")
	if !ok {
		return wire.Value{}, fmt.Errorf("store: missing value")
	}
	value, _ := valueVal.Bytes()

	publisher := sender
	if pubVal, ok := args.Field("publisher_id"); ok {
		if pubBytes, ok := pubVal.Bytes(); ok {
			if parsed, err := id.FromBytes(pubBytes); err == nil {
				publisher = parsed
			}
		}
	}
	if publisher.Equal(id.ID{}) && sender.Equal(id.ID{}) {
		return wire.Value{}, kaderr.ErrMissingPublisher
	}

	age := time.Duration(0)
	if ageVal, ok := args.Field("age"); ok {
		if ageSecs, ok := ageVal.Int(); ok {
			age = time.Duration(ageSecs) * time.Second
		}
	}

	now := time.Now()
	entry := store.Entry{
		Value:               value,
		Publisher:           publisher,
		OriginalPublishTime: now.Add(-age),
		LastPublished:       now,
	}
	if existing, ok, _ := n.dataStore.Get(key); ok {
		entry.OriginalPublishTime = existing.OriginalPublishTime
	}

	if err := n.dataStore.Put(key, entry); err != nil {
		return wire.Value{}, err
	}
	return wire.Str("ok"), nil
}

func (n *Node) handleFindNode(sender id.ID, addr net.Addr, args wire.Value) (wire.Value, error) {
	keyVal, ok := args.Field("key")
	if !ok {
		return wire.Value{}, fmt.Errorf("find_node: missing key")
	}
	keyBytes, ok := keyVal.Bytes()
	if !ok {
		return wire.Value{}, fmt.Errorf("find_node: key malformed")
	}
	key, err := id.FromBytes(keyBytes)
	if err != nil {
		return wire.Value{}, err
	}

	closest := n.routing.FindClosest(key, n.config.K, &sender)
	return encodeFindNodeResult(closest), nil
}

func (n *Node) handleFindValue(sender id.ID, addr net.Addr, args wire.Value) (wire.Value, error) {
	keyVal, ok := args.Field("key")
	if !ok {
		return wire.Value{}, fmt.Errorf("find_value: missing key")
	}
	keyBytes, ok := keyVal.Bytes()
	if !ok {
		return wire.Value{}, fmt.Errorf("find_value: key malformed")
	}
	key, err := id.FromBytes(keyBytes)
	if err != nil {
		return wire.Value{}, err
	}

	if entry, ok, _ := n.dataStore.Get(key); ok {
		return encodeFindValueResult(entry.Value), nil
	}
	return n.handleFindNode(sender, addr, args)
}

func (n *Node) handleDelete(sender id.ID, addr net.Addr, args wire.Value) (wire.Value, error) {
	keyVal, ok := args.Field("key")
	if !ok {
		return wire.Value{}, fmt.Errorf("delete: missing key")
	}
	keyBytes, ok := keyVal.Bytes()
	if !ok {
		return wire.Value{}, fmt.Errorf("delete: key malformed")
	}
	key, err := id.FromBytes(keyBytes)
	if err != nil {
		return wire.Value{}, err
	}
	_ = n.dataStore.Delete(key)
	return n.handleFindNode(sender, addr, args)
}

// randomIDInRange produces a random 160-bit id used to probe a specific
// bucket's distance range during refresh and to synthesise bootstrap
// placeholder contacts.
func randomIDInRange() id.ID {
	out, err := id.Generate()
	if err != nil {
		// crypto/rand failure is unrecoverable process-wide; a zero id is
		// still a valid (if poor) random-probe target.
		return id.ID{}
	}
	return out
}
