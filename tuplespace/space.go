package tuplespace

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kademlia"
	"github.com/kademux/kadtuple/logging"
	"github.com/kademux/kadtuple/wire"
)

// pendingListener is one outstanding blocking Get/Read/ReadN call, keyed by
// its listener key and delivered to by the receive_tuple handler.
type pendingListener struct {
	kind string // "get" or "read"
	ch   chan Tuple
}

// Space drives the distributed tuple space overlay over a Kademlia node: it
// stores tuples and their inverted index entries, resolves templates
// against that index, and runs the direct-delivery rendezvous between a
// producer's Put and a consumer already blocked in Get/Read.
type Space struct {
	node *kademlia.Node

	mu      sync.Mutex
	pending map[id.ID]*pendingListener
	randSrc *rand.Rand

	log *logging.Helper
}

// New returns a Space bound to node, registering the receive_tuple RPC the
// overlay uses to deliver a produced tuple directly to a waiting consumer.
func New(node *kademlia.Node) *Space {
	s := &Space{
		node:    node,
		pending: make(map[id.ID]*pendingListener),
		randSrc: rand.New(rand.NewSource(int64(firstSeedWord(node.ID)))),
		log:     logging.New("tuplespace", "Space"),
	}
	node.RegisterHandler("receive_tuple", s.handleReceiveTuple)
	return s
}

// firstSeedWord derives a non-cryptographic PRNG seed from a node's own id,
// so result-tie-breaking (which stored candidate to return) varies by node
// without needing crypto/rand for a choice that carries no security weight.
func firstSeedWord(self id.ID) uint32 {
	b := self.Bytes()
	var seed uint32
	for i := 0; i < 4 && i < len(b); i++ {
		seed = seed<<8 | uint32(b[i])
	}
	return seed
}

// randIndex picks a uniform index in [0, n) among equally-valid candidates.
func (s *Space) randIndex(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.randSrc.Intn(n)
}

// listenerKeyFor returns the identifier a template's listener registration
// is filed and waited under. A deterministic template reuses mainKey
// directly so it lines up with findListenerPayload's exact-match probe;
// anything with a wildcard gets its own opaque templateListenerKey.
func (s *Space) listenerKeyFor(tmpl Template) id.ID {
	if tmpl.Deterministic() {
		return mainKey("listener:", tmpl.AsTuple())
	}
	return templateListenerKey(tmpl)
}

// Put writes tuple into the tuple space. If a consumer is already blocked
// in Get on a matching template, the tuple is delivered to it directly and
// (for Get specifically, which consumes) is never stored in the DHT; the
// listener's own record and index entries are deleted either way. A
// waiting Read still receives it directly but the tuple is also stored
// normally, since Read does not consume.
func (s *Space) Put(ctx context.Context, t Tuple) error {
	payload, found, err := s.findListenerPayload(ctx, t)
	if err != nil {
		return fmt.Errorf("tuplespace: put: find listener: %w", err)
	}
	if found {
		nodeID, listenerKey, perr := parseListenerPayload(payload)
		if perr == nil {
			_ = s.node.IterativeDelete(ctx, listenerKey)
			s.bestEffortRemoveListenerIndex(ctx, t, payload)

			kind, derr := s.deliverToListener(ctx, nodeID, listenerKey, t)
			if derr != nil {
				s.log.WithError(derr).WithField("listener", listenerKey.String()).
					Debug("direct delivery to listener failed, storing normally")
			} else if kind == "get" {
				return nil
			}
			// kind == "read" (or unknown): falls through to storeTuple below,
			// since a read leaves the tuple in the space.
		}
	}
	return s.storeTuple(ctx, t)
}

// deliverToListener sends t directly to the node that registered
// listenerKey, returning the RPC's reply ("get" or "read").
func (s *Space) deliverToListener(ctx context.Context, nodeID, listenerKey id.ID, t Tuple) (string, error) {
	c, ok := s.node.FindContact(nodeID)
	if !ok {
		contacts, err := s.node.IterativeFindNode(ctx, nodeID)
		if err != nil {
			return "", err
		}
		for _, cand := range contacts {
			if cand.ID.Equal(nodeID) {
				c, ok = cand, true
				break
			}
		}
		if !ok {
			return "", fmt.Errorf("tuplespace: listener node %s unreachable", nodeID)
		}
	}

	args := wire.Dict(map[string]wire.Value{
		"listener_key": wire.Bytes(listenerKey.Bytes()),
		"tuple":        wire.Bytes(encodeTuple(t)),
	})
	reply, err := s.node.Call(ctx, nodeID, c.Addr, "receive_tuple", args)
	if err != nil {
		return "", err
	}
	kind, _ := reply.Str()
	return kind, nil
}

// storeTuple writes t's main record and folds it into every position's
// three-variant tuple-search index.
func (s *Space) storeTuple(ctx context.Context, t Tuple) error {
	key := mainKey("tuple:", t)
	if err := s.node.IterativeStore(ctx, key, encodeTuple(t), id.ID{}, 0); err != nil {
		return fmt.Errorf("tuplespace: store tuple: %w", err)
	}
	for _, sk := range tupleIndexSubKeys("tuple:", t) {
		if err := s.addIDToIndex(ctx, sk, key); err != nil {
			return fmt.Errorf("tuplespace: index tuple: %w", err)
		}
	}
	return nil
}

// removeFromTupleIndex drops tupleKey from every position's tuple-search
// index entry for t, called after a Get consumes the tuple.
func (s *Space) removeFromTupleIndex(ctx context.Context, t Tuple, tupleKey id.ID) {
	for _, sk := range tupleIndexSubKeys("tuple:", t) {
		s.removeIDFromIndex(ctx, sk, tupleKey)
	}
}

// bestEffortRemoveListenerIndex drops payload from every position's
// listener-search index entry for t. A non-deterministic listener may have
// registered under only one of the three variants per position; trying all
// of them is harmless since a missing entry simply contributes nothing.
func (s *Space) bestEffortRemoveListenerIndex(ctx context.Context, t Tuple, payload []byte) {
	for _, sk := range tupleIndexSubKeys("listener:", t) {
		s.removeBlobFromIndex(ctx, sk, payload)
	}
}

func (s *Space) addIDToIndex(ctx context.Context, key id.ID, value id.ID) error {
	existing, found, _, err := s.node.IterativeFindValue(ctx, key)
	if err != nil {
		return err
	}
	var ids []id.ID
	if found {
		if ids, err = decodeIDList(existing); err != nil {
			return err
		}
	}
	ids = append(ids, value)
	return s.node.IterativeStore(ctx, key, encodeIDList(ids), id.ID{}, 0)
}

func (s *Space) removeIDFromIndex(ctx context.Context, key id.ID, value id.ID) {
	existing, found, _, err := s.node.IterativeFindValue(ctx, key)
	if err != nil || !found {
		return
	}
	ids, err := decodeIDList(existing)
	if err != nil {
		return
	}
	out := ids[:0]
	for _, k := range ids {
		if !k.Equal(value) {
			out = append(out, k)
		}
	}
	if err := s.node.IterativeStore(ctx, key, encodeIDList(out), id.ID{}, 0); err != nil {
		s.log.WithError(err).Debug("best-effort index cleanup store failed")
	}
}

func (s *Space) addBlobToIndex(ctx context.Context, key id.ID, value []byte) error {
	existing, found, _, err := s.node.IterativeFindValue(ctx, key)
	if err != nil {
		return err
	}
	var blobs [][]byte
	if found {
		if blobs, err = decodeBlobList(existing); err != nil {
			return err
		}
	}
	blobs = append(blobs, value)
	return s.node.IterativeStore(ctx, key, encodeBlobList(blobs), id.ID{}, 0)
}

func (s *Space) removeBlobFromIndex(ctx context.Context, key id.ID, value []byte) {
	existing, found, _, err := s.node.IterativeFindValue(ctx, key)
	if err != nil || !found {
		return
	}
	blobs, err := decodeBlobList(existing)
	if err != nil {
		return
	}
	out := blobs[:0]
	for _, b := range blobs {
		if string(b) != string(value) {
			out = append(out, b)
		}
	}
	if err := s.node.IterativeStore(ctx, key, encodeBlobList(out), id.ID{}, 0); err != nil {
		s.log.WithError(err).Debug("best-effort index cleanup store failed")
	}
}
