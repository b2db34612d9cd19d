package tuplespace

import (
	"context"
	"fmt"
	"net"

	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/wire"
)

// handleReceiveTuple is the direct-delivery endpoint a producer's Put calls
// on a consumer's node once it finds that consumer already waiting. It
// looks the listener key up in the local pending table, delivers the tuple
// to whichever blocking call registered it, and reports back which kind of
// call it was so the producer knows whether to also store the tuple (a
// waiting Read does not consume; a waiting Get does).
func (s *Space) handleReceiveTuple(sender id.ID, addr net.Addr, args wire.Value) (wire.Value, error) {
	keyVal, ok := args.Field("listener_key")
	if !ok {
		return wire.Value{}, fmt.Errorf("receive_tuple: missing listener_key")
	}
	keyBytes, ok := keyVal.Bytes()
	if !ok {
		return wire.Value{}, fmt.Errorf("receive_tuple: listener_key malformed")
	}
	listenerKey, err := id.FromBytes(keyBytes)
	if err != nil {
		return wire.Value{}, err
	}

	tupleVal, ok := args.Field("tuple")
	if !ok {
		return wire.Value{}, fmt.Errorf("receive_tuple: missing tuple")
	}
	tupleBytes, ok := tupleVal.Bytes()
	if !ok {
		return wire.Value{}, fmt.Errorf("receive_tuple: tuple malformed")
	}
	t, err := decodeTuple(tupleBytes)
	if err != nil {
		return wire.Value{}, err
	}

	s.mu.Lock()
	p, ok := s.pending[listenerKey]
	if ok {
		delete(s.pending, listenerKey)
	}
	s.mu.Unlock()

	if !ok {
		return wire.Value{}, fmt.Errorf("receive_tuple: no pending listener for key")
	}

	select {
	case p.ch <- t:
	default:
	}
	return wire.Str(p.kind), nil
}

// registerListener files a pending entry in the local table and, under the
// same key, an entry in the DHT a producer's Put can discover: a direct
// store at the template's listener key for a deterministic template, or an
// append into each position's single-variant listener index otherwise.
func (s *Space) registerListener(ctx context.Context, tmpl Template, kind string) (*pendingListener, error) {
	listenerKey := s.listenerKeyFor(tmpl)
	p := &pendingListener{kind: kind, ch: make(chan Tuple, 1)}

	s.mu.Lock()
	s.pending[listenerKey] = p
	s.mu.Unlock()

	payload := listenerPayload(s.node.ID, listenerKey)
	if tmpl.Deterministic() {
		if err := s.node.IterativeStore(ctx, listenerKey, payload, id.ID{}, 0); err != nil {
			s.unregisterListener(listenerKey)
			return nil, fmt.Errorf("tuplespace: register listener: %w", err)
		}
		return p, nil
	}

	for _, sk := range templateSearchSubKeys("listener:", tmpl) {
		if err := s.addBlobToIndex(ctx, sk, payload); err != nil {
			s.unregisterListener(listenerKey)
			return nil, fmt.Errorf("tuplespace: register listener: %w", err)
		}
	}
	return p, nil
}

func (s *Space) unregisterListener(listenerKey id.ID) {
	s.mu.Lock()
	delete(s.pending, listenerKey)
	s.mu.Unlock()
}

// waitForDelivery blocks until receive_tuple delivers a tuple for p, or ctx
// is cancelled. On cancellation its callers remove the local pending entry;
// the DHT-side registration is left in place.
func waitForDelivery(ctx context.Context, p *pendingListener) (Tuple, error) {
	select {
	case t := <-p.ch:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetIfExists reads and removes a tuple matching tmpl, if one already
// exists, without blocking.
func (s *Space) GetIfExists(ctx context.Context, tmpl Template) (Tuple, bool, error) {
	key, found, err := s.findTupleKey(ctx, tmpl)
	if err != nil || !found {
		return nil, false, err
	}
	value, found, _, err := s.node.IterativeFindValue(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	t, err := decodeTuple(value)
	if err != nil {
		return nil, false, err
	}
	if err := s.node.IterativeDelete(ctx, key); err != nil {
		s.log.WithError(err).Debug("best-effort delete of consumed tuple failed")
	}
	s.removeFromTupleIndex(ctx, t, key)
	return t, true, nil
}

// Get reads and removes (consumes) a tuple matching tmpl, blocking until
// one is produced if none exists yet.
func (s *Space) Get(ctx context.Context, tmpl Template) (Tuple, error) {
	if t, found, err := s.GetIfExists(ctx, tmpl); err != nil || found {
		return t, err
	}
	p, err := s.registerListener(ctx, tmpl, "get")
	if err != nil {
		return nil, err
	}
	t, err := waitForDelivery(ctx, p)
	if err != nil {
		s.unregisterListener(s.listenerKeyFor(tmpl))
	}
	return t, err
}

// ReadIfExists non-destructively reads up to numberOfResults tuples
// matching tmpl, without blocking. numberOfResults <= 0 means "all
// matches"; the tuples found remain in the space.
func (s *Space) ReadIfExists(ctx context.Context, tmpl Template, numberOfResults int) ([]Tuple, bool, error) {
	keys, err := s.findTupleKeys(ctx, tmpl)
	if err != nil || len(keys) == 0 {
		return nil, false, err
	}

	var out []Tuple
	for _, k := range keys {
		value, found, _, err := s.node.IterativeFindValue(ctx, k)
		if err != nil {
			return nil, false, err
		}
		if !found {
			continue
		}
		t, err := decodeTuple(value)
		if err != nil {
			return nil, false, err
		}
		out = append(out, t)
		if numberOfResults > 0 && len(out) >= numberOfResults {
			break
		}
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

// Read non-destructively reads a single tuple matching tmpl, blocking until
// one is produced if none exists yet.
func (s *Space) Read(ctx context.Context, tmpl Template) (Tuple, error) {
	results, err := s.ReadN(ctx, tmpl, 1)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

// ReadN non-destructively reads up to numberOfResults tuples matching
// tmpl, blocking until at least one is produced if none exist yet. A
// listener registered to satisfy the blocking wait only ever resolves with
// a single freshly-produced tuple, matching the reference implementation's
// behavior (numberOfResults governs only how many pre-existing tuples a
// non-blocking read may collect, never how many a blocking wait collects).
func (s *Space) ReadN(ctx context.Context, tmpl Template, numberOfResults int) ([]Tuple, error) {
	if results, found, err := s.ReadIfExists(ctx, tmpl, numberOfResults); err != nil || found {
		return results, err
	}
	p, err := s.registerListener(ctx, tmpl, "read")
	if err != nil {
		return nil, err
	}
	t, err := waitForDelivery(ctx, p)
	if err != nil {
		s.unregisterListener(s.listenerKeyFor(tmpl))
		return nil, err
	}
	return []Tuple{t}, nil
}
