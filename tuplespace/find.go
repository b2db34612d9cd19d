package tuplespace

import (
	"bytes"
	"context"

	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/wire"
)

// findTupleKey implements find_key_for_template in tuple-search mode: it
// resolves template to the DHT key of a matching stored tuple, or reports
// none found. A fully-deterministic template names its tuple directly; a
// template with wildcards walks the inverted index one position at a time,
// intersecting candidate sets and failing fast on an empty intersection.
func (s *Space) findTupleKey(ctx context.Context, tmpl Template) (id.ID, bool, error) {
	candidates, err := s.findTupleKeys(ctx, tmpl)
	if err != nil || len(candidates) == 0 {
		return id.ID{}, false, err
	}
	return candidates[s.randIndex(len(candidates))], true, nil
}

// findTupleKeys returns every stored tuple key matching tmpl. ReadIfExists
// uses the whole list; findTupleKey picks one of them at random.
func (s *Space) findTupleKeys(ctx context.Context, tmpl Template) ([]id.ID, error) {
	if tmpl.Deterministic() {
		return []id.ID{mainKey("tuple:", tmpl.AsTuple())}, nil
	}

	subKeys := templateSearchSubKeys("tuple:", tmpl)
	var candidates []id.ID
	for i, sk := range subKeys {
		value, found, _, err := s.node.IterativeFindValue(ctx, sk)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		index, err := decodeIDList(value)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			candidates = index
		} else {
			candidates = intersectIDs(candidates, index)
		}
		if len(candidates) == 0 {
			return nil, nil
		}
	}
	return candidates, nil
}

// findListenerPayload implements find_key_for_template in listener-search
// mode, called from Put to check for a consumer already waiting on the
// tuple about to be published. It first checks for an exact deterministic
// listener registration, then falls back to the per-position
// union-then-intersect walk over all three sub-key variants (a listener
// may have registered under any one of them).
func (s *Space) findListenerPayload(ctx context.Context, t Tuple) ([]byte, bool, error) {
	exactKey := mainKey("listener:", t)
	if value, found, _, err := s.node.IterativeFindValue(ctx, exactKey); err != nil {
		return nil, false, err
	} else if found {
		return value, true, nil
	}

	length := len(t)
	var candidates [][]byte
	for pos, element := range t {
		union, err := s.unionListenerIndexAtPosition(ctx, length, pos, element)
		if err != nil {
			return nil, false, err
		}
		if len(union) == 0 {
			return nil, false, nil
		}
		if pos == 0 {
			candidates = union
		} else {
			candidates = intersectBlobs(candidates, union)
		}
		if len(candidates) == 0 {
			return nil, false, nil
		}
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	return candidates[s.randIndex(len(candidates))], true, nil
}

// unionListenerIndexAtPosition fetches the listener index at all three
// sub-key variants for one tuple position and unions whatever is found: a
// listener waiting on this position may have registered under its exact
// value, its type, or a bare wildcard, and any of the three is a match for
// a producer's concrete element.
func (s *Space) unionListenerIndexAtPosition(ctx context.Context, length, pos int, element wire.Value) ([][]byte, error) {
	keys := []id.ID{
		typeSubKey("listener:", length, pos, element.Kind()),
		valueSubKey("listener:", length, pos, element),
		wildcardSubKey("listener:", length, pos),
	}

	var union [][]byte
	for _, k := range keys {
		value, found, _, err := s.node.IterativeFindValue(ctx, k)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		blobs, err := decodeBlobList(value)
		if err != nil {
			return nil, err
		}
		union = append(union, blobs...)
	}
	return union, nil
}

func intersectIDs(a, b []id.ID) []id.ID {
	set := make(map[id.ID]bool, len(b))
	for _, k := range b {
		set[k] = true
	}
	var out []id.ID
	for _, k := range a {
		if set[k] {
			out = append(out, k)
		}
	}
	return out
}

func intersectBlobs(a, b [][]byte) [][]byte {
	var out [][]byte
	for _, x := range a {
		for _, y := range b {
			if bytes.Equal(x, y) {
				out = append(out, x)
				break
			}
		}
	}
	return out
}
