package tuplespace

import (
	"fmt"

	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/wire"
)

// encodeTuple renders a tuple as its on-the-wire/on-disk byte form.
func encodeTuple(t Tuple) []byte {
	return wire.Encode(tupleValue(t))
}

// decodeTuple parses the byte form produced by encodeTuple.
func decodeTuple(data []byte) (Tuple, error) {
	v, err := wire.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("tuplespace: malformed tuple: %w", err)
	}
	items, ok := v.List()
	if !ok {
		return nil, fmt.Errorf("tuplespace: tuple payload is not a list")
	}
	return Tuple(items), nil
}

// encodeIDList/decodeIDList handle a tuple-search inverted-index record: a
// list of tuple main keys that satisfy one sub-key's criterion.
func encodeIDList(ids []id.ID) []byte {
	items := make([]wire.Value, len(ids))
	for i, k := range ids {
		items[i] = wire.Bytes(k.Bytes())
	}
	return wire.Encode(wire.List(items...))
}

func decodeIDList(data []byte) ([]id.ID, error) {
	v, err := wire.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("tuplespace: malformed id index: %w", err)
	}
	items, ok := v.List()
	if !ok {
		return nil, fmt.Errorf("tuplespace: id index is not a list")
	}
	out := make([]id.ID, 0, len(items))
	for _, item := range items {
		b, ok := item.Bytes()
		if !ok {
			continue
		}
		k, err := id.FromBytes(b)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// encodeBlobList/decodeBlobList handle a listener inverted-index record: a
// list of raw (node-id ∥ listener-main-key) payload blobs, one per waiting
// listener that registered under that sub-key.
func encodeBlobList(blobs [][]byte) []byte {
	items := make([]wire.Value, len(blobs))
	for i, b := range blobs {
		items[i] = wire.Bytes(b)
	}
	return wire.Encode(wire.List(items...))
}

func decodeBlobList(data []byte) ([][]byte, error) {
	v, err := wire.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("tuplespace: malformed listener index: %w", err)
	}
	items, ok := v.List()
	if !ok {
		return nil, fmt.Errorf("tuplespace: listener index is not a list")
	}
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		b, ok := item.Bytes()
		if !ok {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// listenerPayload packs a waiting listener's node id and the key its
// listener record lives under into the single blob format the overlay
// passes around: node-id (20 bytes) followed by listener main key (20
// bytes).
func listenerPayload(nodeID, listenerKey id.ID) []byte {
	return append(nodeID.Bytes(), listenerKey.Bytes()...)
}

func parseListenerPayload(blob []byte) (nodeID, listenerKey id.ID, err error) {
	if len(blob) != 2*id.Length {
		return id.ID{}, id.ID{}, fmt.Errorf("tuplespace: malformed listener payload (%d bytes)", len(blob))
	}
	nodeID, err = id.FromBytes(blob[:id.Length])
	if err != nil {
		return id.ID{}, id.ID{}, err
	}
	listenerKey, err = id.FromBytes(blob[id.Length:])
	if err != nil {
		return id.ID{}, id.ID{}, err
	}
	return nodeID, listenerKey, nil
}
