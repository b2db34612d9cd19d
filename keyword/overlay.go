// Package keyword implements the name-keyed publish/search overlay: a
// value is stored under the hash of its name, and every token of at least
// three characters extracted from that name is added to an inverted index
// so later searches by keyword can find it.
package keyword

import (
	"context"
	"fmt"
	"strings"

	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kademlia"
	"github.com/kademux/kadtuple/wire"
)

// minTokenLength is the shortest token the tokenizer keeps; anything
// shorter is treated as noise (stopword-like articles, units, etc).
const minTokenLength = 3

// Entry is one hit returned by Search: the published name and the key its
// value lives under.
type Entry struct {
	Name string
	Key  id.ID
}

// Overlay drives keyword publish/search over a Kademlia node's iterative
// store/find operations.
type Overlay struct {
	node *kademlia.Node
}

// New returns an Overlay bound to node.
func New(node *kademlia.Node) *Overlay {
	return &Overlay{node: node}
}

// Publish stores value under H(name), then folds (name, H(name)) into the
// inverted-index record of every token extracted from name. The
// read-modify-write of each index record is last-writer-wins under
// concurrent publishes sharing a token.
func (o *Overlay) Publish(ctx context.Context, name string, value []byte) error {
	nameKey := id.HashKey(name)
	if err := o.node.IterativeStore(ctx, nameKey, value, id.ID{}, 0); err != nil {
		return fmt.Errorf("keyword: publish %q: %w", name, err)
	}

	for _, token := range tokenize(name) {
		if err := o.addToIndex(ctx, token, Entry{Name: name, Key: nameKey}); err != nil {
			return fmt.Errorf("keyword: index token %q for %q: %w", token, name, err)
		}
	}
	return nil
}

// Search returns every entry indexed under keyword (lowercased).
func (o *Overlay) Search(ctx context.Context, keyword string) ([]Entry, error) {
	indexKey := id.HashKey(strings.ToLower(keyword))
	value, found, _, err := o.node.IterativeFindValue(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return decodeEntryList(value)
}

func (o *Overlay) addToIndex(ctx context.Context, token string, entry Entry) error {
	indexKey := id.HashKey(token)

	existing, found, _, err := o.node.IterativeFindValue(ctx, indexKey)
	if err != nil {
		return err
	}

	var entries []Entry
	if found {
		entries, err = decodeEntryList(existing)
		if err != nil {
			return err
		}
	}
	entries = append(entries, entry)

	return o.node.IterativeStore(ctx, indexKey, encodeEntryList(entries), id.ID{}, 0)
}

// tokenize lowercases name and splits it on underscores, dots, slashes, and
// whitespace, discarding tokens shorter than minTokenLength.
func tokenize(name string) []string {
	lower := strings.ToLower(name)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		switch r {
		case '_', '.', '/':
			return true
		}
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= minTokenLength {
			out = append(out, f)
		}
	}
	return out
}

func encodeEntryList(entries []Entry) []byte {
	items := make([]wire.Value, len(entries))
	for i, e := range entries {
		items[i] = wire.Dict(map[string]wire.Value{
			"name": wire.Str(e.Name),
			"key":  wire.Bytes(e.Key.Bytes()),
		})
	}
	return wire.Encode(wire.List(items...))
}

func decodeEntryList(data []byte) ([]Entry, error) {
	v, err := wire.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("keyword: malformed index record: %w", err)
	}
	items, ok := v.List()
	if !ok {
		return nil, fmt.Errorf("keyword: index record is not a list")
	}
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		nameVal, ok := item.Field("name")
		if !ok {
			continue
		}
		name, _ := nameVal.Str()
		keyVal, ok := item.Field("key")
		if !ok {
			continue
		}
		keyBytes, ok := keyVal.Bytes()
		if !ok {
			continue
		}
		key, err := id.FromBytes(keyBytes)
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: name, Key: key})
	}
	return out, nil
}
