package kademlia

import (
	"fmt"
	"net"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/wire"
)

// encodeContact renders a contact as a wire dict of (id, addr).
func encodeContact(c *contact.Contact) wire.Value {
	return wire.Dict(map[string]wire.Value{
		"id":   wire.Bytes(c.ID.Bytes()),
		"addr": wire.Str(c.Addr.String()),
	})
}

// decodeContact parses a wire dict produced by encodeContact.
func decodeContact(v wire.Value) (*contact.Contact, error) {
	idVal, ok := v.Field("id")
	if !ok {
		return nil, fmt.Errorf("kademlia: contact missing id")
	}
	idBytes, ok := idVal.Bytes()
	if !ok {
		return nil, fmt.Errorf("kademlia: contact id malformed")
	}
	cid, err := id.FromBytes(idBytes)
	if err != nil {
		return nil, err
	}

	addrVal, ok := v.Field("addr")
	if !ok {
		return nil, fmt.Errorf("kademlia: contact missing addr")
	}
	addrStr, ok := addrVal.Str()
	if !ok {
		return nil, fmt.Errorf("kademlia: contact addr malformed")
	}
	addr, err := net.ResolveUDPAddr("udp", addrStr)
	if err != nil {
		return nil, fmt.Errorf("kademlia: contact addr: %w", err)
	}
	return contact.New(cid, addr), nil
}

func encodeContacts(contacts []*contact.Contact) wire.Value {
	items := make([]wire.Value, len(contacts))
	for i, c := range contacts {
		items[i] = encodeContact(c)
	}
	return wire.List(items...)
}

func decodeContacts(v wire.Value) ([]*contact.Contact, error) {
	items, ok := v.List()
	if !ok {
		return nil, fmt.Errorf("kademlia: expected a list of contacts")
	}
	out := make([]*contact.Contact, 0, len(items))
	for _, item := range items {
		c, err := decodeContact(item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// findResult is the decoded shape of a find_node/find_value response: a
// list of closest contacts, or (for find_value) the value itself.
type findResult struct {
	Value    []byte
	HasValue bool
	Contacts []*contact.Contact
}

func encodeFindNodeResult(contacts []*contact.Contact) wire.Value {
	return wire.Dict(map[string]wire.Value{"contacts": encodeContacts(contacts)})
}

func encodeFindValueResult(value []byte) wire.Value {
	return wire.Dict(map[string]wire.Value{"value": wire.Bytes(value)})
}

func decodeFindResult(v wire.Value) (findResult, error) {
	if valVal, ok := v.Field("value"); ok {
		b, ok := valVal.Bytes()
		if !ok {
			return findResult{}, fmt.Errorf("kademlia: value field malformed")
		}
		return findResult{Value: b, HasValue: true}, nil
	}
	contactsVal, ok := v.Field("contacts")
	if !ok {
		return findResult{}, fmt.Errorf("kademlia: response has neither value nor contacts")
	}
	contacts, err := decodeContacts(contactsVal)
	if err != nil {
		return findResult{}, err
	}
	return findResult{Contacts: contacts}, nil
}
