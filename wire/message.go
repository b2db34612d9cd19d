package wire

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kademux/kadtuple/id"
)

// MessageID is a freshly generated opaque identifier distinct from node
// ids, used by the RPC transport to correlate a reply with its request.
type MessageID [16]byte

// NewMessageID generates a random message id. This is the teacher's
// go.mod-listed but previously unused google/uuid dependency's first real
// caller in this module.
func NewMessageID() MessageID {
	return MessageID(uuid.New())
}

func (m MessageID) String() string {
	return uuid.UUID(m).String()
}

// Type distinguishes the three message variants of the wire protocol.
type Type uint8

const (
	TypeRequest Type = iota
	TypeResponse
	TypeError
)

// Message is the top-level envelope: (type_tag, message_id, sender_node_id,
// payload...). Which payload fields are populated depends on Type.
type Message struct {
	Type   Type
	ID     MessageID
	Sender id.ID

	// Request fields.
	Method string
	Args   Value

	// Response field.
	Result Value

	// Error fields.
	ErrorKind string
	ErrorText string
}

// NewRequest builds a Request message with a fresh message id.
func NewRequest(sender id.ID, method string, args Value) *Message {
	return &Message{Type: TypeRequest, ID: NewMessageID(), Sender: sender, Method: method, Args: args}
}

// NewResponse builds a Response reply correlated to req.
func NewResponse(sender id.ID, req *Message, result Value) *Message {
	return &Message{Type: TypeResponse, ID: req.ID, Sender: sender, Result: result}
}

// NewError builds an Error reply correlated to req.
func NewError(sender id.ID, req *Message, kind, text string) *Message {
	return &Message{Type: TypeError, ID: req.ID, Sender: sender, ErrorKind: kind, ErrorText: text}
}

// Serialize encodes the message to its wire form.
func (m *Message) Serialize() []byte {
	dict := map[string]Value{
		"type":   Int(int64(m.Type)),
		"id":     Bytes(m.ID[:]),
		"sender": Bytes(m.Sender[:]),
	}
	switch m.Type {
	case TypeRequest:
		dict["method"] = Str(m.Method)
		dict["args"] = m.Args
	case TypeResponse:
		dict["result"] = m.Result
	case TypeError:
		dict["error_kind"] = Str(m.ErrorKind)
		dict["error_text"] = Str(m.ErrorText)
	}
	return Encode(Dict(dict))
}

// ParseMessage decodes bytes produced by Serialize, rejecting malformed
// input with an error rather than panicking so an inbound decode failure
// can be logged and dropped per the transport's error-handling policy.
func ParseMessage(data []byte) (*Message, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("wire: decode message: %w", err)
	}

	typeVal, ok := v.Field("type")
	if !ok {
		return nil, fmt.Errorf("wire: message missing type")
	}
	typeInt, ok := typeVal.Int()
	if !ok {
		return nil, fmt.Errorf("wire: message type is not an integer")
	}

	idVal, ok := v.Field("id")
	if !ok {
		return nil, fmt.Errorf("wire: message missing id")
	}
	idBytes, ok := idVal.Bytes()
	if !ok || len(idBytes) != 16 {
		return nil, fmt.Errorf("wire: message id malformed")
	}

	senderVal, ok := v.Field("sender")
	if !ok {
		return nil, fmt.Errorf("wire: message missing sender")
	}
	senderBytes, ok := senderVal.Bytes()
	if !ok {
		return nil, fmt.Errorf("wire: sender malformed")
	}
	sender, err := id.FromBytes(senderBytes)
	if err != nil {
		return nil, fmt.Errorf("wire: sender: %w", err)
	}

	m := &Message{Type: Type(typeInt), Sender: sender}
	copy(m.ID[:], idBytes)

	switch m.Type {
	case TypeRequest:
		methodVal, ok := v.Field("method")
		if !ok {
			return nil, fmt.Errorf("wire: request missing method")
		}
		method, _ := methodVal.Str()
		m.Method = method
		args, _ := v.Field("args")
		m.Args = args
	case TypeResponse:
		result, _ := v.Field("result")
		m.Result = result
	case TypeError:
		kindVal, _ := v.Field("error_kind")
		kind, _ := kindVal.Str()
		textVal, _ := v.Field("error_text")
		text, _ := textVal.Str()
		m.ErrorKind = kind
		m.ErrorText = text
	default:
		return nil, fmt.Errorf("wire: unknown message type %d", typeInt)
	}

	return m, nil
}
