// Package rpc implements the datagram-based request/response transport: a
// UDP listener that dispatches inbound requests to an explicit method-name
// dispatch table, correlates inbound responses with pending outbound calls
// by message id, and enforces per-call timeouts.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kademux/kadtuple/contact"
	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kaderr"
	"github.com/kademux/kadtuple/logging"
	"github.com/kademux/kadtuple/wire"
)

// DefaultTimeout is the spec default rpcTimeout (20s): how long an outbound
// call waits for a reply before resolving as a Timeout failure.
const DefaultTimeout = 20 * time.Second

// Handler processes one inbound Request's arguments and returns the result
// to send back as a Response, or an error to send back as an Error reply.
// Registration is explicit (RegisterHandler), never reflection-based, so
// InvalidMethod is simply "absent from the table".
type Handler func(sender id.ID, senderAddr net.Addr, args wire.Value) (wire.Value, error)

// ContactObserver is notified whenever a datagram is received from a peer,
// so the routing table can learn about it regardless of message kind.
type ContactObserver func(c *contact.Contact)

type pendingCall struct {
	replyCh chan *wire.Message
}

// Transport is a UDP-bound RPC endpoint for one Kademlia node.
type Transport struct {
	conn    net.PacketConn
	selfID  id.ID
	timeout time.Duration

	handlers map[string]Handler
	onPacket ContactObserver

	mu      sync.Mutex
	pending map[wire.MessageID]*pendingCall

	ctx    context.Context
	cancel context.CancelFunc

	log *logging.Helper
}

// New binds a UDP socket at listenAddr and starts its receive loop.
func New(selfID id.ID, listenAddr string, onPacket ContactObserver) (*Transport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())

	t := &Transport{
		conn:     conn,
		selfID:   selfID,
		timeout:  DefaultTimeout,
		handlers: make(map[string]Handler),
		onPacket: onPacket,
		pending:  make(map[wire.MessageID]*pendingCall),
		ctx:      ctx,
		cancel:   cancel,
		log:      logging.New("rpc", "Transport"),
	}
	go t.receiveLoop()
	return t, nil
}

// LocalAddr returns the transport's bound local address.
func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// SetTimeout overrides the default RPC timeout, primarily for tests.
func (t *Transport) SetTimeout(d time.Duration) { t.timeout = d }

// RegisterHandler exposes method as callable by remote peers. This is the
// explicit capability registration the spec requires in place of
// reflection-based dispatch.
func (t *Transport) RegisterHandler(method string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[method] = h
}

// Close stops the receive loop and releases the socket.
func (t *Transport) Close() error {
	t.cancel()
	return t.conn.Close()
}

// Call issues method against addr with args and blocks until a reply
// arrives, the call times out, or ctx is cancelled. A Response resolves
// with its result value; an Error reply resolves as a *kaderr.RemoteError;
// expiry of t.timeout resolves as kaderr.ErrTimeout wrapped with the
// destination id so the routing table can evict it.
func (t *Transport) Call(ctx context.Context, dest id.ID, addr net.Addr, method string, args wire.Value) (wire.Value, error) {
	result, _, err := t.call(ctx, dest, addr, method, args)
	return result, err
}

// CallWithSender behaves exactly like Call, but also returns the node id
// the reply's sender field actually carried. Callers that dialled a
// bootstrap-synthesised placeholder id use this to recover the peer's real
// id from the reply itself, per spec §4.7's extend-shortlist step.
func (t *Transport) CallWithSender(ctx context.Context, dest id.ID, addr net.Addr, method string, args wire.Value) (wire.Value, id.ID, error) {
	return t.call(ctx, dest, addr, method, args)
}

func (t *Transport) call(ctx context.Context, dest id.ID, addr net.Addr, method string, args wire.Value) (wire.Value, id.ID, error) {
	req := wire.NewRequest(t.selfID, method, args)

	replyCh := make(chan *wire.Message, 1)
	t.mu.Lock()
	t.pending[req.ID] = &pendingCall{replyCh: replyCh}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}()

	if _, err := t.conn.WriteTo(req.Serialize(), addr); err != nil {
		return wire.Value{}, id.ID{}, fmt.Errorf("rpc: send %s to %v: %w", method, addr, err)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case resp := <-replyCh:
		switch resp.Type {
		case wire.TypeResponse:
			return resp.Result, resp.Sender, nil
		case wire.TypeError:
			return wire.Value{}, id.ID{}, kaderr.NewRemoteError(resp.ErrorKind, resp.ErrorText)
		default:
			return wire.Value{}, id.ID{}, fmt.Errorf("rpc: unexpected reply type %d", resp.Type)
		}
	case <-timer.C:
		return wire.Value{}, id.ID{}, fmt.Errorf("rpc: call to %s (%v): %w", dest, addr, kaderr.ErrTimeout)
	case <-ctx.Done():
		return wire.Value{}, id.ID{}, ctx.Err()
	}
}

func (t *Transport) receiveLoop() {
	buf := make([]byte, 8192)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			continue
		}

		msg, err := wire.ParseMessage(buf[:n])
		if err != nil {
			t.log.WithError(err).Warn("dropping malformed datagram")
			continue
		}

		if t.onPacket != nil {
			t.onPacket(contact.New(msg.Sender, addr))
		}

		switch msg.Type {
		case wire.TypeRequest:
			go t.handleRequest(msg, addr)
		case wire.TypeResponse, wire.TypeError:
			t.resolvePending(msg)
		}
	}
}

func (t *Transport) resolvePending(msg *wire.Message) {
	t.mu.Lock()
	call, ok := t.pending[msg.ID]
	if ok {
		delete(t.pending, msg.ID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}
	select {
	case call.replyCh <- msg:
	default:
	}
}

func (t *Transport) handleRequest(req *wire.Message, addr net.Addr) {
	t.mu.Lock()
	handler, ok := t.handlers[req.Method]
	t.mu.Unlock()

	if !ok {
		errMsg := wire.NewError(t.selfID, req, "InvalidMethod", fmt.Sprintf("unknown method %q", req.Method))
		t.send(errMsg, addr)
		return
	}

	result, err := handler(req.Sender, addr, req.Args)
	if err != nil {
		kind, text := classifyHandlerError(err)
		errMsg := wire.NewError(t.selfID, req, kind, text)
		t.send(errMsg, addr)
		return
	}

	t.send(wire.NewResponse(t.selfID, req, result), addr)
}

func classifyHandlerError(err error) (kind, text string) {
	if re, ok := kaderr.AsRemoteError(err); ok {
		return re.Kind, re.Text
	}
	switch {
	case errors.Is(err, kaderr.ErrMissingPublisher):
		return "MissingPublisher", err.Error()
	case errors.Is(err, kaderr.ErrNotFound):
		return "NotFound", err.Error()
	default:
		return "Error", err.Error()
	}
}

func (t *Transport) send(msg *wire.Message, addr net.Addr) {
	if _, err := t.conn.WriteTo(msg.Serialize(), addr); err != nil {
		t.log.WithError(err).Warn("failed to send reply")
	}
}
