// Package kaderr defines the error kinds shared across the DHT, RPC, and
// overlay packages, following the reference implementation's approach of
// typed errors with Error() methods rather than ad-hoc strings.
package kaderr

import (
	"errors"
	"fmt"
)

// Sentinel errors a caller can compare against with errors.Is. These cover
// the local, non-remote failure kinds: a request that never got a reply, an
// RPC method the peer doesn't recognize, a STORE that carries neither a
// publisher id nor a sender id, and a lookup that found nothing.
var (
	ErrTimeout          = errors.New("kademlia: request timed out")
	ErrInvalidMethod    = errors.New("kademlia: unknown rpc method")
	ErrMissingPublisher = errors.New("kademlia: value has no known publisher")
	ErrNotFound         = errors.New("kademlia: key not found")
)

// RemoteError wraps an error kind and message reported by a remote peer in
// response to an RPC call, re-raised locally so the caller can distinguish
// "the peer replied with an error" from "the peer never replied"
// (ErrTimeout). A call to a method the peer does not expose also arrives as
// a RemoteError, with Kind "InvalidMethod".
type RemoteError struct {
	Kind string
	Text string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%s): %s", e.Kind, e.Text)
}

// NewRemoteError constructs a RemoteError from a wire-level kind/text pair.
func NewRemoteError(kind, text string) *RemoteError {
	return &RemoteError{Kind: kind, Text: text}
}

// BucketFull is returned internally by the routing table when a k-bucket is
// at capacity, before anything is known about whether its least-recently-seen
// contact is still responsive (the caller pings it to decide); it never
// crosses the RPC boundary (spec: "BucketFull [internal-only]").
type BucketFull struct {
	BucketIndex int
}

func (e *BucketFull) Error() string {
	return fmt.Sprintf("routing: bucket %d is full", e.BucketIndex)
}

// AsRemoteError reports whether err (or something it wraps) is a RemoteError,
// returning it for inspection.
func AsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
