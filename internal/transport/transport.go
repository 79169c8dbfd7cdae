/*
 *
 * Copyright 2014 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package transport implements the client-side HTTP/2 stream multiplexer,
// per spec §4.2-§4.4: it owns the stream lifecycle state machine, the
// pending-stream admission queue, and the routing of inbound framer
// events to the streams they belong to. The HTTP/2 wire encoding itself
// (the Framer below) is a named, unspecified collaborator.
package transport

import (
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/coregrpc/grpccore/metadata"
	"github.com/coregrpc/grpccore/status"
)

// MaxStreamID is the largest valid HTTP/2 stream id a client may assign.
// Once the next id to hand out would exceed it, the id pool is
// permanently exhausted for this transport (spec §4.3 step 1a, §8).
var MaxStreamID uint32 = 1<<31 - 1

// StreamState is a client stream's position in the lifecycle state
// machine of spec §4.2.
type StreamState int

const (
	// StreamPending is the initial state: enqueued, no id assigned yet.
	StreamPending StreamState = iota
	// StreamHeadersSent: admitted, id assigned, HEADERS written, awaiting
	// the peer's response headers.
	StreamHeadersSent
	// StreamOpen: response headers received; message exchange in
	// progress.
	StreamOpen
	// StreamHalfClosedRemote: peer has sent its last DATA frame; only
	// trailers (or closure) remain.
	StreamHalfClosedRemote
	// StreamClosed is terminal. No further inbound frames are delivered.
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamPending:
		return "PENDING"
	case StreamHeadersSent:
		return "HEADERS_SENT"
	case StreamOpen:
		return "OPEN"
	case StreamHalfClosedRemote:
		return "HALF_CLOSED_REMOTE"
	case StreamClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// StreamCallbacks are invoked by the multiplexer, on its I/O context, as
// a client stream progresses through its lifecycle. Implementations must
// not block.
type StreamCallbacks struct {
	// OnHeaders is called once, when the stream transitions to OPEN.
	OnHeaders func(md metadata.MD)
	// OnData is called for every inbound DATA frame delivered to the
	// stream, endStream true on the last one.
	OnData func(p []byte, endStream bool)
	// OnClose is called exactly once, when the stream reaches CLOSED,
	// with its final Status and any trailer metadata received.
	OnClose func(st *status.Status, trailer metadata.MD)
}

// ClientStream is the multiplexer's client-side view of one RPC stream,
// per spec §3 "HTTP/2 Stream (local view)". Every field is mutated only
// from within the owning http2Client's I/O context (spec §5); it carries
// no lock of its own.
type ClientStream struct {
	id     uint32
	state  StreamState
	cb     StreamCallbacks
	closed bool
}

// ID returns the assigned HTTP/2 stream id, or 0 if the stream is still
// PENDING.
func (cs *ClientStream) ID() uint32 { return cs.id }

// State returns the stream's current lifecycle state.
func (cs *ClientStream) State() StreamState { return cs.state }

// pendingStream is the PendingStream triple of spec §3: headers, the
// stream handle, and (here) the handle's own completion callback rather
// than a separate signal, since ClientStream.cb.OnClose already serves
// that role.
type pendingStream struct {
	hdrs []hpack.HeaderField
	cs   *ClientStream
}

// Framer is the HTTP/2 framer collaborator consumed by the core (spec
// §6): outbound frame writes, each returning a completion future. Wire
// encoding and socket I/O are out of scope; only this event interface is
// specified.
type Framer interface {
	// WriteHeaders writes a HEADERS frame for streamID. hf has already
	// been through the metadata wire codec (internal/metadata).
	WriteHeaders(streamID uint32, hf []hpack.HeaderField, endStream bool) <-chan error
	// WriteData writes a DATA frame for streamID.
	WriteData(streamID uint32, p []byte, endStream bool) <-chan error
	// WriteRSTStream resets streamID with the given HTTP/2 error code.
	WriteRSTStream(streamID uint32, code http2.ErrCode) <-chan error
	// Flush pushes any buffered frames out to the peer. admit calls this
	// once per admitted stream, after WriteHeaders (spec §4.3 step 1d).
	Flush() error
}

// FlowController is the return-flow-control collaborator of spec §4.4:
// processed inbound bytes are returned to it so the HTTP/2 layer can
// grow the stream/connection receive window. Out of scope for this
// core; a no-op implementation is used when none is supplied.
type FlowController interface {
	ReturnBytes(streamID uint32, n int)
}

// Options configures a new client transport.
type Options struct {
	// InitialMaxConcurrentStreams bounds admission until the peer's
	// SETTINGS frame (if any) updates it via HandleSettings. Defaults to
	// 100, matching the HTTP/2 RFC 7540 §6.5.2 recommendation when a
	// peer hasn't advertised a limit.
	InitialMaxConcurrentStreams uint32
	// FlowController receives return_processed_bytes calls. May be nil.
	FlowController FlowController
}
