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

package transport

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
	"golang.org/x/sync/semaphore"

	"github.com/coregrpc/grpccore/codes"
	"github.com/coregrpc/grpccore/internal/grpclog"
	"github.com/coregrpc/grpccore/internal/grpcsync"
	imetadata "github.com/coregrpc/grpccore/internal/metadata"
	"github.com/coregrpc/grpccore/metadata"
	"github.com/coregrpc/grpccore/status"
)

var logger = grpclog.Component("transport")

const defaultInitialMaxConcurrentStreams = 100

// http2Client multiplexes client-side gRPC streams over one HTTP/2
// connection, per spec §4.4. Every mutable field below is touched only
// from inside a callback scheduled on ctx, the I/O context of spec §4.6;
// there is no locking inside the multiplexer itself (spec §5).
type http2Client struct {
	id     uuid.UUID
	framer Framer
	flowCtl FlowController
	ctx    *grpcsync.CallbackSerializer
	cancel context.CancelFunc

	nextID               uint32
	maxConcurrentStreams uint32
	quota                *semaphore.Weighted
	activeStreams        map[uint32]*ClientStream
	pending              []*pendingStream
	connErr              error
	goAway               bool
	goAwayLastStreamID   uint32
	exhausted            bool
	closed               bool

	// closeOnce makes repeated Close calls schedule cleanup only once. A
	// Close racing an inbound connection error or connection-inactive
	// event is resolved by teardown's closed flag instead.
	closeOnce sync.Once
}

// NewClientTransport creates a multiplexer driving framer. The returned
// transport starts accepting CreateStream calls immediately; callers
// that want to bound concurrency before any SETTINGS frame arrives
// should set opts.InitialMaxConcurrentStreams.
func NewClientTransport(framer Framer, opts Options) *http2Client {
	max := opts.InitialMaxConcurrentStreams
	if max == 0 {
		max = defaultInitialMaxConcurrentStreams
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &http2Client{
		id:                   uuid.New(),
		framer:               framer,
		flowCtl:              opts.FlowController,
		ctx:                  grpcsync.NewCallbackSerializer(ctx),
		cancel:               cancel,
		nextID:               1,
		maxConcurrentStreams: max,
		quota:                semaphore.NewWeighted(int64(max)),
		activeStreams:        make(map[uint32]*ClientStream),
	}
	return t
}

// CreateStream enqueues a new stream for admission (spec §4.3/§4.4) and
// returns its handle immediately; admission, and therefore assignment of
// an id, happens asynchronously on the I/O context.
func (t *http2Client) CreateStream(hdrs []hpack.HeaderField, cb StreamCallbacks) *ClientStream {
	cs := &ClientStream{state: StreamPending, cb: cb}
	ps := &pendingStream{hdrs: hdrs, cs: cs}
	ok := t.ctx.TrySchedule(func(context.Context) {
		t.pending = append(t.pending, ps)
		t.admit()
	})
	if !ok {
		t.closeStream(cs, status.New(codes.Unavailable, "transport is closed"), nil)
	}
	return cs
}

// SendFrame writes a DATA frame for cs (spec §4.4 SendFrame). Flushing
// is the outbound flow controller's responsibility, not this core's.
func (t *http2Client) SendFrame(cs *ClientStream, p []byte, endStream bool) {
	t.ctx.TrySchedule(func(context.Context) {
		if cs.state != StreamHeadersSent && cs.state != StreamOpen {
			return
		}
		errCh := t.framer.WriteData(cs.id, p, endStream)
		go t.awaitWrite(errCh, cs)
	})
}

// CancelStream implements spec §4.4 CancelStream: dequeues cs if it has
// no assigned id yet, otherwise writes RST_STREAM(CANCEL) if its HTTP/2
// state is not already CLOSED. A cancel on an already-CLOSED stream is a
// no-op (spec §8 idempotence).
func (t *http2Client) CancelStream(cs *ClientStream) {
	t.ctx.TrySchedule(func(context.Context) { t.cancelStream(cs) })
}

func (t *http2Client) cancelStream(cs *ClientStream) {
	if cs.state == StreamClosed {
		return
	}
	st := status.New(codes.Canceled, "stream canceled")
	if cs.id == 0 {
		t.removePending(cs)
		t.closeStream(cs, st, nil)
		return
	}
	delete(t.activeStreams, cs.id)
	t.quota.Release(1)
	t.closeStream(cs, st, nil)
	errCh := t.framer.WriteRSTStream(cs.id, http2.ErrCodeCancel)
	go t.drain(errCh)
	t.admit()
}

func (t *http2Client) removePending(cs *ClientStream) {
	for i, ps := range t.pending {
		if ps.cs == cs {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}
}

// admit runs the pending-stream admission loop of spec §4.3. It must
// only be called from within a callback running on ctx.
func (t *http2Client) admit() {
	for len(t.pending) > 0 {
		if t.exhausted || t.goAway {
			t.failAllPending(t.goAwayStatus())
			return
		}
		if t.nextID > MaxStreamID {
			t.exhausted = true
			t.failAllPending(t.goAwayStatus())
			return
		}
		if !t.quota.TryAcquire(1) {
			return
		}
		ps := t.pending[0]
		t.pending = t.pending[1:]

		id := t.nextID
		t.nextID += 2
		ps.cs.id = id
		ps.cs.state = StreamHeadersSent
		t.activeStreams[id] = ps.cs

		errCh := t.framer.WriteHeaders(id, ps.hdrs, false)
		cs := ps.cs
		go func() {
			if err := <-errCh; err != nil {
				t.ctx.TrySchedule(func(context.Context) { t.handleStreamError(cs, err) })
			}
		}()

		if err := t.framer.Flush(); err != nil {
			t.teardown(status.New(codes.Unavailable, "flush failed: "+err.Error()))
			return
		}
	}
}

func (t *http2Client) failAllPending(st *status.Status) {
	pending := t.pending
	t.pending = nil
	for _, ps := range pending {
		t.closeStream(ps.cs, st, nil)
	}
}

// goAwayStatus is spec §4.4's goaway-status: the recorded connection
// error translated through Status.from_throwable, or UNAVAILABLE.
func (t *http2Client) goAwayStatus() *status.Status {
	if t.connErr != nil {
		return status.FromThrowable(t.connErr)
	}
	return status.New(codes.Unavailable, "the connection is closing")
}

func (t *http2Client) closeStream(cs *ClientStream, st *status.Status, trailer metadata.MD) {
	if cs.closed {
		return
	}
	cs.closed = true
	cs.state = StreamClosed
	if cs.cb.OnClose != nil {
		cs.cb.OnClose(st, trailer)
	}
}

func (t *http2Client) handleStreamError(cs *ClientStream, err error) {
	if cs.state == StreamClosed {
		return
	}
	if cs.id != 0 {
		if _, ok := t.activeStreams[cs.id]; ok {
			delete(t.activeStreams, cs.id)
			t.quota.Release(1)
			errCh := t.framer.WriteRSTStream(cs.id, http2.ErrCodeInternal)
			go t.drain(errCh)
		}
	}
	t.closeStream(cs, status.FromThrowable(err), nil)
	t.admit()
}

// HandleHeaders routes an inbound HEADERS frame (spec §4.4).
func (t *http2Client) HandleHeaders(streamID uint32, hf []hpack.HeaderField, endStream bool) {
	t.ctx.TrySchedule(func(context.Context) {
		cs, ok := t.activeStreams[streamID]
		if !ok {
			return
		}
		md, err := imetadata.FromWire(hf)
		if err != nil {
			t.handleStreamError(cs, err)
			return
		}
		if cs.state == StreamHeadersSent {
			cs.state = StreamOpen
			if cs.cb.OnHeaders != nil {
				cs.cb.OnHeaders(md)
			}
		}
		if endStream {
			t.finishStream(cs, md)
		}
	})
}

// HandleData routes an inbound DATA frame (spec §4.4/§4.2).
func (t *http2Client) HandleData(streamID uint32, p []byte, endStream bool) {
	t.ctx.TrySchedule(func(context.Context) {
		cs, ok := t.activeStreams[streamID]
		if !ok {
			return
		}
		if cs.cb.OnData != nil {
			cs.cb.OnData(p, endStream)
		}
		if endStream {
			cs.state = StreamHalfClosedRemote
		}
	})
}

// HandleRSTStream routes an inbound RST_STREAM frame. Per spec §9 open
// questions, errorCode is deliberately not inspected: every RST_STREAM
// reports UNKNOWN with empty trailers, matching the source's behavior
// rather than "fixing" it with a richer HTTP/2-to-gRPC code mapping.
func (t *http2Client) HandleRSTStream(streamID uint32, errorCode http2.ErrCode) {
	_ = errorCode
	t.ctx.TrySchedule(func(context.Context) {
		cs, ok := t.activeStreams[streamID]
		if !ok {
			return
		}
		delete(t.activeStreams, streamID)
		t.quota.Release(1)
		t.closeStream(cs, status.New(codes.Unknown, "stream reset by peer"), metadata.MD{})
		t.admit()
	})
}

// HandleGoAway routes an inbound (or locally originated) GOAWAY: all
// pending streams fail, and every active stream whose id exceeds
// lastStreamID is closed with the goaway-status (spec §4.4).
func (t *http2Client) HandleGoAway(lastStreamID uint32, connErr error) {
	t.ctx.TrySchedule(func(context.Context) {
		if connErr != nil && t.connErr == nil {
			t.connErr = connErr
		}
		t.goAway = true
		t.goAwayLastStreamID = lastStreamID
		st := t.goAwayStatus()
		t.failAllPending(st)
		for id, cs := range t.activeStreams {
			if id > lastStreamID {
				delete(t.activeStreams, id)
				t.quota.Release(1)
				t.closeStream(cs, st, nil)
			}
		}
	})
}

// HandleConnectionError records err as the connection_error (if one
// isn't already recorded) and tears down every stream with the
// resulting goaway-status (spec §4.4, §7).
func (t *http2Client) HandleConnectionError(err error) {
	t.ctx.TrySchedule(func(context.Context) {
		if t.connErr == nil {
			t.connErr = err
		}
		t.teardown(t.goAwayStatus())
	})
}

// HandleConnectionInactive tears down the transport the same way a
// connection error would, but without a specific cause (spec §4.4
// "Channel/connection inactive").
func (t *http2Client) HandleConnectionInactive() {
	t.ctx.TrySchedule(func(context.Context) { t.teardown(t.goAwayStatus()) })
}

func (t *http2Client) teardown(st *status.Status) {
	if t.closed {
		return
	}
	t.closed = true
	t.failAllPending(st)
	for id, cs := range t.activeStreams {
		delete(t.activeStreams, id)
		t.closeStream(cs, st, nil)
	}
}

// HandleSettings updates the peer's MAX_CONCURRENT_STREAMS and retries
// admission. The quota semaphore is rebuilt at the new size and
// re-acquired for every already-active stream, preserving the invariant
// that outstanding permits equal len(activeStreams).
func (t *http2Client) HandleSettings(maxConcurrentStreams uint32) {
	t.ctx.TrySchedule(func(context.Context) {
		t.maxConcurrentStreams = maxConcurrentStreams
		t.quota = semaphore.NewWeighted(int64(maxConcurrentStreams))
		for range t.activeStreams {
			t.quota.TryAcquire(1)
		}
		t.admit()
	})
}

// ReturnProcessedBytes implements the return-flow-control side operation
// of spec §4.4.
func (t *http2Client) ReturnProcessedBytes(streamID uint32, n int) {
	t.ctx.TrySchedule(func(context.Context) {
		if _, ok := t.activeStreams[streamID]; !ok {
			logger.Warningf("transport %s: return_processed_bytes for unknown stream %d", t.id, streamID)
			return
		}
		if t.flowCtl != nil {
			t.flowCtl.ReturnBytes(streamID, n)
		}
	})
}

// Close tears down the transport and stops its I/O context. Safe to
// call more than once.
func (t *http2Client) Close() {
	t.closeOnce.Do(func() {
		t.ctx.TrySchedule(func(context.Context) { t.teardown(status.New(codes.Unavailable, "transport closed")) })
		t.cancel()
	})
}

func (t *http2Client) finishStream(cs *ClientStream, md metadata.MD) {
	st := statusFromTrailers(md)
	if cs.id != 0 {
		delete(t.activeStreams, cs.id)
		t.quota.Release(1)
	}
	t.closeStream(cs, st, md)
	t.admit()
}

func statusFromTrailers(md metadata.MD) *status.Status {
	code := codes.Unknown
	if vs := md.Get("grpc-status"); len(vs) > 0 {
		if n, err := strconv.Atoi(vs[0]); err == nil && n >= int(codes.OK) && n <= int(codes.Unauthenticated) {
			code = codes.Code(n)
		} else {
			logger.Warningf("transport: unrecognized grpc-status %q, reporting UNKNOWN", vs[0])
		}
	}
	msg := ""
	if vs := md.Get("grpc-message"); len(vs) > 0 {
		msg = vs[0]
	}
	return status.New(code, msg)
}

func (t *http2Client) awaitWrite(errCh <-chan error, cs *ClientStream) {
	if err := <-errCh; err != nil {
		t.ctx.TrySchedule(func(context.Context) { t.handleStreamError(cs, err) })
	}
}

func (t *http2Client) drain(errCh <-chan error) { <-errCh }
