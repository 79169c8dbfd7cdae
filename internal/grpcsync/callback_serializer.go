/*
 *
 * Copyright 2022 gRPC authors.
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

package grpcsync

import (
	"context"
	"sync"

	"github.com/coregrpc/grpccore/internal/grpclog"
)

var logger = grpclog.Component("grpcsync")

// CallbackSerializer provides a mechanism to schedule callbacks in a
// synchronized manner. It is the portable Synchronization Context of spec
// §4.6/§7: callbacks run one at a time, in submission order, on a single
// goroutine; a callback scheduled from within a running callback is
// deferred rather than recursed into; a panicking callback is reported
// out-of-band and does not stop the serializer.
type CallbackSerializer struct {
	done chan struct{}

	mu     sync.Mutex
	queue  []func(context.Context)
	notify chan struct{}
	closed bool
}

// NewCallbackSerializer returns a new CallbackSerializer. Once the
// provided context is cancelled, entries already scheduled on the
// CallbackSerializer are run to completion, but no new callbacks will be
// added to it. Use Done() to know when the serializer has stopped
// processing and will no longer run any more callbacks.
func NewCallbackSerializer(ctx context.Context) *CallbackSerializer {
	cs := &CallbackSerializer{
		done:   make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
	go cs.run(ctx)
	return cs
}

// TrySchedule attempts to schedule the provided callback function f to be
// executed in the order it was scheduled relative to other callbacks. If
// the serializer is closed, TrySchedule performs a no-op and returns
// false.
func (cs *CallbackSerializer) TrySchedule(f func(ctx context.Context)) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return false
	}
	cs.queue = append(cs.queue, f)
	select {
	case cs.notify <- struct{}{}:
	default:
	}
	return true
}

// ScheduleOr schedules the provided callback. If successful, it returns
// true. If the serializer is closed, the onFailedSchedule callback is run
// inline instead, and ScheduleOr returns false.
func (cs *CallbackSerializer) ScheduleOr(f func(ctx context.Context), onFailedSchedule func()) bool {
	if cs.TrySchedule(f) {
		return true
	}
	onFailedSchedule()
	return false
}

// Done returns a channel that is closed after the context passed to
// NewCallbackSerializer is cancelled and all callbacks scheduled prior
// have finished executing.
func (cs *CallbackSerializer) Done() <-chan struct{} {
	return cs.done
}

func (cs *CallbackSerializer) run(ctx context.Context) {
	defer close(cs.done)
	for {
		select {
		case <-ctx.Done():
			cs.close()
			cs.drain(ctx)
			return
		case <-cs.notify:
			cs.drain(ctx)
		}
	}
}

func (cs *CallbackSerializer) close() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.closed = true
}

// drain runs every callback currently queued, including callbacks
// appended by an earlier callback in the same drain (re-entrant
// scheduling never recurses: it is always picked up by this loop, one
// goroutine stack frame deep).
func (cs *CallbackSerializer) drain(ctx context.Context) {
	for {
		cs.mu.Lock()
		if len(cs.queue) == 0 {
			cs.mu.Unlock()
			return
		}
		f := cs.queue[0]
		cs.queue = cs.queue[1:]
		cs.mu.Unlock()
		cs.runOne(ctx, f)
	}
}

func (cs *CallbackSerializer) runOne(ctx context.Context, f func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("grpcsync: callback panic: %v", r)
		}
	}()
	f(ctx)
}
