/*
 *
 * Copyright 2017 gRPC authors.
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

// Package connectivity defines connectivity semantics. For details, see
// https://github.com/grpc/grpc/blob/master/doc/connectivity-semantics-and-api.md
package connectivity

// State indicates the state of connectivity, one of the values in the
// subchannel lifecycle of spec §3: IDLE -> CONNECTING -> READY ->
// (IDLE|TRANSIENT_FAILURE) -> SHUTDOWN, with SHUTDOWN terminal.
type State int

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connecting:
		return "CONNECTING"
	case Ready:
		return "READY"
	case TransientFailure:
		return "TRANSIENT_FAILURE"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return "INVALID_STATE"
	}
}

const (
	// Idle indicates the ClientConn/Subchannel is idle.
	Idle State = iota
	// Connecting indicates the ClientConn/Subchannel is connecting.
	Connecting
	// Ready indicates the ClientConn/Subchannel is ready for work.
	Ready
	// TransientFailure indicates the ClientConn/Subchannel has seen a
	// failure but expects to recover.
	TransientFailure
	// Shutdown indicates the ClientConn/Subchannel has started shutting
	// down. This is a terminal state.
	Shutdown
)
