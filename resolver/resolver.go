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

// Package resolver declares the collaborator types a name resolver hands
// to the multiplexer's load-balancing layer. The resolver's internal
// algorithm (DNS lookup, xDS, etc.) is explicitly out of scope (spec §1,
// §6); only the data it produces is specified here.
package resolver

import "github.com/coregrpc/grpccore/attributes"

// Address represents a server the balancer may create a connection to.
type Address struct {
	// Addr is the server address on which a connection will be
	// established.
	Addr string
	// ServerName is the name of this address. If non-empty, the
	// ServerName is used as the transport credentials authority,
	// instead of the hostname from the Dial target string.
	ServerName string
	// Attributes contains arbitrary data about this address intended
	// for consumption by the load-balancing policy.
	Attributes *attributes.Attributes
	// BalancerAttributes contains arbitrary data about this address
	// intended for consumption by the load-balancing policy, but which
	// is not meant to be a part of the address's identity (i.e. it is
	// not used by Equal).
	BalancerAttributes *attributes.Attributes
}

// Equal returns whether a and o are identical, considering only the
// fields that are meant to identify the address (Addr, ServerName,
// Attributes), matching teacher convention (BalancerAttributes is
// balancer-private bookkeeping, not address identity).
func (a Address) Equal(o Address) bool {
	return a.Addr == o.Addr && a.ServerName == o.ServerName && a.Attributes.Equal(o.Attributes)
}

// State contains the current Resolver state relevant to the balancer.
type State struct {
	// Addresses is the latest set of resolved addresses for the target.
	Addresses []Address
	// Attributes contains arbitrary data about the resolved target
	// intended for consumption by the load-balancing policy.
	Attributes *attributes.Attributes
	// ServiceConfig is unspecified by this core; the service-config
	// ingestion path is a named-but-unspecified collaborator.
	ServiceConfig any
}
