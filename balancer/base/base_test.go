/*
 *
 * Copyright 2020 gRPC authors.
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

package base

import (
	"testing"

	"github.com/coregrpc/grpccore/attributes"
	"github.com/coregrpc/grpccore/balancer"
	"github.com/coregrpc/grpccore/connectivity"
	"github.com/coregrpc/grpccore/resolver"
)

// TestEmptyAddressListReportsResolverError exercises the boundary case of
// spec §8: an empty resolved address list (with no canHandleEmptyAddressList
// opt-in from the picker builder) must surface as a resolver error, not a
// resolved-addresses update, and must not create any SubConn.
func TestEmptyAddressListReportsResolverError(t *testing.T) {
	newSubConnCalled := false
	b := (&baseBuilder{pickerBuilder: &testPickBuilder{validate: func(PickerBuildInfo) {}}}).Build(&testClientConn{
		newSubConn: func(_ []resolver.Address, opts balancer.NewSubConnOptions) (balancer.SubConn, error) {
			newSubConnCalled = true
			return &testSubConn{updateState: opts.StateListener}, nil
		},
	}, balancer.BuildOptions{}).(*baseBalancer)

	err := b.UpdateClientConnState(balancer.ClientConnState{
		ResolverState: resolver.State{Addresses: nil},
	})
	if err != balancer.ErrBadResolverState {
		t.Fatalf("UpdateClientConnState with an empty address list returned %v, want ErrBadResolverState", err)
	}
	if newSubConnCalled {
		t.Fatal("NewSubConn was called for an empty address list")
	}
	if b.resolverErr == nil {
		t.Fatal("ResolverError was not recorded for an empty address list")
	}
	if b.state != connectivity.TransientFailure {
		t.Fatalf("aggregate state = %v, want TRANSIENT_FAILURE", b.state)
	}
}

// TestReResolveSameAddressReusesSubConn exercises the subConns lookup
// directly: a later UpdateClientConnState call carrying the same logical
// address, but with a newly allocated (structurally identical) Attributes
// pointer, must reuse the existing SubConn rather than leaking it and
// creating a duplicate.
func TestReResolveSameAddressReusesSubConn(t *testing.T) {
	var newSubConnCalls int
	b := (&baseBuilder{pickerBuilder: &testPickBuilder{validate: func(PickerBuildInfo) {}}}).Build(&testClientConn{
		newSubConn: func(_ []resolver.Address, opts balancer.NewSubConnOptions) (balancer.SubConn, error) {
			newSubConnCalls++
			return &testSubConn{updateState: opts.StateListener}, nil
		},
	}, balancer.BuildOptions{}).(*baseBalancer)

	addr := func() resolver.Address {
		return resolver.Address{Addr: "1.1.1.1", Attributes: attributes.New("foo", "bar")}
	}
	if err := b.UpdateClientConnState(balancer.ClientConnState{
		ResolverState: resolver.State{Addresses: []resolver.Address{addr()}},
	}); err != nil {
		t.Fatalf("first UpdateClientConnState returned %v", err)
	}
	if err := b.UpdateClientConnState(balancer.ClientConnState{
		ResolverState: resolver.State{Addresses: []resolver.Address{addr()}},
	}); err != nil {
		t.Fatalf("second UpdateClientConnState returned %v", err)
	}

	if newSubConnCalls != 1 {
		t.Fatalf("NewSubConn called %d times across two resolutions of the same address, want 1", newSubConnCalls)
	}
	if b.subConns.Len() != 1 {
		t.Fatalf("subConns.Len() = %d, want 1", b.subConns.Len())
	}
}
