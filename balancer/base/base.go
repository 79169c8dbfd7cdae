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

// Package base defines a balancer.Builder that is built with a
// PickerBuilder, aggregating SubConn connectivity state and handing the
// ready set to the PickerBuilder whenever it changes, per spec §4.5.
package base

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coregrpc/grpccore/balancer"
	"github.com/coregrpc/grpccore/connectivity"
	"github.com/coregrpc/grpccore/internal/grpclog"
	"github.com/coregrpc/grpccore/resolver"
	"github.com/coregrpc/grpccore/status"
)

var logger = grpclog.Component("balancer")

// PickerBuildInfo contains information needed by the PickerBuilder to
// build a Picker.
type PickerBuildInfo struct {
	// ReadySCs is a map from all ready SubConns to the corresponding
	// SubConnInfo.
	ReadySCs map[balancer.SubConn]SubConnInfo
}

// SubConnInfo contains information about a SubConn to be used by the
// PickerBuilder.
type SubConnInfo struct {
	// Address is the address used to create this SubConn.
	Address resolver.Address
}

// PickerBuilder creates balancer.Picker.
type PickerBuilder interface {
	// Build returns a picker that will be used by gRPC-core to pick a
	// SubConn.
	Build(info PickerBuildInfo) balancer.Picker
}

// NewBalancerBuilder returns a base balancer builder configured with the
// provided PickerBuilder, usable as a name-registered balancer.Builder.
func NewBalancerBuilder(name string, pb PickerBuilder) balancer.Builder {
	return &baseBuilder{name: name, pickerBuilder: pb}
}

type baseBuilder struct {
	name          string
	pickerBuilder PickerBuilder
}

func (bb *baseBuilder) Build(cc balancer.ClientConn, _ balancer.BuildOptions) balancer.Balancer {
	b := &baseBalancer{
		cc:            cc,
		pickerBuilder: bb.pickerBuilder,
		subConns:      resolver.NewAddressMap(),
		scStates:      make(map[balancer.SubConn]connectivity.State),
		csEvaluator:   &connectivityStateEvaluator{},
		state:         connectivity.Connecting,
	}
	if h, err := pickLatencyMeter.Float64Histogram(
		"grpccore.balancer.pick_latency_seconds",
		metric.WithDescription("Time spent in Picker.Pick, recorded by the built picker's instrumentation."),
	); err == nil {
		b.pickLatency = h
	}
	return b
}

func (bb *baseBuilder) Name() string { return bb.name }

// pickLatencyMeter is the otel meter used to instrument every picker this
// package builds, exercising the otel/metric dependency named in
// SPEC_FULL.md's domain stack.
var pickLatencyMeter = otel.Meter("github.com/coregrpc/grpccore/balancer/base")

// baseBalancer aggregates SubConn connectivity state and asks the
// PickerBuilder for a new Picker whenever the aggregate state changes,
// per spec §4.5.
type baseBalancer struct {
	cc            balancer.ClientConn
	pickerBuilder PickerBuilder

	csEvaluator *connectivityStateEvaluator
	state       connectivity.State
	// subConns maps resolver.Address to balancer.SubConn. A plain Go map
	// would key on pointer identity for the Attributes field; AddressMap
	// keys on Address.Equal's structural comparison instead, so a
	// resolver that re-emits the same logical address with a freshly
	// allocated Attributes value reuses the existing SubConn rather than
	// leaking it and creating a duplicate.
	subConns *resolver.AddressMap
	scStates map[balancer.SubConn]connectivity.State
	picker      balancer.Picker
	resolverErr error
	connErr     error

	pickLatency metric.Float64Histogram
}

func (b *baseBalancer) UpdateClientConnState(s balancer.ClientConnState) error {
	if len(s.ResolverState.Addresses) == 0 {
		b.ResolverError(errors.New("produced zero addresses"))
		return balancer.ErrBadResolverState
	}

	addrsSet := resolver.NewAddressMap()
	for _, a := range s.ResolverState.Addresses {
		addrsSet.Set(a, true)
		if _, ok := b.subConns.Get(a); ok {
			continue
		}
		sc, err := b.cc.NewSubConn([]resolver.Address{a}, balancer.NewSubConnOptions{
			StateListener: func(scs balancer.SubConnState) { b.updateSubConnState(a, scs) },
		})
		if err != nil {
			logger.Warningf("base: failed to create new SubConn for address %v: %v", a, err)
			continue
		}
		b.subConns.Set(a, sc)
		b.scStates[sc] = connectivity.Idle
		sc.Connect()
	}
	for _, a := range b.subConns.Keys() {
		if _, ok := addrsSet.Get(a); ok {
			continue
		}
		v, _ := b.subConns.Get(a)
		sc := v.(balancer.SubConn)
		sc.Shutdown()
		b.subConns.Delete(a)
		delete(b.scStates, sc)
	}

	b.regeneratePicker()
	b.cc.UpdateState(balancer.State{ConnectivityState: b.state, Picker: b.picker})
	return nil
}

func (b *baseBalancer) ResolverError(err error) {
	b.resolverErr = err
	if b.subConns.Len() == 0 {
		b.state = connectivity.TransientFailure
	}
	if b.state != connectivity.TransientFailure {
		return
	}
	b.regeneratePicker()
	b.cc.UpdateState(balancer.State{ConnectivityState: b.state, Picker: b.picker})
}

func (b *baseBalancer) updateSubConnState(addr resolver.Address, s balancer.SubConnState) {
	v, ok := b.subConns.Get(addr)
	if !ok {
		return
	}
	b.UpdateSubConnState(v.(balancer.SubConn), s)
}

func (b *baseBalancer) UpdateSubConnState(sc balancer.SubConn, s balancer.SubConnState) {
	oldS, ok := b.scStates[sc]
	if !ok {
		return
	}
	if oldS == connectivity.TransientFailure && s.ConnectivityState == connectivity.Connecting {
		return
	}
	b.scStates[sc] = s.ConnectivityState
	switch s.ConnectivityState {
	case connectivity.Idle:
		sc.Connect()
	case connectivity.Shutdown:
		delete(b.scStates, sc)
	case connectivity.TransientFailure:
		b.connErr = s.ConnectionError
	}

	b.state = b.csEvaluator.recordTransition(oldS, s.ConnectivityState)

	if b.state == connectivity.TransientFailure ||
		s.ConnectivityState == connectivity.TransientFailure ||
		s.ConnectivityState == connectivity.Ready {
		b.regeneratePicker()
	}
	b.cc.UpdateState(balancer.State{ConnectivityState: b.state, Picker: b.picker})
}

// regeneratePicker builds the current ready set and hands it to the
// PickerBuilder, publishing a fresh Picker. Any RPC previously buffered
// on a NoResult pick only sees the new Picker once the caller's
// subsequent UpdateState call completes, per spec §5.
func (b *baseBalancer) regeneratePicker() {
	if b.state == connectivity.TransientFailure {
		b.picker = &errPicker{err: b.mergeErrors()}
		return
	}
	readySCs := make(map[balancer.SubConn]SubConnInfo)
	b.subConns.Range(func(addr resolver.Address, v any) {
		sc := v.(balancer.SubConn)
		if st, ok := b.scStates[sc]; ok && st == connectivity.Ready {
			readySCs[sc] = SubConnInfo{Address: addr}
		}
	})
	picker := b.pickerBuilder.Build(PickerBuildInfo{ReadySCs: readySCs})
	if b.pickLatency != nil {
		picker = &instrumentedPicker{picker: picker, hist: b.pickLatency}
	}
	b.picker = picker
}

func (b *baseBalancer) mergeErrors() error {
	connErr, resolverErr := errString(b.connErr), errString(b.resolverErr)
	if b.connErr == nil {
		return errors.New("last resolver error: " + resolverErr)
	}
	if b.resolverErr == nil {
		return errors.New("last connection error: " + connErr)
	}
	return errors.New("last connection error: " + connErr + "; last resolver error: " + resolverErr)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

func (b *baseBalancer) Close() {}

func (b *baseBalancer) ExitIdle() {
	b.subConns.Range(func(_ resolver.Address, v any) {
		sc := v.(balancer.SubConn)
		if s, ok := b.scStates[sc]; ok && s == connectivity.Idle {
			sc.Connect()
		}
	})
}

// connectivityStateEvaluator takes the connectivity states of multiple
// SubConns and returns one aggregated connectivity state, following the
// priority order READY > CONNECTING > TRANSIENT_FAILURE > IDLE.
type connectivityStateEvaluator struct {
	numReady            uint64
	numConnecting       uint64
	numTransientFailure uint64
}

func (cse *connectivityStateEvaluator) recordTransition(oldState, newState connectivity.State) connectivity.State {
	update := func(s connectivity.State, delta int) {
		switch s {
		case connectivity.Ready:
			cse.numReady += uint64(delta)
		case connectivity.Connecting:
			cse.numConnecting += uint64(delta)
		case connectivity.TransientFailure:
			cse.numTransientFailure += uint64(delta)
		}
	}
	update(oldState, -1)
	update(newState, 1)

	switch {
	case cse.numReady > 0:
		return connectivity.Ready
	case cse.numConnecting > 0:
		return connectivity.Connecting
	case cse.numTransientFailure > 0:
		return connectivity.TransientFailure
	default:
		return connectivity.Idle
	}
}

// errPicker fails every pick with err, used while the balancer is in
// TRANSIENT_FAILURE.
type errPicker struct {
	err error
}

func (p *errPicker) Pick(balancer.PickInfo) balancer.PickResult {
	return balancer.ErrorResult(status.Convert(p.err))
}

// instrumentedPicker wraps a built Picker with a pick-latency recording,
// exercising the otel/metric dependency named in SPEC_FULL.md's domain
// stack.
type instrumentedPicker struct {
	picker balancer.Picker
	hist   metric.Float64Histogram
}

func (p *instrumentedPicker) Pick(info balancer.PickInfo) balancer.PickResult {
	if p.picker == nil {
		return balancer.NoResultPick()
	}
	start := time.Now()
	res := p.picker.Pick(info)
	p.hist.Record(info.Ctx, time.Since(start).Seconds())
	return res
}
