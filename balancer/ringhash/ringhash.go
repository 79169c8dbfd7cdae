/*
 *
 * Copyright 2021 gRPC authors.
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

// Package ringhash implements a consistent-hash Picker on top of
// balancer/base, one of the Supplemented Features named in SPEC_FULL.md:
// a request with an affinity key should land on the same SubConn across
// calls as long as the ready set doesn't change, and should only shift
// a small fraction of keys when it does.
package ringhash

import (
	"context"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/coregrpc/grpccore/balancer"
	"github.com/coregrpc/grpccore/balancer/base"
)

// replicationFactor is the number of virtual ring entries created per
// ready SubConn. A higher factor spreads load more evenly across
// SubConns at the cost of a larger ring.
const replicationFactor = 100

type requestHashKey struct{}

// WithRequestHash attaches a request hash to ctx, used as the affinity
// key for ring lookups. Requests that do not carry one fall back to
// hashing their full method name, so calls to the same method still
// cluster, just without per-request affinity.
func WithRequestHash(ctx context.Context, hash uint64) context.Context {
	return context.WithValue(ctx, requestHashKey{}, hash)
}

func requestHashFromContext(ctx context.Context) (uint64, bool) {
	h, ok := ctx.Value(requestHashKey{}).(uint64)
	return h, ok
}

type ringEntry struct {
	hash uint64
	sc   balancer.SubConn
}

// NewPickerBuilder returns a base.PickerBuilder that builds a
// consistent-hash ring over the ready SubConns it's handed.
func NewPickerBuilder() base.PickerBuilder {
	return &pickerBuilder{}
}

type pickerBuilder struct{}

func (*pickerBuilder) Build(info base.PickerBuildInfo) balancer.Picker {
	if len(info.ReadySCs) == 0 {
		return &picker{}
	}
	ring := make([]ringEntry, 0, len(info.ReadySCs)*replicationFactor)
	for sc, scInfo := range info.ReadySCs {
		for i := 0; i < replicationFactor; i++ {
			key := scInfo.Address.Addr + "_" + strconv.Itoa(i)
			ring = append(ring, ringEntry{hash: xxhash.Sum64String(key), sc: sc})
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].hash < ring[j].hash })
	return &picker{ring: ring}
}

// picker picks the SubConn whose ring entry is the first at or after the
// request's hash, wrapping around to the first entry if the hash is
// greater than every entry on the ring.
type picker struct {
	ring []ringEntry
}

func (p *picker) Pick(info balancer.PickInfo) balancer.PickResult {
	if len(p.ring) == 0 {
		return balancer.NoResultPick()
	}
	h, ok := requestHashFromContext(info.Ctx)
	if !ok {
		h = xxhash.Sum64String(info.FullMethodName)
	}
	idx := sort.Search(len(p.ring), func(i int) bool { return p.ring[i].hash >= h })
	if idx == len(p.ring) {
		idx = 0
	}
	return balancer.ProceedResult(p.ring[idx].sc, nil)
}
