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

package resolver

// Address carries a *attributes.Attributes pointer, so Go's native map
// equality (pointer identity) doesn't match Address.Equal's structural
// comparison: a resolver that re-emits the same logical address with a
// freshly allocated, structurally-identical Attributes value would be
// treated as a brand new key by a plain map[Address]V. AddressMap buckets
// by the cheap-to-hash identity fields (Addr, ServerName) and resolves
// collisions, including the Attributes comparison, via Address.Equal.

type addressMapEntry struct {
	addr  Address
	value any
}

// AddressMap is a map-like collection of Addresses to arbitrary values,
// keyed by Address.Equal rather than Go's native map identity.
type AddressMap struct {
	m map[string][]addressMapEntry
}

// NewAddressMap creates a new AddressMap.
func NewAddressMap() *AddressMap {
	return &AddressMap{m: make(map[string][]addressMapEntry)}
}

// bucketKey returns the hash bucket key for addr: the cheap, comparable
// fields of its identity. Attributes are deliberately excluded from the
// bucket key (they aren't comparable) and are instead checked via
// Address.Equal when resolving collisions within a bucket.
func bucketKey(addr Address) string {
	return addr.Addr + "\x00" + addr.ServerName
}

func (am *AddressMap) find(addr Address) (key string, idx int) {
	key = bucketKey(addr)
	for i, entry := range am.m[key] {
		if entry.addr.Equal(addr) {
			return key, i
		}
	}
	return key, -1
}

// Get returns the value stored for addr, if any.
func (am *AddressMap) Get(addr Address) (value any, ok bool) {
	key, idx := am.find(addr)
	if idx == -1 {
		return nil, false
	}
	return am.m[key][idx].value, true
}

// Set sets the value for addr, overwriting any previous value.
func (am *AddressMap) Set(addr Address, value any) {
	key, idx := am.find(addr)
	if idx != -1 {
		am.m[key][idx].value = value
		return
	}
	am.m[key] = append(am.m[key], addressMapEntry{addr: addr, value: value})
}

// Delete removes addr from am, if present.
func (am *AddressMap) Delete(addr Address) {
	key, idx := am.find(addr)
	if idx == -1 {
		return
	}
	entries := am.m[key]
	am.m[key] = append(entries[:idx], entries[idx+1:]...)
	if len(am.m[key]) == 0 {
		delete(am.m, key)
	}
}

// Len returns the number of entries in am.
func (am *AddressMap) Len() int {
	n := 0
	for _, entries := range am.m {
		n += len(entries)
	}
	return n
}

// Keys returns a slice of all addresses currently in am.
func (am *AddressMap) Keys() []Address {
	keys := make([]Address, 0, am.Len())
	for _, entries := range am.m {
		for _, e := range entries {
			keys = append(keys, e.addr)
		}
	}
	return keys
}

// Range calls f for every (address, value) pair in am. f must not modify
// am.
func (am *AddressMap) Range(f func(addr Address, value any)) {
	for _, entries := range am.m {
		for _, e := range entries {
			f(e.addr, e.value)
		}
	}
}
