/*
 *
 * Copyright 2019 gRPC authors.
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

// Package attributes defines a generic key/value store used in various
// gRPC-core data structures (resolver.Address, Subchannel) to attach
// opaque, type-identified data, per spec §3/§6.
package attributes

import "fmt"

// Attributes is an immutable struct for storing and retrieving generic
// key/value pairs. Keys are compared as Go map keys, by both dynamic type
// and value, so a lookup only matches a key of the same concrete type.
type Attributes struct {
	m map[any]any
}

// New returns a new Attributes containing the key/value pair.
func New(kvs ...any) *Attributes {
	if len(kvs)%2 != 0 {
		panic(fmt.Sprintf("attributes.New called with unpaired kvs: %v", kvs))
	}
	a := &Attributes{m: make(map[any]any, len(kvs)/2)}
	for i := 0; i < len(kvs); i += 2 {
		a.m[kvs[i]] = kvs[i+1]
	}
	return a
}

// WithValue returns a new Attributes containing the existing key/value
// pairs plus the new key/value pair. The original Attributes is not
// modified; this matches the immutability of everything else this core
// hands out across goroutines (spec §5).
func (a *Attributes) WithValue(key, value any) *Attributes {
	if a == nil {
		return New(key, value)
	}
	n := &Attributes{m: make(map[any]any, len(a.m)+1)}
	for k, v := range a.m {
		n.m[k] = v
	}
	n.m[key] = value
	return n
}

// Value returns the value associated with these Attributes for key, or
// nil if no value is associated with key.
func (a *Attributes) Value(key any) any {
	if a == nil {
		return nil
	}
	return a.m[key]
}

// Equal returns whether a and o are equivalent. Equality is defined as
// both having the same set of keys, and for each key, the values compare
// equal if they implement an Equal(any) bool method, else via ==.
func (a *Attributes) Equal(o *Attributes) bool {
	if a == nil && o == nil {
		return true
	}
	if a == nil || o == nil {
		return false
	}
	if len(a.m) != len(o.m) {
		return false
	}
	for k, v := range a.m {
		ov, ok := o.m[k]
		if !ok {
			return false
		}
		type equalizer interface{ Equal(any) bool }
		if eq, ok := v.(equalizer); ok {
			if !eq.Equal(ov) {
				return false
			}
			continue
		}
		if v != ov {
			return false
		}
	}
	return true
}

func (a *Attributes) String() string {
	if a == nil {
		return "Attributes{}"
	}
	return fmt.Sprintf("Attributes{%v}", a.m)
}
