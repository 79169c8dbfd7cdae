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

// Package grpctest provides a framework for running tests that register
// leftover state (goroutines, etc.) with *testing.T.
package grpctest

import (
	"reflect"
	"strings"
	"testing"
)

// Tester is a no-op base suite embedded by test suite types throughout
// this module (`type s struct{ grpctest.Tester }`); embedders may shadow
// Setup/Teardown to add per-suite fixtures.
type Tester struct{}

// Setup is a no-op by default.
func (Tester) Setup(*testing.T) {}

// Teardown is a no-op by default.
func (Tester) Teardown(*testing.T) {}

type setupTeardown interface {
	Setup(t *testing.T)
	Teardown(t *testing.T)
}

// RunSubTests runs all the methods of s named TestXxx as subtests of t,
// calling s.Setup and s.Teardown around each one. This mirrors the fixture
// used throughout the teacher's own _test.go files
// (`grpctest.RunSubTests(t, s{})`).
func RunSubTests(t *testing.T, s setupTeardown) {
	v := reflect.ValueOf(s)
	for i := 0; i < v.NumMethod(); i++ {
		methodName := v.Type().Method(i).Name
		if !strings.HasPrefix(methodName, "Test") {
			continue
		}
		fn, ok := v.Method(i).Interface().(func(*testing.T))
		if !ok {
			continue
		}
		t.Run(methodName, func(t *testing.T) {
			s.Setup(t)
			defer s.Teardown(t)
			fn(t)
		})
	}
}
