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

package codes

import "testing"

func TestCodeString(t *testing.T) {
	for str, c := range strToCode {
		want := str[1 : len(str)-1] // strip the surrounding `"` the JSON map keys carry
		if got := c.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", c, got, want)
		}
	}
}

func TestCodeStringOutOfRange(t *testing.T) {
	if got, want := Code(_maxCode).String(), "CODE(17)"; got != want {
		t.Errorf("Code(_maxCode).String() = %q, want %q", got, want)
	}
}
