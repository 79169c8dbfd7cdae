/*
 *
 * Copyright 2023 gRPC authors.
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

// Package metadata implements the header codec contract of spec §4.1: the
// translation between metadata.MD and the ordered (key, value) byte pairs
// that travel on an HTTP/2 HEADERS frame.
package metadata

import (
	"encoding/base64"
	"strings"

	"golang.org/x/net/http2/hpack"

	"github.com/coregrpc/grpccore/internal/grpclog"
	"github.com/coregrpc/grpccore/metadata"
)

// BinHdrSuffix is the reserved suffix that marks a metadata key as
// carrying opaque binary data rather than printable-ASCII text.
const BinHdrSuffix = "-bin"

var logger = grpclog.Component("metadata")

// IsBinary reports whether key (case preserved) is a binary header key.
func IsBinary(key string) bool {
	return len(key) >= len(BinHdrSuffix) && key[len(key)-len(BinHdrSuffix):] == BinHdrSuffix
}

// encodeBinHeader base64-encodes v using the standard (padded) alphabet,
// matching the wire representation real gRPC implementations emit;
// decodeBinHeader accepts both padded and unpadded forms on the way back
// in, per spec §6.
func encodeBinHeader(v []byte) string {
	return base64.StdEncoding.EncodeToString(v)
}

// decodeBinHeader decodes a base64 header value, accepting both the
// padded standard alphabet and the unpadded "raw" alphabet.
func decodeBinHeader(v string) ([]byte, error) {
	if len(v)%4 == 0 {
		// Padded; could still be raw padding-free input of length
		// divisible by 4, in which case StdEncoding still succeeds.
		if b, err := base64.StdEncoding.DecodeString(v); err == nil {
			return b, nil
		}
	}
	return base64.RawStdEncoding.DecodeString(v)
}

// isPrintableASCII reports whether every byte of v is in the printable
// ASCII range 0x20..0x7E, per spec §4.1/§6.
func isPrintableASCII(v string) bool {
	for i := 0; i < len(v); i++ {
		if v[i] < 0x20 || v[i] > 0x7E {
			return false
		}
	}
	return true
}

// ToWire implements to_wire(metadata) from spec §4.1: encodes md into an
// ordered list of (key, value) pairs suitable for writing onto an HTTP/2
// HEADERS frame. Binary keys are base64-encoded; non-binary values must be
// printable ASCII or they are silently dropped after a logged warning.
func ToWire(md metadata.MD) []hpack.HeaderField {
	out := make([]hpack.HeaderField, 0, md.Len())
	for k, vv := range md {
		for _, v := range vv {
			if IsBinary(k) {
				out = append(out, hpack.HeaderField{Name: k, Value: encodeBinHeader([]byte(v))})
				continue
			}
			if !isPrintableASCII(v) {
				logger.Warningf("transport: malformed header value %q for key %q dropped", v, k)
				continue
			}
			out = append(out, hpack.HeaderField{Name: k, Value: v})
		}
	}
	return out
}

// FromWire implements from_wire(pairs) from spec §4.1: decodes an ordered
// list of wire header pairs into metadata.MD. Binary keys are
// base64-decoded; an invalid base64 payload on a binary key is reported to
// the caller rather than silently dropped, since spec §7 maps it to
// codes.Internal on the owning stream.
func FromWire(pairs []hpack.HeaderField) (metadata.MD, error) {
	md := make(metadata.MD, len(pairs))
	for _, f := range pairs {
		key := strings.ToLower(f.Name)
		if IsBinary(key) {
			b, err := decodeBinHeader(f.Value)
			if err != nil {
				return nil, err
			}
			md[key] = append(md[key], string(b))
			continue
		}
		md[key] = append(md[key], f.Value)
	}
	return md, nil
}
