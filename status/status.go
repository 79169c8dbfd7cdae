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

// Package status implements errors returned by gRPC core. These errors
// carry a canonical code, a human-readable message, and an optional cause,
// per the DATA MODEL in spec §3. See internal/status for why this type is
// deliberately simpler than upstream's protobuf-backed status.
package status

import (
	"context"
	"errors"

	"github.com/coregrpc/grpccore/codes"
	istatus "github.com/coregrpc/grpccore/internal/status"
)

// Status references internal/status.Status, and contains convenience
// methods for converting to/from the error type used by the gRPC core.
type Status = istatus.Status

// New returns a Status representing c and msg.
func New(c codes.Code, msg string) *Status {
	return istatus.New(c, msg)
}

// Newf returns New(c, fmt.Sprintf(format, a...)).
func Newf(c codes.Code, format string, a ...any) *Status {
	return istatus.Newf(c, format, a...)
}

// Error returns an error representing c and msg. If c is OK, returns nil.
func Error(c codes.Code, msg string) error {
	return New(c, msg).Err()
}

// Errorf returns Error(c, fmt.Sprintf(format, a...)).
func Errorf(c codes.Code, format string, a ...any) error {
	return Newf(c, format, a...).Err()
}

// ErrorProto is retained for API parity; since this fork has no proto
// status representation, it is equivalent to s.Err() for a non-nil s.
func ErrorProto(s *Status) error {
	return FromProto(s).Err()
}

// FromProto returns a Status representing s.
func FromProto(s *Status) *Status {
	return istatus.FromProto(s)
}

// FromError returns a Status representation of err.
//
//   - If err was produced by this package or wraps a Status (implements
//     GRPCStatus() *Status in its error chain), the appropriate Status is
//     returned.
//
//   - If err is nil, a Status is returned with codes.OK and no message.
//
//   - Otherwise, err is an error not compatible with this package. In this
//     case, a Status is returned with codes.Unknown and err's Error()
//     message, and ok is false.
func FromError(err error) (s *Status, ok bool) {
	return istatus.FromError(err)
}

// Convert is a convenience function which removes the need to handle the
// boolean return value from FromError.
func Convert(err error) *Status {
	s, _ := FromError(err)
	return s
}

// Code returns the Code of the error if it is a Status error or if it
// wraps a Status error. If that is not the case, it returns codes.OK if
// err is nil, or codes.Unknown otherwise.
func Code(err error) codes.Code {
	// Don't use FromError to avoid allocation of OK status.
	if err == nil {
		return codes.OK
	}
	return Convert(err).Code()
}

// FromContextError converts a context error or wrapped context error into
// a Status. It returns a Status with codes.OK if err is nil, or a Status
// with codes.Unknown if err is non-nil and not a context error.
func FromContextError(err error) *Status {
	if err == nil {
		return New(codes.OK, "")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return istatus.FromCause(codes.DeadlineExceeded, err.Error(), err)
	}
	if errors.Is(err, context.Canceled) {
		return istatus.FromCause(codes.Canceled, err.Error(), err)
	}
	return New(codes.Unknown, err.Error())
}

// FromThrowable walks err's cause chain for an embedded Status, per spec
// §4.1 Status.from_throwable; if none is found, wraps err as the cause of
// a new codes.Internal Status.
func FromThrowable(err error) *Status {
	return istatus.FromThrowable(err)
}
