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

// Package status implements errors returned by gRPC core. Each error
// carries a canonical code, a message, and an optional cause; there is no
// Details payload.
//
// Unlike the upstream package this one is forked from, Status here is a
// plain (code, message, cause) triple rather than a protobuf message: the
// marshaller that would serialize a richer status.Details payload is a
// named-but-unspecified collaborator, not part of this core.
package status

import (
	"errors"
	"fmt"

	"github.com/coregrpc/grpccore/codes"
)

// Status represents an RPC status code, message, and unexported details.
// It is immutable and should be created with New, Newf, or FromError.
type Status struct {
	code    codes.Code
	message string
	cause   error
}

// New returns a Status representing c and msg.
func New(c codes.Code, msg string) *Status {
	return &Status{code: c, message: msg}
}

// Newf returns New(c, fmt.Sprintf(format, a...)).
func Newf(c codes.Code, format string, a ...any) *Status {
	return New(c, fmt.Sprintf(format, a...))
}

// FromProto is retained for API parity with callers migrating off a
// protobuf-backed status; it is the identity function here since there is
// no proto form to unpack.
func FromProto(s *Status) *Status {
	if s == nil {
		return New(codes.OK, "")
	}
	return s
}

// FromCause wraps an underlying error as the cause of a Status, preserving
// it for unwrapping via errors.Is/errors.As and for Status.Cause.
func FromCause(c codes.Code, msg string, cause error) *Status {
	return &Status{code: c, message: msg, cause: cause}
}

// Code returns the status code contained in s.
func (s *Status) Code() codes.Code {
	if s == nil {
		return codes.OK
	}
	return s.code
}

// Message returns the message contained in s.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.message
}

// Cause returns the underlying error that produced s, if any.
func (s *Status) Cause() error {
	if s == nil {
		return nil
	}
	return s.cause
}

// Err returns an immutable error representing s; returns nil if s.Code() is
// OK.
func (s *Status) Err() error {
	if s.Code() == codes.OK {
		return nil
	}
	return &Error{s: s}
}

// Equal reports whether s and o represent the same code and message.
func (s *Status) Equal(o *Status) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.code == o.code && s.message == o.message
}

func (s *Status) String() string {
	return fmt.Sprintf("rpc error: code = %s desc = %s", s.Code(), s.Message())
}

// Override implements the DATA MODEL invariant from spec §3: OK never
// overrides, and never is overridden by, a non-OK status.
//
//	s.Override(o) == s  if s.Code() == OK || o.Code() == OK
//	s.Override(o) == o  otherwise
func (s *Status) Override(o *Status) *Status {
	if s.Code() == codes.OK || o.Code() == codes.OK {
		return s
	}
	return o
}

// Error wraps a Status to satisfy the error interface.
type Error struct {
	s *Status
}

func (e *Error) Error() string {
	return e.s.String()
}

// GRPCStatus returns the Status represented by e.
func (e *Error) GRPCStatus() *Status {
	return e.s
}

// Unwrap returns the cause recorded on the underlying Status, if any, so
// that errors.Is/errors.As can walk through a Status-wrapped error.
func (e *Error) Unwrap() error {
	return e.s.cause
}

// FromError returns a Status representing err if it was produced by this
// package or wraps one in its error chain; otherwise ok is false and a new
// Status is created with codes.Unknown and err's Error() message. If err is
// nil, a Status with codes.OK is returned and ok is true.
func FromError(err error) (s *Status, ok bool) {
	if err == nil {
		return New(codes.OK, ""), true
	}
	type grpcstatus interface{ GRPCStatus() *Status }
	var gs grpcstatus
	if errors.As(err, &gs) {
		grpcStatus := gs.GRPCStatus()
		if grpcStatus == nil {
			// Error has status nil, which maps to codes.OK. There
			// is no sensible behavior for Code, so we set it to
			// codes.Unknown and set the error message to be the
			// original error message.
			return New(codes.Unknown, err.Error()), false
		}
		return grpcStatus, true
	}
	return New(codes.Unknown, err.Error()), false
}

// FromThrowable walks err's cause chain (via errors.As on the GRPCStatus
// interface, the portable analog of the source's tagged "operation
// failure" exception) and returns the first embedded Status found; if none
// is found, returns New(codes.Internal, ...) wrapping err as the cause, per
// spec §4.1 Status.from_throwable.
func FromThrowable(err error) *Status {
	if err == nil {
		return New(codes.OK, "")
	}
	if s, ok := FromError(err); ok {
		return s
	}
	return FromCause(codes.Internal, err.Error(), err)
}
