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

// Package grpclog provides the logging used internally by the multiplexer
// and its collaborators. Every component-scoped logger is backed by
// github.com/golang/glog, matching the call-site convention
// (`grpclog.Component("interop")`) found throughout the teacher repo.
package grpclog

import (
	"fmt"

	"github.com/golang/glog"
)

// Logger is the interface used by the components in this module to emit
// diagnostics. It intentionally only exposes the leveled, non-fatal
// methods the core needs: a dropped metadata pair or an unknown status
// code on the wire are warnings, never reasons to exit the process.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Warning(args ...any)
	Warningf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
}

type componentLogger struct {
	prefix string
}

// Component returns a Logger that prefixes every message with
// "[component]", mirroring real grpc-go's grpclog.Component.
func Component(component string) Logger {
	return componentLogger{prefix: fmt.Sprintf("[%s] ", component)}
}

func (c componentLogger) Info(args ...any) {
	glog.InfoDepth(1, c.prefix, fmt.Sprint(args...))
}

func (c componentLogger) Infof(format string, args ...any) {
	glog.InfoDepth(1, c.prefix+fmt.Sprintf(format, args...))
}

func (c componentLogger) Warning(args ...any) {
	glog.WarningDepth(1, c.prefix, fmt.Sprint(args...))
}

func (c componentLogger) Warningf(format string, args ...any) {
	glog.WarningDepth(1, c.prefix+fmt.Sprintf(format, args...))
}

func (c componentLogger) Error(args ...any) {
	glog.ErrorDepth(1, c.prefix, fmt.Sprint(args...))
}

func (c componentLogger) Errorf(format string, args ...any) {
	glog.ErrorDepth(1, c.prefix+fmt.Sprintf(format, args...))
}
