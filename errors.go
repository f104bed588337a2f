// Copyright 2024 The Rill Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rill

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the error families the evaluator and session loop
// distinguish when deciding how to report a failure.
type Kind int

const (
	// KindParse covers grammar errors the parser can't recover from.
	KindParse Kind = iota
	// KindSyscall covers spawn/open/wait failures.
	KindSyscall
	// KindSignal covers kill failures or unexpected signal numbers.
	KindSignal
	// KindRedirection covers malformed redirection requests, e.g. reading
	// input from a stream opened for output.
	KindRedirection
	// KindNotFound covers fg on an unknown job and source on an unreadable
	// file.
	KindNotFound
	// KindArity covers a builtin invoked with the wrong number of arguments.
	KindArity
	// KindEncoding covers non-UTF-8 bytes captured from a command
	// substitution.
	KindEncoding
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindSyscall:
		return "syscall"
	case KindSignal:
		return "signal"
	case KindRedirection:
		return "redirection"
	case KindNotFound:
		return "not found"
	case KindArity:
		return "arity"
	case KindEncoding:
		return "encoding"
	default:
		return "unknown"
	}
}

// Error is a classified, chain-annotated failure. The evaluator prints
// Error values to stderr at statement granularity and keeps the
// session alive; only Exit unwinds the process.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr builds a classified error whose Err is built with
// github.com/pkg/errors, so %+v on Err prints a stack trace rooted at
// the call site. The *Error itself formats only through Error(), so
// %+v on it prints no trace.
func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

func wrapErr(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Err: errors.Wrap(cause, msg)}
}

// Interrupted is returned by JobTable.WaitFG when the foreground
// process was torn down by SIGINT.
var Interrupted = newErr(KindSignal, "Interrupted")

// Exit is the one error kind the session loop does not catch: it
// unwinds straight out of the evaluator to terminate the process.
type Exit struct {
	Code int
}

func (e *Exit) Error() string { return fmt.Sprintf("exit(%d)", e.Code) }

// AsExit reports whether err is (or wraps) an *Exit, the only failure
// the session loop lets unwind past statement granularity.
func AsExit(err error) (*Exit, bool) {
	var exitErr *Exit
	if errors.As(err, &exitErr) {
		return exitErr, true
	}
	return nil, false
}
