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

// Command rill is an interactive Unix-like shell: a lexer/parser, an
// evaluator with lexically scoped variables and user-defined
// procedures, and a job-control runtime layered over POSIX process
// primitives.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rill-sh/rill"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// fatalf reports a startup failure and exits 1; it never fires once
// the session loop is running,
// since that loop swallows every non-Exit error itself.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "rill: fatal: ")
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	os.Exit(1)
}

// run implements the three command-line shapes: no args
// (interactive), `-c CMD` (inline one-liner; any further args become
// its positional parameters),
// or a positional script path plus its own args (handled by the
// `source` builtin's semantics, reused directly).
func run(args []string) int {
	jobs := rill.NewSharedJobs()
	rill.StartSignals(jobs)
	ns := rill.NewNameSpace()
	ev := rill.NewEvaluator(ns, jobs)

	switch {
	case len(args) >= 2 && args[0] == "-c":
		r := rill.NewScriptReader(strings.NewReader(args[1]))
		return runSession(ev, r, "-c", args[2:])

	case len(args) == 0:
		ir, err := rill.NewInteractiveReader()
		if err != nil {
			fatalf("%v", err)
		}
		defer ir.Close()
		return runSession(ev, ir, "rill", nil)

	default:
		f, err := os.Open(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		defer f.Close()
		r := rill.NewScriptReader(f)
		return runSession(ev, r, args[0], args[1:])
	}
}

// runSession drives one Reader to completion and turns its terminal
// *Exit, if any, into the process's exit code; EOF with no exit
// produces code 0.
func runSession(ev *rill.Evaluator, r rill.Reader, name string, scriptArgs []string) int {
	err := rill.EvalAllWithArgs(ev, r, name, scriptArgs)
	if exitErr, ok := rill.AsExit(err); ok {
		return exitErr.Code
	}
	if err != nil {
		fatalf("%v", err)
	}
	return 0
}
