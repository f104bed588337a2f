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
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
)

// Reader is the line-source contract the session loop consumes: a
// session only needs these three operations, so script mode and
// interactive mode can share the evaluator and session loop
// entirely.
type Reader interface {
	// Init runs once, before the first NextLine, with a handle to the
	// session's job table. Both readers in this package ignore it.
	Init(jobs *SharedJobs)
	// NextLine reads one top-level line. ok is false on EOF.
	NextLine() (string, bool)
	// MoreLine reads a continuation line for a statement the parser
	// reported as incomplete. ok is false on EOF.
	MoreLine() (string, bool)
}

// InteractiveReader wraps github.com/chzyer/readline for a human at a
// terminal.
type InteractiveReader struct {
	rl *readline.Instance
}

// NewInteractiveReader starts a readline instance with the primary
// prompt.
func NewInteractiveReader() (*InteractiveReader, error) {
	rl, err := readline.New("rill> ")
	if err != nil {
		return nil, wrapErr(KindSyscall, err, "init readline")
	}
	return &InteractiveReader{rl: rl}, nil
}

func (r *InteractiveReader) Init(jobs *SharedJobs) {}

func (r *InteractiveReader) NextLine() (string, bool) {
	return r.readWithPrompt("rill> ")
}

func (r *InteractiveReader) MoreLine() (string, bool) {
	return r.readWithPrompt("...> ")
}

func (r *InteractiveReader) readWithPrompt(prompt string) (string, bool) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	switch err {
	case nil:
		return line, true
	case readline.ErrInterrupt:
		// A keyboard interrupt at the prompt clears the current line
		// rather than ending the session.
		return "", true
	case io.EOF:
		return "", false
	default:
		fmt.Fprintf(os.Stderr, "Readline Error: %v\n", err)
		return "", true
	}
}

// Close releases the underlying terminal state.
func (r *InteractiveReader) Close() error {
	return r.rl.Close()
}

// ScriptReader reads line-oriented source from any io.Reader (a
// script file, or text piped via `-c`/stdin), with no prompting.
type ScriptReader struct {
	sc *bufio.Scanner
}

// NewScriptReader wraps r in a line scanner.
func NewScriptReader(r io.Reader) *ScriptReader {
	return &ScriptReader{sc: bufio.NewScanner(r)}
}

func (r *ScriptReader) Init(jobs *SharedJobs) {}

func (r *ScriptReader) NextLine() (string, bool) {
	if !r.sc.Scan() {
		return "", false
	}
	return r.sc.Text(), true
}

func (r *ScriptReader) MoreLine() (string, bool) {
	return r.NextLine()
}
