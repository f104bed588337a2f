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
	"os"
	"strconv"
	"strings"
)

// varEntry records one tracked Push: the key, and whatever the
// environment held for it immediately before the push (if anything),
// so Drop can restore rather than merely unset a shadowed outer
// value.
type varEntry struct {
	key      string
	hadPrior bool
	prior    string
}

// Vars is the variable scope stack: a flat, ordered
// log of pushes with a parallel stack of mark offsets. The process
// environment is the actual variable store; Vars exists only to make
// scope exit (Drop) precisely undo what a scope added.
type Vars struct {
	entries []varEntry
	marks   []int
}

// NewVars returns an empty scope stack.
func NewVars() *Vars {
	return &Vars{}
}

// Mark opens a new scope at the current log position.
func (v *Vars) Mark() {
	v.marks = append(v.marks, len(v.entries))
}

// Drop closes the most recent scope, restoring or unsetting every
// variable it pushed, most-recent-first so nested shadows of the same
// name unwind correctly.
func (v *Vars) Drop() {
	n := len(v.marks)
	if n == 0 {
		return
	}
	mark := v.marks[n-1]
	v.marks = v.marks[:n-1]
	for i := len(v.entries) - 1; i >= mark; i-- {
		e := v.entries[i]
		if e.hadPrior {
			os.Setenv(e.key, e.prior)
		} else {
			os.Unsetenv(e.key)
		}
	}
	v.entries = v.entries[:mark]
}

// Push sets an environment variable and records whatever value it
// shadows (or its absence) so the enclosing scope's Drop can restore
// it.
func (v *Vars) Push(key, val string) {
	prior, had := os.LookupEnv(key)
	v.entries = append(v.entries, varEntry{key: key, hadPrior: had, prior: prior})
	os.Setenv(key, val)
}

// GPush sets an environment variable with no scope tracking at all;
// the value outlives every enclosing Drop. This backs the `export`
// builtin.
func (v *Vars) GPush(key, val string) {
	os.Setenv(key, val)
}

// SetArgs installs the positional-parameter variables a procedure
// call or `source` invocation sees: `0` (the invoked name), `1..n`
// (args), `#` (count) and `@` (space-joined args).
func (v *Vars) SetArgs(name string, args []string) {
	v.Push("0", name)
	for i, a := range args {
		v.Push(strconv.Itoa(i+1), a)
	}
	v.Push("#", strconv.Itoa(len(args)))
	v.Push("@", strings.Join(args, " "))
}

// Procs is the session-wide, unscoped table of user-defined
// procedures.
type Procs struct {
	byName map[string]*Block
}

// NewProcs returns an empty procedure table.
func NewProcs() *Procs {
	return &Procs{byName: make(map[string]*Block)}
}

// Define installs or replaces a procedure's body.
func (p *Procs) Define(name string, body *Block) {
	p.byName[name] = body
}

// Lookup returns a procedure's body, if one is defined under name.
func (p *Procs) Lookup(name string) (*Block, bool) {
	b, ok := p.byName[name]
	return b, ok
}

// NameSpace composes the scoped variable store with the unscoped
// procedure table; one instance is threaded through an entire
// session.
type NameSpace struct {
	Vars  *Vars
	Procs *Procs
}

// NewNameSpace returns a fresh, empty namespace.
func NewNameSpace() *NameSpace {
	return &NameSpace{Vars: NewVars(), Procs: NewProcs()}
}
