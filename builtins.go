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
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// builtins is the dispatch table: "" (an entirely
// empty command name, e.g. from a bare `""`), exit, cd, fg, jobs,
// let, export, source.
var builtins map[string]func(*Evaluator, []Arg) error

func init() {
	builtins = map[string]func(*Evaluator, []Arg) error{
		"":       builtinNoop,
		"exit":   builtinExit,
		"cd":     builtinCd,
		"fg":     builtinFg,
		"jobs":   builtinJobs,
		"let":    builtinLet,
		"export": builtinExport,
		"source": builtinSource,
	}
}

func builtinNoop(ev *Evaluator, args []Arg) error {
	return nil
}

func builtinExit(ev *Evaluator, args []Arg) error {
	tokens, err := ev.expandArgs(args)
	if err != nil {
		return err
	}
	if len(tokens) > 1 {
		return newErr(KindArity, "usage: exit [code]")
	}
	code := 0
	if len(tokens) == 1 {
		n, cerr := strconv.Atoi(tokens[0])
		if cerr != nil {
			return newErr(KindArity, "exit: invalid code %q", tokens[0])
		}
		code = n
	}
	return &Exit{Code: code}
}

func builtinCd(ev *Evaluator, args []Arg) error {
	tokens, err := ev.expandArgs(args)
	if err != nil {
		return err
	}
	if len(tokens) > 1 {
		return newErr(KindArity, "usage: cd [path]")
	}
	path := os.Getenv("HOME")
	if len(tokens) == 1 {
		path = tokens[0]
	}
	if cerr := os.Chdir(path); cerr != nil {
		return wrapErr(KindSyscall, cerr, "chdir")
	}
	return nil
}

func builtinFg(ev *Evaluator, args []Arg) error {
	tokens, err := ev.expandArgs(args)
	if err != nil {
		return err
	}
	if len(tokens) != 1 {
		return newErr(KindArity, "usage: fg <id-or-pid>")
	}
	id, err := resolveJobArg(ev, tokens[0])
	if err != nil {
		return err
	}
	return ev.Jobs.WithErr(func(jt *JobTable) error { return jt.MoveToFG(id) })
}

// resolveJobArg accepts either a `%id` job reference or a bare pid.
func resolveJobArg(ev *Evaluator, tok string) (int, error) {
	if strings.HasPrefix(tok, "%") {
		n, err := strconv.Atoi(tok[1:])
		if err != nil {
			return 0, newErr(KindParse, "invalid job id %q", tok)
		}
		return n, nil
	}
	pid, err := strconv.Atoi(tok)
	if err != nil {
		return 0, newErr(KindParse, "invalid pid %q", tok)
	}
	var id int
	var ok bool
	ev.Jobs.With(func(jt *JobTable) { id, ok = jt.FromPid(pid) })
	if !ok {
		return 0, newErr(KindNotFound, "no job with pid %d", pid)
	}
	return id, nil
}

func builtinJobs(ev *Evaluator, args []Arg) error {
	var entries []JobEntry
	ev.Jobs.With(func(jt *JobTable) { entries = jt.Snapshot() })
	for _, e := range entries {
		state := "running"
		if e.Suspended {
			state = "suspended"
		}
		label := "fg"
		if e.ID != 0 {
			label = fmt.Sprintf("%%%d", e.ID)
		}
		log.WithFields(logrus.Fields{
			"job_id": label,
			"pid":    e.Pid,
			"state":  state,
		}).Info("job")
	}
	return nil
}

// builtinLet and builtinExport both expect exactly the three tokens
// `NAME = VALUE`; the grammar has no assignment operator of its own,
// so `=` arrives as an ordinary word.
func builtinLet(ev *Evaluator, args []Arg) error {
	tokens, err := ev.expandArgs(args)
	if err != nil {
		return err
	}
	if len(tokens) != 3 || tokens[1] != "=" {
		return newErr(KindArity, "usage: let NAME = VALUE")
	}
	ev.NS.Vars.Push(tokens[0], tokens[2])
	return nil
}

func builtinExport(ev *Evaluator, args []Arg) error {
	tokens, err := ev.expandArgs(args)
	if err != nil {
		return err
	}
	if len(tokens) != 3 || tokens[1] != "=" {
		return newErr(KindArity, "usage: export NAME = VALUE")
	}
	ev.NS.Vars.GPush(tokens[0], tokens[2])
	return nil
}

func builtinSource(ev *Evaluator, args []Arg) error {
	tokens, err := ev.expandArgs(args)
	if err != nil {
		return err
	}
	if len(tokens) < 1 {
		return newErr(KindArity, "usage: source FILE [args...]")
	}
	path := tokens[0]
	f, oerr := os.Open(path)
	if oerr != nil {
		return wrapErr(KindNotFound, oerr, "source "+path)
	}
	defer f.Close()

	reader := NewScriptReader(f)
	ev.NS.Vars.Mark()
	defer ev.NS.Vars.Drop()
	ev.NS.Vars.SetArgs(path, tokens[1:])
	return evalAll(ev, reader)
}
