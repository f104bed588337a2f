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
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// Evaluator walks a parsed Block tree against one NameSpace and one
// shared job table. A session owns exactly one Evaluator; `source`
// and procedure calls reuse it with a pushed scope rather than
// constructing their own.
type Evaluator struct {
	NS   *NameSpace
	Jobs *SharedJobs
}

// NewEvaluator wires a namespace to a job table.
func NewEvaluator(ns *NameSpace, jobs *SharedJobs) *Evaluator {
	return &Evaluator{NS: ns, Jobs: jobs}
}

func lastStage(cmd *Command) *Command {
	for cmd.Pipe != nil {
		cmd = cmd.Pipe
	}
	return cmd
}

func flattenPipeline(cmd *Command) []*Command {
	var out []*Command
	for cmd != nil {
		out = append(out, cmd)
		cmd = cmd.Pipe
	}
	return out
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "y", "yes", "true":
		return true
	}
	return false
}

// EvalBlock walks one Block.
func (ev *Evaluator) EvalBlock(b *Block) (FlowState, error) {
	switch b.Kind {
	case BlockSingle:
		if err := ev.runCommandStatement(b.Cmd); err != nil {
			return FlowNormal, err
		}
		return FlowNormal, nil

	case BlockMulti:
		ev.NS.Vars.Mark()
		defer ev.NS.Vars.Drop()
		for _, line := range b.Lines {
			fs, err := ev.EvalBlock(line)
			if err != nil {
				// Statement granularity: a failed statement is
				// reported and the rest of the block still runs.
				// Only exit and a foreground interrupt unwind.
				if _, isExit := AsExit(err); isExit || errors.Is(err, Interrupted) {
					return FlowNormal, err
				}
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if fs != FlowNormal {
				return fs, nil
			}
		}
		return FlowNormal, nil

	case BlockIf:
		cond, err := ev.evalSpecialStr(*b.Cond)
		if err != nil {
			return FlowNormal, err
		}
		if truthy(cond) {
			return ev.EvalBlock(b.Then)
		}
		if b.Else != nil {
			return ev.EvalBlock(b.Else)
		}
		return FlowNormal, nil

	case BlockCase:
		cond, err := ev.evalSpecialStr(*b.CaseCond)
		if err != nil {
			return FlowNormal, err
		}
		for _, br := range b.Branches {
			for _, pat := range br.Pats {
				p, err := ev.evalSpecialStr(pat)
				if err != nil {
					return FlowNormal, err
				}
				if p == cond {
					return ev.EvalBlock(br.Body)
				}
			}
		}
		return FlowNormal, nil

	case BlockFor:
		iterText, err := ev.evalSpecialStr(*b.Iter)
		if err != nil {
			return FlowNormal, err
		}
		ev.NS.Vars.Mark()
		defer ev.NS.Vars.Drop()
		for _, v := range strings.Split(iterText, "\n") {
			ev.NS.Vars.Push(b.Var, v)
			fs, err := ev.EvalBlock(b.Body)
			if err != nil {
				return FlowNormal, err
			}
			if fs == FlowBreak {
				break
			}
		}
		return FlowNormal, nil

	case BlockWhile:
		for {
			cond, err := ev.evalSpecialStr(*b.Cond)
			if err != nil {
				return FlowNormal, err
			}
			if !truthy(cond) {
				break
			}
			fs, err := ev.EvalBlock(b.Body)
			if err != nil {
				return FlowNormal, err
			}
			if fs == FlowBreak {
				break
			}
		}
		return FlowNormal, nil

	case BlockProc:
		ev.NS.Procs.Define(b.ProcName, b.ProcBody)
		return FlowNormal, nil

	case BlockBreak:
		return FlowBreak, nil

	case BlockContinue:
		return FlowContinue, nil
	}
	return FlowNormal, newErr(KindParse, "unknown block kind %d", b.Kind)
}

// evalSpecialStr concatenates a SpecialStr's fragments left to right.
func (ev *Evaluator) evalSpecialStr(s SpecialStr) (string, error) {
	var sb strings.Builder
	for _, f := range s.Frags {
		switch f.Kind {
		case FragLiteral:
			sb.WriteString(f.Text)
		case FragVarRef:
			v, ok := os.LookupEnv(f.Name)
			if !ok {
				return "", newErr(KindNotFound, "unset variable: %s", f.Name)
			}
			sb.WriteString(v)
		case FragCmdSub:
			out, err := ev.captureCommand(f.Cmd)
			if err != nil {
				return "", err
			}
			sb.WriteString(out)
		case FragJobRef:
			var pid int
			var ok bool
			ev.Jobs.With(func(jt *JobTable) { pid, ok = jt.PidOf(f.JobID) })
			if !ok {
				return "", newErr(KindNotFound, "no such job %%%d", f.JobID)
			}
			sb.WriteString(strconv.Itoa(pid))
		}
	}
	return sb.String(), nil
}

// expandArgs resolves a non-redirect Arg list into a flat token list:
// Plain contributes exactly one token, Expand splits its evaluated
// text on whitespace.
func (ev *Evaluator) expandArgs(args []Arg) ([]string, error) {
	var out []string
	for _, a := range args {
		switch a.Kind {
		case ArgPlain:
			s, err := ev.evalSpecialStr(a.Str)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		case ArgExpand:
			s, err := ev.evalSpecialStr(a.Str)
			if err != nil {
				return nil, err
			}
			out = append(out, strings.Fields(s)...)
		case ArgRedirect:
			return nil, newErr(KindRedirection, "redirection is only valid on external commands")
		}
	}
	return out, nil
}

// buildStageArgs resolves one pipeline stage's argv and collects its
// redirections separately, since those two concerns are wired very
// differently downstream (argv to exec.Command, redirects to the
// redirection planner). The stage's name arrives pre-evaluated so the
// dispatch path never runs a substitution in name position twice.
func (ev *Evaluator) buildStageArgs(cmd *Command, name string) (argv []string, reds []Redirect, err error) {
	argv = append(argv, name)
	for _, a := range cmd.Args {
		switch a.Kind {
		case ArgPlain:
			s, err := ev.evalSpecialStr(a.Str)
			if err != nil {
				return nil, nil, err
			}
			argv = append(argv, s)
		case ArgExpand:
			s, err := ev.evalSpecialStr(a.Str)
			if err != nil {
				return nil, nil, err
			}
			argv = append(argv, strings.Fields(s)...)
		case ArgRedirect:
			reds = append(reds, a.Redirect)
		}
	}
	return argv, reds, nil
}

// spawnExternalPipeline resolves every stage of cmd's pipe chain to a
// real executable and spawns them wired together. firstName is the
// first stage's already-evaluated name.
func (ev *Evaluator) spawnExternalPipeline(cmd *Command, firstName string, capture bool) (pid int, captureR *os.File, err error) {
	var stages []stage
	for i, c := range flattenPipeline(cmd) {
		name := firstName
		if i > 0 {
			var nerr error
			name, nerr = ev.evalSpecialStr(c.Name)
			if nerr != nil {
				return 0, nil, nerr
			}
		}
		argv, reds, berr := ev.buildStageArgs(c, name)
		if berr != nil {
			return 0, nil, berr
		}
		path, lerr := exec.LookPath(argv[0])
		if lerr != nil {
			return 0, nil, newErr(KindNotFound, "command not found: %s", argv[0])
		}
		argv[0] = path
		plan, perr := planRedirects(ev, reds)
		if perr != nil {
			return 0, nil, perr
		}
		stages = append(stages, stage{argv: argv, plan: plan})
	}
	return runPipeline(stages, capture)
}

// captureCommand backs command substitution: it runs cmd in capture
// mode, drains its stdout, and reaps the terminal child directly
// since it was never installed into the job table.
func (ev *Evaluator) captureCommand(cmd *Command) (string, error) {
	name, err := ev.evalSpecialStr(cmd.Name)
	if err != nil {
		return "", err
	}
	pid, r, err := ev.spawnExternalPipeline(cmd, name, true)
	if err != nil {
		return "", err
	}
	out, derr := drainCapture(r)
	var ws syscall.WaitStatus
	_, _ = syscall.Wait4(pid, &ws, 0, nil)
	if derr != nil {
		return "", derr
	}
	return out, nil
}

// callProc runs a user-defined procedure's body in a fresh scope with
// positional parameters bound from the call's arguments.
func (ev *Evaluator) callProc(name string, body *Block, args []Arg) error {
	tokens, err := ev.expandArgs(args)
	if err != nil {
		return err
	}
	ev.NS.Vars.Mark()
	defer ev.NS.Vars.Drop()
	ev.NS.Vars.SetArgs(name, tokens)
	_, err = ev.EvalBlock(body)
	return err
}

// runCommandStatement dispatches one command on its evaluated name:
// a user procedure first, then a builtin, then an external spawn. The
// lookup covers the first stage unconditionally; a proc or builtin
// match consumes the whole statement, pipe chain and background flag
// included.
func (ev *Evaluator) runCommandStatement(cmd *Command) error {
	name, err := ev.evalSpecialStr(cmd.Name)
	if err != nil {
		return err
	}
	if body, ok := ev.NS.Procs.Lookup(name); ok {
		return ev.callProc(name, body, cmd.Args)
	}
	if fn, ok := builtins[name]; ok {
		return fn(ev, cmd.Args)
	}

	bg := lastStage(cmd).Bg
	pid, _, err := ev.spawnExternalPipeline(cmd, name, false)
	if err != nil {
		return err
	}
	if bg {
		var id int
		ev.Jobs.With(func(jt *JobTable) { id, _ = jt.NewBG(pid) })
		fmt.Fprintf(os.Stderr, "Job %%%d (%d) has started.\n", id, pid)
		return nil
	}
	if ferr := ev.Jobs.WithErr(func(jt *JobTable) error { return jt.NewFG(pid) }); ferr != nil {
		return ferr
	}
	st, werr := ev.Jobs.WaitFG()
	if werr != nil {
		return werr
	}
	if st != nil && st.Kind == StatusExited {
		ev.NS.Vars.Push("status", strconv.Itoa(st.Code))
	}
	return nil
}
