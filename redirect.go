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

import "os"

// ioMode is the open mode for an output-side plan entry.
type ioMode int

const (
	modeOverwrite ioMode = iota
	modeAppend
)

// inKind distinguishes the two shapes a stdin-side plan can take.
type inKind int

const (
	inNormal inKind = iota
	inHereDoc
)

// stdinPlan, when present, says how to wire the child's stdin.
type stdinPlan struct {
	kind   inKind
	target string // resolved path (inNormal) or heredoc payload (inHereDoc)
}

// outPlan, when present, says how to open one of the child's output
// streams.
type outPlan struct {
	mode   ioMode
	target string
}

// redirectPlan is the collapsed form of a Redirect list: at most one
// stdin plan, and either a single Bind target shared by stdout/stderr
// or two independent Each targets.
type redirectPlan struct {
	stdin  *stdinPlan
	stdout *outPlan
	stderr *outPlan
	bind   bool // true when stdout == stderr and both should share one fd
}

// planRedirects evaluates each target (as ordinary SpecialStr
// resolution) and collapses the list:
// last-writer-wins per stream, with *Both entries fanning into both
// output fields, then a Bind collapse when stdout and stderr ended up
// naming the same target.
func planRedirects(ev *Evaluator, reds []Redirect) (*redirectPlan, error) {
	plan := &redirectPlan{}
	for _, r := range reds {
		switch r.Kind {
		case RedStdin:
			sp, err := resolveStdin(ev, r.Target, false)
			if err != nil {
				return nil, err
			}
			plan.stdin = sp
		case RedHereDoc:
			sp, err := resolveStdin(ev, r.Target, true)
			if err != nil {
				return nil, err
			}
			plan.stdin = sp
		case RedOverwriteStdout:
			op, err := resolveOut(ev, r.Target, modeOverwrite)
			if err != nil {
				return nil, err
			}
			plan.stdout = op
		case RedAppendStdout:
			op, err := resolveOut(ev, r.Target, modeAppend)
			if err != nil {
				return nil, err
			}
			plan.stdout = op
		case RedOverwriteStderr:
			op, err := resolveOut(ev, r.Target, modeOverwrite)
			if err != nil {
				return nil, err
			}
			plan.stderr = op
		case RedAppendStderr:
			op, err := resolveOut(ev, r.Target, modeAppend)
			if err != nil {
				return nil, err
			}
			plan.stderr = op
		case RedOverwriteBoth:
			op, err := resolveOut(ev, r.Target, modeOverwrite)
			if err != nil {
				return nil, err
			}
			plan.stdout, plan.stderr = op, &outPlan{mode: op.mode, target: op.target}
		case RedAppendBoth:
			op, err := resolveOut(ev, r.Target, modeAppend)
			if err != nil {
				return nil, err
			}
			plan.stdout, plan.stderr = op, &outPlan{mode: op.mode, target: op.target}
		default:
			return nil, newErr(KindRedirection, "unknown redirection kind")
		}
	}
	if plan.stdout != nil && plan.stderr != nil &&
		plan.stdout.mode == plan.stderr.mode && plan.stdout.target == plan.stderr.target {
		plan.bind = true
	}
	return plan, nil
}

func resolveStdin(ev *Evaluator, t RedTarget, heredoc bool) (*stdinPlan, error) {
	switch t.Kind {
	case RedTargetStdin:
		return &stdinPlan{kind: inNormal, target: "/dev/stdin"}, nil
	case RedTargetStdout, RedTargetStderr:
		return nil, newErr(KindRedirection, "cannot redirect input from an output stream")
	case RedTargetNull:
		return &stdinPlan{kind: inNormal, target: "/dev/null"}, nil
	default:
		text, err := ev.evalSpecialStr(t.Other)
		if err != nil {
			return nil, err
		}
		if heredoc {
			return &stdinPlan{kind: inHereDoc, target: text}, nil
		}
		return &stdinPlan{kind: inNormal, target: text}, nil
	}
}

func resolveOut(ev *Evaluator, t RedTarget, mode ioMode) (*outPlan, error) {
	switch t.Kind {
	case RedTargetStdout:
		return &outPlan{mode: mode, target: "/dev/stdout"}, nil
	case RedTargetStderr:
		return &outPlan{mode: mode, target: "/dev/stderr"}, nil
	case RedTargetStdin:
		return nil, newErr(KindRedirection, "cannot redirect output to stdin")
	case RedTargetNull:
		return &outPlan{mode: mode, target: "/dev/null"}, nil
	default:
		text, err := ev.evalSpecialStr(t.Other)
		if err != nil {
			return nil, err
		}
		return &outPlan{mode: mode, target: text}, nil
	}
}

func openOut(op *outPlan) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if op.mode == modeAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(op.target, flags, 0644)
	if err != nil {
		return nil, wrapErr(KindSyscall, err, "open "+op.target)
	}
	return f, nil
}

func openIn(sp *stdinPlan) (*os.File, error) {
	f, err := os.Open(sp.target)
	if err != nil {
		return nil, wrapErr(KindSyscall, err, "open "+sp.target)
	}
	return f, nil
}
