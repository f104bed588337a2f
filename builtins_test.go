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
	"path/filepath"
	"testing"
)

func TestBuiltinExit_DefaultCodeZero(t *testing.T) {
	ev := newTestEvaluator()
	err := builtinExit(ev, nil)
	exitErr, ok := AsExit(err)
	if !ok || exitErr.Code != 0 {
		t.Fatalf("want Exit(0), got %v", err)
	}
}

func TestBuiltinExit_ExplicitCode(t *testing.T) {
	ev := newTestEvaluator()
	err := builtinExit(ev, []Arg{{Kind: ArgPlain, Str: Lit("7")}})
	exitErr, ok := AsExit(err)
	if !ok || exitErr.Code != 7 {
		t.Fatalf("want Exit(7), got %v", err)
	}
}

func TestBuiltinExit_TooManyArgs(t *testing.T) {
	ev := newTestEvaluator()
	err := builtinExit(ev, []Arg{
		{Kind: ArgPlain, Str: Lit("1")},
		{Kind: ArgPlain, Str: Lit("2")},
	})
	if err == nil {
		t.Fatal("expected an arity error")
	}
}

func TestBuiltinLet_PushesScopedVar(t *testing.T) {
	os.Unsetenv("x")
	ev := newTestEvaluator()
	ev.NS.Vars.Mark()
	defer ev.NS.Vars.Drop()
	err := builtinLet(ev, []Arg{
		{Kind: ArgPlain, Str: Lit("x")},
		{Kind: ArgPlain, Str: Lit("=")},
		{Kind: ArgPlain, Str: Lit("3")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("x"); got != "3" {
		t.Fatalf("want x=3, got %q", got)
	}
}

func TestBuiltinLet_RejectsMissingEquals(t *testing.T) {
	ev := newTestEvaluator()
	err := builtinLet(ev, []Arg{
		{Kind: ArgPlain, Str: Lit("x")},
		{Kind: ArgPlain, Str: Lit("3")},
	})
	if err == nil {
		t.Fatal("expected an arity error without '='")
	}
}

func TestBuiltinExport_EscapesScope(t *testing.T) {
	os.Unsetenv("y")
	defer os.Unsetenv("y")
	ev := newTestEvaluator()
	ev.NS.Vars.Mark()
	if err := builtinExport(ev, []Arg{
		{Kind: ArgPlain, Str: Lit("y")},
		{Kind: ArgPlain, Str: Lit("=")},
		{Kind: ArgPlain, Str: Lit("9")},
	}); err != nil {
		t.Fatal(err)
	}
	ev.NS.Vars.Drop()
	if got := os.Getenv("y"); got != "9" {
		t.Fatalf("export should survive scope drop, got %q", got)
	}
}

func TestBuiltinCd_EmptyPathUsesHome(t *testing.T) {
	home := os.Getenv("HOME")
	if home == "" {
		t.Skip("no HOME set in this environment")
	}
	wd, _ := os.Getwd()
	defer os.Chdir(wd)

	ev := newTestEvaluator()
	if err := builtinCd(ev, nil); err != nil {
		t.Fatal(err)
	}
	got, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	// Compare with symlinks resolved: Getwd and $HOME need not spell
	// the same directory byte-for-byte.
	want, err := filepath.EvalSymlinks(home)
	if err != nil {
		t.Fatal(err)
	}
	if resolved, err := filepath.EvalSymlinks(got); err != nil || resolved != want {
		t.Fatalf("want cwd %q after cd with no args, got %q (%v)", want, got, err)
	}
}

func TestBuiltinCd_TooManyArgs(t *testing.T) {
	ev := newTestEvaluator()
	err := builtinCd(ev, []Arg{
		{Kind: ArgPlain, Str: Lit("/a")},
		{Kind: ArgPlain, Str: Lit("/b")},
	})
	if err == nil {
		t.Fatal("expected an arity error")
	}
}

func TestResolveJobArg_JobIDAndPid(t *testing.T) {
	ev := newTestEvaluator()
	ev.Jobs.With(func(jt *JobTable) { jt.NewBG(321) })

	id, err := resolveJobArg(ev, "%1")
	if err != nil || id != 1 {
		t.Fatalf("resolveJobArg(%%1) = %d, %v", id, err)
	}
	id, err = resolveJobArg(ev, "321")
	if err != nil || id != 1 {
		t.Fatalf("resolveJobArg(321) = %d, %v", id, err)
	}
	if _, err := resolveJobArg(ev, "999"); err == nil {
		t.Fatal("expected an error for an unknown pid")
	}
}

func TestBuiltinFg_OnSlotZeroIsNoop(t *testing.T) {
	ev := newTestEvaluator()
	ev.Jobs.With(func(jt *JobTable) { jt.NewFG(1) })
	err := builtinFg(ev, []Arg{{Kind: ArgPlain, Str: Lit("%0")}})
	if err != nil {
		t.Fatalf("fg on slot 0 must be a no-op success: %v", err)
	}
}
