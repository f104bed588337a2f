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
	"testing"
)

func TestTruthy(t *testing.T) {
	for _, s := range []string{"1", "y", "yes", "true", "TRUE", "Y"} {
		if !truthy(s) {
			t.Errorf("truthy(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"0", "n", "no", "false", "", "2"} {
		if truthy(s) {
			t.Errorf("truthy(%q) = true, want false", s)
		}
	}
}

func TestEvalSpecialStr_LiteralAndVarRef(t *testing.T) {
	os.Setenv("RILL_EVAL_TEST", "42")
	defer os.Unsetenv("RILL_EVAL_TEST")
	ev := newTestEvaluator()
	s := SpecialStr{Frags: []Frag{
		{Kind: FragLiteral, Text: "x="},
		{Kind: FragVarRef, Name: "RILL_EVAL_TEST"},
	}}
	got, err := ev.evalSpecialStr(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != "x=42" {
		t.Fatalf("got %q, want x=42", got)
	}
}

func TestEvalSpecialStr_UnsetVarRefFails(t *testing.T) {
	os.Unsetenv("RILL_EVAL_TEST_UNSET")
	ev := newTestEvaluator()
	s := SpecialStr{Frags: []Frag{{Kind: FragVarRef, Name: "RILL_EVAL_TEST_UNSET"}}}
	if _, err := ev.evalSpecialStr(s); err == nil {
		t.Fatal("expected an error for an unset variable reference")
	}
}

func TestEvalSpecialStr_JobRef(t *testing.T) {
	ev := newTestEvaluator()
	ev.Jobs.With(func(jt *JobTable) { jt.NewBG(4242) })
	s := SpecialStr{Frags: []Frag{{Kind: FragJobRef, JobID: 1}}}
	got, err := ev.evalSpecialStr(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != "4242" {
		t.Fatalf("got %q, want 4242", got)
	}
}

func TestEvalSpecialStr_JobRefUnknownFails(t *testing.T) {
	ev := newTestEvaluator()
	s := SpecialStr{Frags: []Frag{{Kind: FragJobRef, JobID: 9}}}
	if _, err := ev.evalSpecialStr(s); err == nil {
		t.Fatal("expected an error referencing an unknown job")
	}
}

func condLit(s string) *SpecialStr {
	c := Lit(s)
	return &c
}

// markerBlock is a BlockProc whose only purpose in these tests is to
// be observably defined in the proc table when its branch runs,
// without needing to spawn a real external command.
func markerBlock(name string) *Block {
	return &Block{Kind: BlockProc, ProcName: name, ProcBody: &Block{Kind: BlockMulti}}
}

func TestEvalBlock_IfRunsThenOnTruthyCondition(t *testing.T) {
	ev := newTestEvaluator()
	blk := &Block{Kind: BlockIf, Cond: condLit("true"), Then: markerBlock("ran_then"), Else: markerBlock("ran_else")}
	if _, err := ev.EvalBlock(blk); err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.NS.Procs.Lookup("ran_then"); !ok {
		t.Fatal("expected the then-branch to run on a truthy condition")
	}
	if _, ok := ev.NS.Procs.Lookup("ran_else"); ok {
		t.Fatal("else-branch must not run on a truthy condition")
	}
}

func TestEvalBlock_IfRunsElseOnFalsyCondition(t *testing.T) {
	ev := newTestEvaluator()
	blk := &Block{Kind: BlockIf, Cond: condLit("no"), Then: markerBlock("ran_then"), Else: markerBlock("ran_else")}
	if _, err := ev.EvalBlock(blk); err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.NS.Procs.Lookup("ran_then"); ok {
		t.Fatal("then-branch must not run on a falsy condition")
	}
	if _, ok := ev.NS.Procs.Lookup("ran_else"); !ok {
		t.Fatal("expected the else-branch to run on a falsy condition")
	}
}

func TestEvalBlock_CaseMatchesFirstEqualPattern(t *testing.T) {
	ev := newTestEvaluator()
	blk := &Block{
		Kind:     BlockCase,
		CaseCond: condLit("b"),
		Branches: []CaseBranch{
			{Pats: []SpecialStr{Lit("a")}, Body: markerBlock("matched_a")},
			{Pats: []SpecialStr{Lit("b"), Lit("c")}, Body: markerBlock("matched_bc")},
		},
	}
	if _, err := ev.EvalBlock(blk); err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.NS.Procs.Lookup("matched_a"); ok {
		t.Fatal("non-matching branch must not run")
	}
	if _, ok := ev.NS.Procs.Lookup("matched_bc"); !ok {
		t.Fatal("expected the branch containing the equal pattern to run")
	}
}

func TestEvalBlock_CaseNoMatchIsNormal(t *testing.T) {
	ev := newTestEvaluator()
	blk := &Block{
		Kind:     BlockCase,
		CaseCond: condLit("z"),
		Branches: []CaseBranch{{Pats: []SpecialStr{Lit("a")}, Body: markerBlock("matched_a")}},
	}
	fs, err := ev.EvalBlock(blk)
	if err != nil {
		t.Fatal(err)
	}
	if fs != FlowNormal {
		t.Fatalf("want FlowNormal, got %v", fs)
	}
	if _, ok := ev.NS.Procs.Lookup("matched_a"); ok {
		t.Fatal("no branch should have matched")
	}
}

// exportOf builds `export NAME = $src` as a BlockSingle, letting a
// test observe what a loop or conditional body saw by escaping the
// value through a builtin rather than spawning a real subprocess.
func exportOf(name, src string) *Block {
	return &Block{Kind: BlockSingle, Cmd: &Command{
		Name: Lit("export"),
		Args: []Arg{
			{Kind: ArgPlain, Str: Lit(name)},
			{Kind: ArgPlain, Str: Lit("=")},
			{Kind: ArgPlain, Str: SpecialStr{Frags: []Frag{{Kind: FragVarRef, Name: src}}}},
		},
	}}
}

func TestEvalBlock_ForBindsVarAndScopesIt(t *testing.T) {
	ev := newTestEvaluator()
	os.Unsetenv("i")
	os.Unsetenv("SEEN")
	defer os.Unsetenv("SEEN")
	iter := condLit("a\nb\nc")
	// A body that immediately breaks still observes the first
	// iteration's binding while the loop is running; `export` escapes
	// that snapshot past the for-loop's own Mark/Drop scope so the
	// test can inspect it afterward.
	body := &Block{Kind: BlockMulti, Lines: []*Block{
		exportOf("SEEN", "i"),
		{Kind: BlockBreak},
	}}
	fs, err := ev.EvalBlock(&Block{Kind: BlockFor, Var: "i", Iter: iter, Body: body})
	if err != nil {
		t.Fatal(err)
	}
	if fs != FlowNormal {
		t.Fatalf("a For block always yields FlowNormal to its parent, got %v", fs)
	}
	if got := os.Getenv("SEEN"); got != "a" {
		t.Fatalf("want the loop variable bound to the first value while running, got %q", got)
	}
	if _, ok := os.LookupEnv("i"); ok {
		t.Fatal("loop variable must not leak past the for block's scope")
	}
}

func TestEvalBlock_MultiIsScopeBalanced(t *testing.T) {
	ev := newTestEvaluator()
	multi := &Block{Kind: BlockMulti, Lines: []*Block{markerBlock("noop")}}
	if _, err := ev.EvalBlock(multi); err != nil {
		t.Fatal(err)
	}
	if len(ev.NS.Vars.marks) != 0 {
		t.Fatalf("mark stack should be empty after Multi returns, got depth %d", len(ev.NS.Vars.marks))
	}
}

func TestEvalBlock_MultiContinuesPastFailedStatement(t *testing.T) {
	os.Unsetenv("RILL_EVAL_TEST_UNSET")
	ev := newTestEvaluator()
	bad := &Block{Kind: BlockSingle, Cmd: &Command{
		Name: SpecialStr{Frags: []Frag{{Kind: FragVarRef, Name: "RILL_EVAL_TEST_UNSET"}}},
	}}
	multi := &Block{Kind: BlockMulti, Lines: []*Block{bad, markerBlock("after_failure")}}
	if _, err := ev.EvalBlock(multi); err != nil {
		t.Fatalf("a failed statement must not abort the block: %v", err)
	}
	if _, ok := ev.NS.Procs.Lookup("after_failure"); !ok {
		t.Fatal("statements after a failure should still run")
	}
}

func TestEvalBlock_MultiUnwindsOnExit(t *testing.T) {
	ev := newTestEvaluator()
	exit := &Block{Kind: BlockSingle, Cmd: &Command{Name: Lit("exit"), Args: []Arg{{Kind: ArgPlain, Str: Lit("5")}}}}
	multi := &Block{Kind: BlockMulti, Lines: []*Block{exit, markerBlock("unreachable")}}
	_, err := ev.EvalBlock(multi)
	exitErr, ok := AsExit(err)
	if !ok || exitErr.Code != 5 {
		t.Fatalf("want Exit(5) to unwind, got %v", err)
	}
	if _, ok := ev.NS.Procs.Lookup("unreachable"); ok {
		t.Fatal("nothing after exit should run")
	}
}

func TestRunCommand_ProcDispatchWinsOverPipeline(t *testing.T) {
	ev := newTestEvaluator()
	ev.NS.Procs.Define("greet", markerBlock("greeted"))
	cmd := &Command{Name: Lit("greet"), Pipe: &Command{Name: Lit("cat")}}
	if err := ev.runCommandStatement(cmd); err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.NS.Procs.Lookup("greeted"); !ok {
		t.Fatal("a piped invocation of a defined proc must still run the proc")
	}
}

func TestRunCommand_BuiltinDispatchWinsOverBackground(t *testing.T) {
	os.Unsetenv("RILL_BG_LET")
	defer os.Unsetenv("RILL_BG_LET")
	ev := newTestEvaluator()
	ev.NS.Vars.Mark()
	defer ev.NS.Vars.Drop()
	cmd := &Command{
		Name: Lit("let"),
		Args: []Arg{
			{Kind: ArgPlain, Str: Lit("RILL_BG_LET")},
			{Kind: ArgPlain, Str: Lit("=")},
			{Kind: ArgPlain, Str: Lit("1")},
		},
		Bg: true,
	}
	if err := ev.runCommandStatement(cmd); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("RILL_BG_LET"); got != "1" {
		t.Fatalf("a backgrounded invocation of a builtin must still run the builtin, got %q", got)
	}
}

func TestExpandArgs_RedirectIsRejected(t *testing.T) {
	ev := newTestEvaluator()
	_, err := ev.expandArgs([]Arg{{Kind: ArgRedirect}})
	if err == nil {
		t.Fatal("expected an error expanding a redirect as a plain argument")
	}
}
