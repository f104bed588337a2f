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
)

// evalNext runs one round of the session loop: read one line, grow it
// with continuation lines until the parser reports Complete or EOF,
// evaluate it, and report any error to stderr without ending the
// session. It returns cont=false only on EOF or on an *Exit bubbling
// out of evaluation.
func evalNext(ev *Evaluator, r Reader) (cont bool, err error) {
	line, ok := r.NextLine()
	if !ok {
		return false, nil
	}
	for {
		block, complete, perr := Parse(line)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "Parse Error: %v\n", perr)
			return true, nil
		}
		if complete {
			_, everr := ev.EvalBlock(block)
			if everr == nil {
				return true, nil
			}
			if exitErr, isExit := AsExit(everr); isExit {
				return false, exitErr
			}
			fmt.Fprintf(os.Stderr, "%v\n", everr)
			return true, nil
		}
		more, ok := r.MoreLine()
		if !ok {
			// EOF mid-statement discards the partial input and
			// keeps the session alive.
			return true, nil
		}
		line = line + "\n" + more
	}
}

// evalAll runs evalNext until the reader hits EOF or the process
// should exit.
func evalAll(ev *Evaluator, r Reader) error {
	r.Init(ev.Jobs)
	for {
		cont, err := evalNext(ev, r)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// evalAllWithArgs scope-wraps evalAll with positional parameters,
// backing both top-level script invocation and, indirectly, `source`
// (which calls evalAll directly since it manages its own scope).
func evalAllWithArgs(ev *Evaluator, r Reader, name string, args []string) error {
	ev.NS.Vars.Mark()
	defer ev.NS.Vars.Drop()
	ev.NS.Vars.SetArgs(name, args)
	return evalAll(ev, r)
}

// EvalAllWithArgs is the exported entry point cmd/rill drives: it runs
// a whole session (interactive or scripted) to completion, under the
// session's positional-parameter scope, and returns whatever error or
// *Exit the evaluator produced.
func EvalAllWithArgs(ev *Evaluator, r Reader, name string, args []string) error {
	return evalAllWithArgs(ev, r, name, args)
}
