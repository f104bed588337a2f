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
	"sort"
	"syscall"

	"golang.org/x/sys/unix"
)

// JobTable is the ordered mapping of small integer job-ids to
// processes, with id 0 reserved for the foreground slot.
type JobTable struct {
	procs map[int]*Process
}

// NewJobTable returns an empty table.
func NewJobTable() *JobTable {
	return &JobTable{procs: make(map[int]*Process)}
}

// JobEntry is a point-in-time snapshot row, used by the jobs builtin.
type JobEntry struct {
	ID        int
	Pid       int
	Suspended bool
}

// Snapshot returns every entry ordered by id, 0 first if present.
func (jt *JobTable) Snapshot() []JobEntry {
	ids := make([]int, 0, len(jt.procs))
	for id := range jt.procs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]JobEntry, 0, len(ids))
	for _, id := range ids {
		p := jt.procs[id]
		out = append(out, JobEntry{ID: id, Pid: p.Pid, Suspended: p.Suspended})
	}
	return out
}

func (jt *JobTable) nextID() int {
	for i := 1; ; i++ {
		if _, ok := jt.procs[i]; !ok {
			return i
		}
	}
}

// NewFG installs pid at the foreground slot, failing if occupied.
func (jt *JobTable) NewFG(pid int) error {
	if _, ok := jt.procs[0]; ok {
		return newErr(KindSyscall, "foreground slot is already occupied")
	}
	jt.procs[0] = &Process{Pid: pid}
	return nil
}

// NewBG installs pid at the smallest free positive id and returns it.
func (jt *JobTable) NewBG(pid int) (id, gotPid int) {
	id = jt.nextID()
	jt.procs[id] = &Process{Pid: pid}
	return id, pid
}

// WaitFG waits on the foreground process, if any, and classifies the
// result: a stop migrates the process to a fresh background id and
// reports it as suspended; an interrupt removes the slot and surfaces
// Interrupted; anything else removes the slot and returns the status.
func (jt *JobTable) WaitFG() (*Status, error) {
	proc, ok := jt.procs[0]
	if !ok {
		return nil, nil
	}
	st, err := proc.Wait()
	if err != nil {
		return nil, err
	}
	switch {
	case st.Stopped():
		delete(jt.procs, 0)
		id := jt.nextID()
		proc.Suspended = true
		jt.procs[id] = proc
		reportSuspended(id, proc.Pid)
		return &st, nil
	case st.Interrupted():
		delete(jt.procs, 0)
		return nil, Interrupted
	default:
		delete(jt.procs, 0)
		return &st, nil
	}
}

func reportSuspended(id, pid int) {
	fmt.Fprintf(os.Stderr, "\nSuspended: %%%d (%d)\n", id, pid)
}

// SigInt delivers SIGINT to the foreground process, if any, and
// reports the interruption the way an interactive terminal would.
func (jt *JobTable) SigInt() {
	if proc, ok := jt.procs[0]; ok {
		if _, err := proc.Interrupt(); err != nil {
			log.WithError(err).Debug("sigint: deliver to foreground")
		}
	}
	fmt.Fprint(os.Stderr, "\nInterrupt\n")
}

// SigTSTP delivers SIGSTOP to the foreground process, if any. The
// table doesn't move it to a background id until WaitFG observes the
// stop; this only marks the Process struct and signals the kernel.
func (jt *JobTable) SigTSTP() {
	proc, ok := jt.procs[0]
	if !ok {
		return
	}
	if _, err := proc.Suspend(); err != nil {
		log.WithError(err).Debug("sigtstp: suspend foreground")
	}
}

// SigChld services one pending SIGCHLD: it peeks (via ReapAny) at
// whichever child changed state. If that's the foreground process,
// WaitFG owns reporting it and this is a no-op. Otherwise the table
// updates the background entry and reports the transition.
func (jt *JobTable) SigChld() {
	pid, status, ok := ReapAny()
	if !ok {
		return
	}
	if fg, isFG := jt.procs[0]; isFG && fg.Pid == pid {
		return
	}
	id, found := jt.fromPidLocked(pid)
	if !found {
		return
	}
	proc := jt.procs[id]
	switch {
	case status.Continued():
		proc.Suspended = false
		fmt.Fprintf(os.Stderr, "\n[Background process %%%d (%d) continued]\n", id, pid)
	case status.Stopped():
		proc.Suspended = true
		fmt.Fprintf(os.Stderr, "\n[Background process %%%d (%d) stopped]\n", id, pid)
	case status.Kind == StatusSignaled:
		delete(jt.procs, id)
		reapBG(pid)
		fmt.Fprintf(os.Stderr, "\n[Background process %%%d (%d) terminated with signal %q]\n", id, pid, unix.SignalName(status.Signal))
	default: // StatusExited
		delete(jt.procs, id)
		reapBG(pid)
		fmt.Fprintf(os.Stderr, "\n[Background process %%%d (%d) exited with code \"%d\"]\n", id, pid, status.Code)
	}
}

// reapBG consumes the termination event ReapAny only peeked at.
// Without this the zombie would keep satisfying every later WNOWAIT
// peek, hiding other children's transitions.
func reapBG(pid int) {
	var ws syscall.WaitStatus
	_, _ = syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
}

func (jt *JobTable) fromPidLocked(pid int) (int, bool) {
	best := -1
	for id, p := range jt.procs {
		if p.Pid == pid && (best == -1 || id < best) {
			best = id
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// FromPid returns the smallest job-id whose process has this pid.
func (jt *JobTable) FromPid(pid int) (int, bool) {
	return jt.fromPidLocked(pid)
}

// PidOf resolves a job-id to its current pid, for %id job references.
func (jt *JobTable) PidOf(id int) (int, bool) {
	p, ok := jt.procs[id]
	if !ok {
		return 0, false
	}
	return p.Pid, true
}

// MoveToFG promotes a background job to the foreground slot,
// restarting it if it was suspended. Moving slot 0 to itself is a
// no-op success.
func (jt *JobTable) MoveToFG(id int) error {
	if id == 0 {
		return nil
	}
	if _, ok := jt.procs[0]; ok {
		return newErr(KindSyscall, "foreground slot is already occupied")
	}
	proc, ok := jt.procs[id]
	if !ok {
		return newErr(KindNotFound, "no such job %%%d", id)
	}
	delete(jt.procs, id)
	if proc.Suspended {
		if _, err := proc.Restart(); err != nil {
			jt.procs[id] = proc
			return wrapErr(KindSignal, err, "restart")
		}
	}
	jt.procs[0] = proc
	return nil
}
