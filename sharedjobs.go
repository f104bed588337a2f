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

import "sync"

// SharedJobs is a JobTable guarded by a mutex, safe to reach from both
// the evaluator goroutine and the dedicated signal-handling goroutine
// started by StartSignals.
type SharedJobs struct {
	mu    sync.Mutex
	table *JobTable
}

// NewSharedJobs returns an empty, ready-to-use table.
func NewSharedJobs() *SharedJobs {
	return &SharedJobs{table: NewJobTable()}
}

// With runs fn with the lock held and the underlying table exposed.
// Callers must not retain the table past fn's return.
func (s *SharedJobs) With(fn func(*JobTable)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.table)
}

// WaitFG blocks on the foreground process. The lock is released
// before the blocking waitid call so SigChld/SigInt/SigTSTP, run from
// the signal goroutine, can still observe and mutate the table while
// this call is parked in the kernel; it's reacquired only to apply the
// observed transition.
func (s *SharedJobs) WaitFG() (*Status, error) {
	s.mu.Lock()
	proc, ok := s.table.procs[0]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	st, err := proc.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table.procs[0] != proc {
		// Slot 0 no longer holds the process this call waited on,
		// so there is nothing here to reconcile. (SigChld leaves the
		// foreground pid alone, so it does not cause this.)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	switch {
	case st.Stopped():
		delete(s.table.procs, 0)
		id := s.table.nextID()
		proc.Suspended = true
		s.table.procs[id] = proc
		reportSuspended(id, proc.Pid)
		return &st, nil
	case st.Interrupted():
		delete(s.table.procs, 0)
		return nil, Interrupted
	default:
		delete(s.table.procs, 0)
		return &st, nil
	}
}

// WithErr is With for a closure that can fail, e.g. installing a
// freshly spawned process into an already-occupied foreground slot.
func (s *SharedJobs) WithErr(fn func(*JobTable) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.table)
}

// SigChld, SigInt and SigTSTP forward to the underlying table under
// lock; they're the entry points the signal goroutine calls.
func (s *SharedJobs) SigChld() { s.With((*JobTable).SigChld) }
func (s *SharedJobs) SigInt()  { s.With((*JobTable).SigInt) }
func (s *SharedJobs) SigTSTP() { s.With((*JobTable).SigTSTP) }
