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
	"os/signal"
	"syscall"
)

// StartSignals launches the dedicated signal-receiving goroutine. It
// never touches the job table directly from a
// synchronous signal handler (Go has none to offer anyway), instead
// draining a buffered os/signal channel and routing each notification
// through the mutex-guarded SharedJobs handle. It runs until the
// process exits; there is no stop channel because the shell has
// exactly one of these for its whole lifetime.
func StartSignals(jobs *SharedJobs) {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTSTP, syscall.SIGCHLD)
	go func() {
		for sig := range ch {
			switch sig {
			case syscall.SIGINT:
				jobs.SigInt()
			case syscall.SIGTSTP:
				jobs.SigTSTP()
			case syscall.SIGCHLD:
				jobs.SigChld()
			default:
				log.WithField("signal", sig).Debug("unhandled signal")
			}
		}
	}()
}
