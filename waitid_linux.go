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

//go:build linux

package rill

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux's CLD_* si_code values (asm-generic/siginfo.h); not re-exposed
// by golang.org/x/sys/unix.
const (
	cldExited    = 1
	cldKilled    = 2
	cldDumped    = 3
	cldTrapped   = 4
	cldStopped   = 5
	cldContinued = 6
)

// sigchldInfo overlays the CLD_* arm of the kernel's siginfo_t union.
// unix.Siginfo only exposes Signo/Errno/Code as plain fields and
// leaves the rest as an opaque byte blob (the union's shape depends
// on si_code), so we reinterpret it ourselves; the pid/uid/status
// offsets below are part of the stable Linux siginfo_t ABI for
// SIGCHLD (si_pid at +16, si_uid at +20, si_status at +24 on amd64).
type sigchldInfo struct {
	Signo  int32
	Errno  int32
	Code   int32
	_      int32
	Pid    int32
	UID    uint32
	Status int32
}

func decodeStatus(code, status int32) Status {
	if code == cldExited {
		return Status{Kind: StatusExited, Code: int(status)}
	}
	return Status{Kind: StatusSignaled, Signal: syscall.Signal(status)}
}

// waitidPID blocks on this single pid with WEXITED|WSTOPPED, never
// reaping on a stop so the pid stays trackable.
func waitidPID(pid int) (Status, error) {
	var info unix.Siginfo
	if err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WSTOPPED, nil); err != nil {
		return Status{}, err
	}
	c := (*sigchldInfo)(unsafe.Pointer(&info))
	return decodeStatus(c.Code, c.Status), nil
}

// reapAny services SIGCHLD: waits for whichever child has something
// pending, without consuming the event (WNOWAIT) so a later,
// pid-targeted wait still observes it.
func reapAny() (pid int, status Status, ok bool) {
	var info unix.Siginfo
	opts := unix.WEXITED | unix.WSTOPPED | unix.WCONTINUED | unix.WNOWAIT
	if err := unix.Waitid(unix.P_ALL, 0, &info, opts, nil); err != nil {
		return 0, Status{}, false
	}
	c := (*sigchldInfo)(unsafe.Pointer(&info))
	if c.Pid == 0 {
		return 0, Status{}, false
	}
	return int(c.Pid), decodeStatus(c.Code, c.Status), true
}
