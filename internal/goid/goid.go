// Copyright 2018 The gVisor Authors.
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

// Package goid provides the identifier of the current goroutine.
//
// The core uses this as a substitute for the "per-executor state reached
// through a register-resident pointer" idiom described in the original
// architecture: rather than a real per-CPU register, the goroutine backing
// an Executor's current task registers itself in a table keyed by goroutine
// ID, and CurrentExecutor looks itself up by the same key.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Get returns the ID of the calling goroutine, parsed out of the runtime's
// own stack dump. This is slow compared to a real per-CPU register. The
// core calls it at every context switch, every simulated interrupt
// enable/disable (simarch), and every current-task lookup.
func Get() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	// The first line looks like "goroutine 123 [running]:".
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
