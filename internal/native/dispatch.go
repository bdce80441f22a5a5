// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package native

import "runtime"

type factoryResult struct {
	ptr    uintptr
	status int32
}

// Dispatch runs fn on a goroutine locked to its own OS thread and waits for
// it. The native factory must not run on the host's calling thread.
func Dispatch(fn func() (uintptr, int32)) (uintptr, int32) {
	done := make(chan factoryResult, 1)
	go func() {
		runtime.LockOSThread()
		// Never unlocked: the thread exits with the goroutine.
		var res factoryResult
		defer func() {
			if rec := recover(); rec != nil {
				res = factoryResult{status: StatusInitFailed}
			}
			done <- res
		}()
		res.ptr, res.status = fn()
	}()
	res := <-done
	return res.ptr, res.status
}
