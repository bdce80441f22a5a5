// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"runtime"

	vrlog "github.com/ManuGH/vrlink/internal/log"
	"github.com/ManuGH/vrlink/internal/metrics"
)

const panicStackSize = 8 << 10

// recoverBoundary must be deferred directly by every native entry point.
func (a *Adapter) recoverBoundary(adapter string) {
	rec := recover()
	if rec == nil {
		return
	}
	buf := make([]byte, panicStackSize)
	buf = buf[:runtime.Stack(buf, false)]

	metrics.IncAdapterPanic(adapter)
	a.logger.Error().
		Str(vrlog.FieldAdapter, adapter).
		Interface("panic_value", rec).
		Bytes("stack", buf).
		Str(vrlog.FieldEvent, "adapter.panic_recovered").
		Msg("panic recovered at native boundary")
}
