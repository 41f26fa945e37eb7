// Package affinity pins long-running loops to dedicated CPU cores.
// Pinning is best-effort: Pin never fails its caller, because an
// unpinned thread costs latency, not correctness.
package affinity

import (
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

var nextCore int32

// Pin locks the calling goroutine to its current OS thread, then attempts
// to bind that thread to a dedicated CPU core — cycling through
// runtime.NumCPU() cores as successive callers (gateway, matching engine,
// publisher, synthesizer) each call Pin once at loop start. Failure (the
// platform doesn't support SchedSetaffinity, or the core count can't be
// read) is logged and otherwise ignored: an unpinned thread is a latency
// cost, not a correctness problem.
func Pin(loop string) {
	runtime.LockOSThread()

	n := runtime.NumCPU()
	if n <= 0 {
		return
	}
	core := int(atomic.AddInt32(&nextCore, 1)-1) % n

	var set unix.CPUSet
	set.Zero()
	set.Set(core)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		log.Warn().Err(err).Str("loop", loop).Int("core", core).Msg("affinity pin failed, continuing unpinned")
		return
	}
	log.Debug().Str("loop", loop).Int("core", core).Msg("pinned loop to core")
}
