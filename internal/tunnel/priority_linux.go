//go:build linux

package tunnel

import "golang.org/x/sys/unix"

// raisePollThreadPriority raises the calling thread's scheduling priority so
// the settings poll loop keeps running while the process is deprioritized.
// Requires the thread to be locked to the goroutine. Best effort: without
// CAP_SYS_NICE the kernel refuses negative niceness.
func raisePollThreadPriority() error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, -10)
}
