//go:build !linux

package tunnel

// raisePollThreadPriority is a no-op on platforms without per-thread
// priority control.
func raisePollThreadPriority() error {
	return nil
}
