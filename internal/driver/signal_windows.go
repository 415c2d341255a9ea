//go:build windows

package driver

import "os"

// processTerminateSignal on Windows falls back to Kill; there is no
// portable graceful-terminate signal for os.Process there.
func processTerminateSignal() os.Signal {
	return os.Kill
}
