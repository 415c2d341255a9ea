//go:build !windows

package driver

import (
	"os"
	"syscall"
)

// processTerminateSignal is the signal sent to ask the child to exit
// cleanly before escalating to Kill.
func processTerminateSignal() os.Signal {
	return syscall.SIGTERM
}
