//go:build windows

package listener

import (
	"os"
	"syscall"
)

var handledSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func classify(sig os.Signal) signalAction {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return signalExit
	default:
		return signalIgnore
	}
}
