//go:build !windows

package listener

import (
	"os"
	"syscall"
)

var handledSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1}

func classify(sig os.Signal) signalAction {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return signalExit
	case syscall.SIGHUP:
		return signalRestart
	case syscall.SIGUSR1:
		return signalUpdate
	default:
		return signalIgnore
	}
}
