// Package supervisor runs the Osiris daemon: it owns the kernel
// instance, the event bus, OS signal handling, and the main loop.
package supervisor

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SignalQueue captures OS signals for deferred processing in the main loop.
type SignalQueue struct {
	C      <-chan os.Signal
	ch     chan os.Signal
	logger *slog.Logger
}

// NewSignalQueue creates a signal queue with a buffer of 16 signals.
// It registers for SIGTERM, SIGINT, SIGQUIT, SIGHUP, and SIGUSR2.
func NewSignalQueue(logger *slog.Logger) *SignalQueue {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGHUP,
		syscall.SIGUSR2,
	)
	return &SignalQueue{
		C:      ch,
		ch:     ch,
		logger: logger,
	}
}

// Stop deregisters signal notifications.
func (sq *SignalQueue) Stop() {
	signal.Stop(sq.ch)
}

// RootWarning logs a warning if the daemon is running as root (uid 0)
// without a configured user for privilege dropping.
func RootWarning(logger *slog.Logger, userConfigured bool) {
	if getuid() != 0 {
		return
	}
	if userConfigured {
		return
	}
	logger.Warn("running as root without user config; consider configuring privilege dropping")
}
