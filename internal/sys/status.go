package sys

// WaitStatus packs a child's termination record into the POSIX wait
// status layout: the low 7 bits carry the terminating signal, bits
// 8..15 carry the exit code. A clean exit leaves the low bits zero.
type WaitStatus int

const (
	statusSignalMask = 0x7f
	statusStopped    = 0x7f
	statusExitShift  = 8
)

// EncodeStatus builds a WaitStatus from a termination record. killedBy
// is the fatal signal number, or 0 for a voluntary exit.
func EncodeStatus(exitCode, killedBy int) WaitStatus {
	if killedBy != 0 {
		return WaitStatus(killedBy & statusSignalMask)
	}
	return WaitStatus((exitCode & 0xff) << statusExitShift)
}

// EncodeStopped builds a WaitStatus reporting a stop by signo.
func EncodeStopped(signo int) WaitStatus {
	return WaitStatus((signo&0xff)<<statusExitShift | statusStopped)
}

// Exited reports whether the child exited voluntarily.
func (s WaitStatus) Exited() bool { return s&statusSignalMask == 0 }

// ExitStatus returns the exit code of a voluntarily exited child, or
// -1 if the child was killed by a signal.
func (s WaitStatus) ExitStatus() int {
	if !s.Exited() {
		return -1
	}
	return int(s>>statusExitShift) & 0xff
}

// Signaled reports whether a fatal signal terminated the child.
func (s WaitStatus) Signaled() bool {
	return s&statusSignalMask != 0 && s&statusSignalMask != statusStopped
}

// Signal returns the terminating signal, or -1 for a voluntary exit.
func (s WaitStatus) Signal() int {
	if !s.Signaled() {
		return -1
	}
	return int(s & statusSignalMask)
}

// Stopped reports whether the status records a stop.
func (s WaitStatus) Stopped() bool { return s&0xff == statusStopped }

// StopSignal returns the stopping signal, or -1.
func (s WaitStatus) StopSignal() int {
	if !s.Stopped() {
		return -1
	}
	return int(s>>statusExitShift) & 0xff
}
