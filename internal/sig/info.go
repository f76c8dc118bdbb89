package sig

import "time"

// Source identifies where a generated signal originated.
type Source int

const (
	SourceHardware Source = iota + 1
	SourceTimer
	SourceProcess
	SourceKernel
	SourceInterrupt
)

var sourceNames = [...]string{"", "hardware", "timer", "process", "kernel", "interrupt"}

func (s Source) String() string {
	if int(s) > 0 && int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "unknown"
}

// Info carries per-instance signal metadata, the kernel-side analogue
// of POSIX siginfo_t. The zero value is a bare signal with no sender.
type Info struct {
	Signo     int
	Code      Source
	SenderPID int
	SenderUID int
	Status    int    // child exit status, for SIGCHLD
	Value     int    // sigqueue payload
	Addr      uint64 // faulting address, for SIGSEGV/SIGBUS
	TrapNo    uint32
	Overrun   int // timer overrun count
	Timestamp time.Time
}

// NewInfo builds an Info for a kernel-generated signal.
func NewInfo(signo int, source Source) Info {
	return Info{Signo: signo, Code: source}
}

// WithSender records the sending process identity.
func (i Info) WithSender(pid, uid int) Info {
	i.SenderPID = pid
	i.SenderUID = uid
	return i
}

// WithChild records child-exit details for SIGCHLD.
func (i Info) WithChild(childPID, exitStatus int) Info {
	i.SenderPID = childPID
	i.Status = exitStatus
	return i
}

// WithAddr records a faulting address for hardware signals.
func (i Info) WithAddr(addr uint64, trapno uint32) Info {
	i.Addr = addr
	i.TrapNo = trapno
	return i
}

// WithValue records a sigqueue payload.
func (i Info) WithValue(v int) Info {
	i.Value = v
	return i
}
