package sig

// Priority levels. Lower values are serviced first. Real-time signals
// occupy PriorityRTBase+0 .. PriorityRTBase+31 so that every RT signal
// has a distinct, strictly increasing priority by signal number.
const (
	PriorityCritical = 0
	PriorityHigh     = 1
	PriorityNormal   = 2
	PriorityLow      = 3
	PriorityRTBase   = 10
	PriorityMax      = PriorityRTBase + (SIGRTMAX - SIGRTMIN)
)

var highPriority = Of(SIGILL, SIGTRAP, SIGABRT, SIGBUS, SIGFPE, SIGSEGV, SIGSTKFLT, SIGSYS)

var lowPriority = Of(SIGHUP, SIGCHLD, SIGURG, SIGWINCH)

// Priority returns the delivery priority for a signal.
func Priority(n int) int {
	switch {
	case !Valid(n):
		return PriorityNormal
	case n == SIGKILL || n == SIGSTOP:
		return PriorityCritical
	case IsRealtime(n):
		return PriorityRTBase + (n - SIGRTMIN)
	case highPriority.Has(n):
		return PriorityHigh
	case lowPriority.Has(n):
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// ComparePriority returns a negative value when a must be serviced
// before b, positive when b comes first, and zero when equal.
func ComparePriority(a, b int) int { return Priority(a) - Priority(b) }

// Unblockable is the set of signals that can never be masked or caught.
var Unblockable = Of(SIGKILL, SIGSTOP)

// Coalescable is the set of signals for which multiple pending
// instances merge into one deliverable occurrence. Real-time signals
// are never coalesced.
var Coalescable = Of(
	SIGHUP, SIGINT, SIGQUIT, SIGTERM, SIGPIPE, SIGALRM, SIGCHLD,
	SIGWINCH, SIGUSR1, SIGUSR2, SIGCONT, SIGTSTP, SIGTTIN, SIGTTOU,
	SIGURG, SIGXCPU, SIGXFSZ, SIGVTALRM, SIGPROF, SIGPOLL, SIGPWR,
)

// CanCoalesce reports whether generating signal n while it is already
// pending may be folded into the existing instance.
func CanCoalesce(n int) bool { return Coalescable.Has(n) }
