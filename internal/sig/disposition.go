package sig

// DefaultAction classifies what delivery does when a signal's
// disposition is Default.
type DefaultAction int

const (
	// ActionTerminate kills the receiving process.
	ActionTerminate DefaultAction = iota
	// ActionStop moves the receiving process to STOPPED.
	ActionStop
	// ActionContinue returns a STOPPED process to READY.
	ActionContinue
	// ActionIgnore discards the signal.
	ActionIgnore
)

var defaultActionNames = [...]string{"terminate", "stop", "continue", "ignore"}

func (a DefaultAction) String() string {
	if int(a) < len(defaultActionNames) {
		return defaultActionNames[a]
	}
	return "unknown"
}

var fatalByDefault = Of(
	SIGHUP, SIGINT, SIGQUIT, SIGILL, SIGTRAP, SIGABRT, SIGBUS, SIGFPE,
	SIGKILL, SIGUSR1, SIGSEGV, SIGUSR2, SIGPIPE, SIGALRM, SIGTERM,
	SIGSTKFLT, SIGXCPU, SIGXFSZ, SIGVTALRM, SIGPROF, SIGPOLL, SIGPWR,
	SIGSYS,
)

var stopByDefault = Of(SIGSTOP, SIGTSTP, SIGTTIN, SIGTTOU)

var continueByDefault = Of(SIGCONT)

var ignoredByDefault = Of(SIGCHLD, SIGURG, SIGWINCH)

// IsFatalByDefault reports whether the default action terminates the
// process. Real-time signals terminate by default.
func IsFatalByDefault(n int) bool {
	return fatalByDefault.Has(n) || IsRealtime(n)
}

// IsStopByDefault reports whether the default action stops the process.
func IsStopByDefault(n int) bool { return stopByDefault.Has(n) }

// IsContinueByDefault reports whether the default action resumes a
// stopped process.
func IsContinueByDefault(n int) bool { return continueByDefault.Has(n) }

// IsIgnoredByDefault reports whether the default action discards the
// signal.
func IsIgnoredByDefault(n int) bool { return ignoredByDefault.Has(n) }

// DefaultActionFor maps a signal to its default-disposition class.
func DefaultActionFor(n int) DefaultAction {
	switch {
	case IsStopByDefault(n):
		return ActionStop
	case IsContinueByDefault(n):
		return ActionContinue
	case IsIgnoredByDefault(n):
		return ActionIgnore
	default:
		return ActionTerminate
	}
}
