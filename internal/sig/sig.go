// Package sig defines the signal-number space (1..63), signal sets,
// priorities, default dispositions, and the per-signal pending queue.
package sig

// NSig is one past the highest valid signal number.
const NSig = 64

// Standard signal numbers.
const (
	SIGHUP    = 1
	SIGINT    = 2
	SIGQUIT   = 3
	SIGILL    = 4
	SIGTRAP   = 5
	SIGABRT   = 6
	SIGBUS    = 7
	SIGFPE    = 8
	SIGKILL   = 9
	SIGUSR1   = 10
	SIGSEGV   = 11
	SIGUSR2   = 12
	SIGPIPE   = 13
	SIGALRM   = 14
	SIGTERM   = 15
	SIGSTKFLT = 16
	SIGCHLD   = 17
	SIGCONT   = 18
	SIGSTOP   = 19
	SIGTSTP   = 20
	SIGTTIN   = 21
	SIGTTOU   = 22
	SIGURG    = 23
	SIGXCPU   = 24
	SIGXFSZ   = 25
	SIGVTALRM = 26
	SIGPROF   = 27
	SIGWINCH  = 28
	SIGPOLL   = 29
	SIGPWR    = 30
	SIGSYS    = 31

	// SIGRTMIN..SIGRTMAX are the real-time signals.
	SIGRTMIN = 32
	SIGRTMAX = 63
)

var names = [NSig]string{
	1: "SIGHUP", 2: "SIGINT", 3: "SIGQUIT", 4: "SIGILL", 5: "SIGTRAP",
	6: "SIGABRT", 7: "SIGBUS", 8: "SIGFPE", 9: "SIGKILL", 10: "SIGUSR1",
	11: "SIGSEGV", 12: "SIGUSR2", 13: "SIGPIPE", 14: "SIGALRM", 15: "SIGTERM",
	16: "SIGSTKFLT", 17: "SIGCHLD", 18: "SIGCONT", 19: "SIGSTOP", 20: "SIGTSTP",
	21: "SIGTTIN", 22: "SIGTTOU", 23: "SIGURG", 24: "SIGXCPU", 25: "SIGXFSZ",
	26: "SIGVTALRM", 27: "SIGPROF", 28: "SIGWINCH", 29: "SIGPOLL", 30: "SIGPWR",
	31: "SIGSYS",
}

// Valid reports whether n is a usable signal number.
func Valid(n int) bool { return n >= 1 && n < NSig }

// IsRealtime reports whether n is a real-time signal (32..63).
func IsRealtime(n int) bool { return n >= SIGRTMIN && n <= SIGRTMAX }

// Name returns the conventional name for a signal number.
func Name(n int) string {
	if !Valid(n) {
		return "INVALID"
	}
	if IsRealtime(n) {
		rt := n - SIGRTMIN
		return "SIGRT" + itoa(rt)
	}
	return names[n]
}

// Number resolves a signal name to its number. It accepts the bare
// form too ("TERM" for "SIGTERM", "RT5" for "SIGRT5").
func Number(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	if len(name) < 3 || name[:3] != "SIG" {
		name = "SIG" + name
	}
	for n := 1; n < SIGRTMIN; n++ {
		if names[n] == name {
			return n, true
		}
	}
	if len(name) > 5 && name[:5] == "SIGRT" {
		rt := 0
		for _, c := range name[5:] {
			if c < '0' || c > '9' {
				return 0, false
			}
			rt = rt*10 + int(c-'0')
		}
		n := SIGRTMIN + rt
		if Valid(n) {
			return n, true
		}
	}
	return 0, false
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
