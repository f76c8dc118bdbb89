package sys

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/osirisdev/osiris/internal/kernel"
	"github.com/osirisdev/osiris/internal/sig"
)

// Wait option bits, re-exported for callers of this layer.
const (
	WNOHANG    = kernel.WNOHANG
	WUNTRACED  = kernel.WUNTRACED
	WCONTINUED = kernel.WCONTINUED
)

// pollInterval paces the bounded-wait syscalls.
const pollInterval = time.Millisecond

// API exposes the syscall surface over a kernel instance.
type API struct {
	k      *kernel.Kernel
	logger *slog.Logger
}

// New builds the syscall layer.
func New(k *kernel.Kernel, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{k: k, logger: logger}
}

// mapErr converts internal failures to errno values. Unknown errors
// pass through unchanged.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kernel.ErrNoSuchProcess):
		return ESRCH
	case errors.Is(err, kernel.ErrNoSuchChild):
		return ECHILD
	case errors.Is(err, sig.ErrInvalidSignal):
		return EINVAL
	case errors.Is(err, kernel.ErrBadState):
		return EINVAL
	case errors.Is(err, kernel.ErrTableFull):
		return EAGAIN
	default:
		return err
	}
}

// mayKill applies the POSIX permission model: root may signal anyone,
// a process may signal itself and processes with its own UID, and
// SIGCONT may cross UIDs within a session.
func mayKill(sender, target kernel.Snapshot, signo int) bool {
	if sender.UID == 0 {
		return true
	}
	if sender.PID == target.PID {
		return true
	}
	if sender.UID == target.UID {
		return true
	}
	if signo == sig.SIGCONT && sender.Session == target.Session {
		return true
	}
	return false
}

// Kill sends signo to target. A signo of 0 performs the existence and
// permission checks without generating anything, the classic liveness
// probe.
func (a *API) Kill(caller, target kernel.PID, signo int) error {
	if signo < 0 || signo >= sig.NSig {
		return EINVAL
	}
	sender, err := a.k.Get(caller)
	if err != nil {
		return mapErr(err)
	}
	dst, err := a.k.Get(target)
	if err != nil {
		return mapErr(err)
	}
	if !mayKill(sender, dst, signo) {
		a.logger.Debug("kill denied",
			"caller", int(caller), "target", int(target), "signal", signo)
		return EPERM
	}
	if signo == 0 {
		return nil
	}
	info := sig.NewInfo(signo, sig.SourceProcess).WithSender(int(caller), sender.UID)
	var flags uint32
	if !sig.IsRealtime(signo) {
		flags = kernel.FlagCoalesce
	}
	return mapErr(a.k.Generate(target, signo, info, flags))
}

// Sigqueue sends a realtime signal carrying a value. Standard signals
// are accepted too, but their value is dropped if the instance
// coalesces.
func (a *API) Sigqueue(caller, target kernel.PID, signo, value int) error {
	if !sig.Valid(signo) {
		return EINVAL
	}
	sender, err := a.k.Get(caller)
	if err != nil {
		return mapErr(err)
	}
	dst, err := a.k.Get(target)
	if err != nil {
		return mapErr(err)
	}
	if !mayKill(sender, dst, signo) {
		return EPERM
	}
	info := sig.NewInfo(signo, sig.SourceProcess).
		WithSender(int(caller), sender.UID).
		WithValue(value)
	return mapErr(a.k.Generate(target, signo, info, 0))
}

// Sigaction installs a new disposition for signo and returns the old
// one. A nil act queries without changing anything.
func (a *API) Sigaction(caller kernel.PID, signo int, act *sig.Action) (sig.Action, error) {
	if act == nil {
		old, err := a.k.GetAction(caller, signo)
		return old, mapErr(err)
	}
	old, err := a.k.SetAction(caller, signo, *act)
	return old, mapErr(err)
}

// Sigprocmask alters the caller's blocked set and returns the previous
// set.
func (a *API) Sigprocmask(caller kernel.PID, how sig.How, set sig.Set) (sig.Set, error) {
	old, err := a.k.ChangeMask(caller, how, set)
	return old, mapErr(err)
}

// Sigpending returns the caller's pending set.
func (a *API) Sigpending(caller kernel.PID) (sig.Set, error) {
	set, err := a.k.Pending(caller)
	return set, mapErr(err)
}

// Sigsuspend atomically installs mask until a signal is delivered.
func (a *API) Sigsuspend(caller kernel.PID, mask sig.Set) error {
	return mapErr(a.k.Suspend(caller, mask))
}

// Sigaltstack installs an alternate handler stack and returns the old
// one. A nil st queries.
func (a *API) Sigaltstack(caller kernel.PID, st *sig.AltStack) (sig.AltStack, error) {
	if st == nil {
		old, err := a.k.AltStack(caller)
		return old, mapErr(err)
	}
	old, err := a.k.SetAltStack(caller, *st)
	return old, mapErr(err)
}

// Alarm arms a SIGALRM after the given seconds, returning the seconds
// left on any previous alarm.
func (a *API) Alarm(caller kernel.PID, seconds int) (int, error) {
	if seconds < 0 {
		return 0, EINVAL
	}
	rem, err := a.k.Alarm(caller, seconds)
	return rem, mapErr(err)
}

// Pause blocks until a signal is delivered to the caller, then
// returns EINTR, matching the POSIX contract.
func (a *API) Pause(ctx context.Context, caller kernel.PID) error {
	start, err := a.k.DeliveredCount(caller)
	if err != nil {
		return mapErr(err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
		n, err := a.k.DeliveredCount(caller)
		if err != nil {
			return mapErr(err)
		}
		if n > start {
			return EINTR
		}
	}
}

// Sigwaitinfo blocks until a signal in set is pending on the caller
// and consumes it without running its disposition.
func (a *API) Sigwaitinfo(ctx context.Context, caller kernel.PID, set sig.Set) (sig.Info, error) {
	for {
		info, ok, err := a.k.ConsumePending(caller, set)
		if err != nil {
			return sig.Info{}, mapErr(err)
		}
		if ok {
			return info, nil
		}
		select {
		case <-ctx.Done():
			return sig.Info{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Sigtimedwait is Sigwaitinfo with a deadline. It returns EAGAIN when
// the timeout expires with nothing pending.
func (a *API) Sigtimedwait(ctx context.Context, caller kernel.PID, set sig.Set, timeout time.Duration) (sig.Info, error) {
	deadline := time.Now().Add(timeout)
	for {
		info, ok, err := a.k.ConsumePending(caller, set)
		if err != nil {
			return sig.Info{}, mapErr(err)
		}
		if ok {
			return info, nil
		}
		if timeout <= 0 || !time.Now().Before(deadline) {
			return sig.Info{}, EAGAIN
		}
		select {
		case <-ctx.Done():
			return sig.Info{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Exit terminates the caller with the given code.
func (a *API) Exit(caller kernel.PID, code int) error {
	return mapErr(a.k.Exit(caller, code))
}

// Wait blocks until any child of the caller exits and reaps it.
func (a *API) Wait(caller kernel.PID) (kernel.PID, WaitStatus, error) {
	return a.Waitpid(caller, 0, 0)
}

// Waitpid reaps an exited child. pid selects a specific child when
// positive, any child otherwise. WNOHANG returns PID 0 instead of
// blocking when nothing is reapable.
func (a *API) Waitpid(caller, pid kernel.PID, options int) (kernel.PID, WaitStatus, error) {
	got, st, err := a.k.WaitPid(caller, pid, options)
	if err != nil {
		return 0, 0, mapErr(err)
	}
	if got == 0 {
		return 0, 0, nil
	}
	return got, EncodeStatus(st.ExitCode, st.KilledBy), nil
}
