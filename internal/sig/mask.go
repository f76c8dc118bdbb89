package sig

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// How selects the sigprocmask mutation mode.
type How int

const (
	Block How = iota
	Unblock
	SetMask
)

// ErrInvalidSignal is returned for out-of-range signal numbers and for
// attempts to change the action of SIGKILL/SIGSTOP.
var ErrInvalidSignal = errors.New("invalid signal")

// Disposition is the tagged variant replacing raw SIG_DFL/SIG_IGN
// sentinel pointers.
type Disposition int

const (
	// Default runs the signal's default action on delivery.
	Default Disposition = iota
	// Ignore discards the signal on delivery.
	Ignore
	// Handler hands delivery off to a registered handler.
	Handler
)

var dispositionNames = [...]string{"default", "ignore", "handler"}

func (d Disposition) String() string {
	if int(d) < len(dispositionNames) {
		return dispositionNames[d]
	}
	return "unknown"
}

// Action describes what delivery does for one signal.
type Action struct {
	Disposition Disposition
	HandlerID   int // opaque reference into the handler-execution mechanism
	Mask        Set // additionally blocked while the handler runs
	Flags       uint32
}

// AltStack describes an alternate signal stack.
type AltStack struct {
	Base     uint64
	Size     uint64
	Disabled bool
}

// MaskState holds one process's blocked set, saved mask, action table,
// and alternate stack. Mutators take the lock; the hot "is this signal
// deliverable" check reads an atomic mirror of the blocked set and is
// double-checked under lock before queue state is mutated.
type MaskState struct {
	mu          sync.Mutex
	blocked     atomic.Uint64
	saved       Set
	suspended   bool
	actions     [NSig]Action
	altStack    AltStack
	maskChanges uint64
}

// NewMaskState returns a mask state with the POSIX default dispositions
// (Ignore for SIGCHLD/SIGURG/SIGWINCH, Default otherwise).
func NewMaskState() *MaskState {
	m := &MaskState{altStack: AltStack{Disabled: true}}
	for n := 1; n < NSig; n++ {
		if IsIgnoredByDefault(n) {
			m.actions[n] = Action{Disposition: Ignore}
		}
	}
	return m
}

// Blocked returns a lock-free snapshot of the blocked set.
func (m *MaskState) Blocked() Set { return FromMask(m.blocked.Load()) }

// IsBlocked reports whether signal n is currently masked. SIGKILL and
// SIGSTOP are never blocked.
func (m *MaskState) IsBlocked(n int) bool {
	if Unblockable.Has(n) {
		return false
	}
	return m.Blocked().Has(n)
}

// Change atomically updates the blocked set and returns the previous
// one. Attempts to block SIGKILL/SIGSTOP are silently stripped, never
// rejected, matching POSIX sigprocmask.
func (m *MaskState) Change(how How, set Set) (old Set, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old = FromMask(m.blocked.Load())

	var next Set
	switch how {
	case Block:
		next = old.Union(set)
	case Unblock:
		next = old.Intersect(set.Not())
	case SetMask:
		next = set
	default:
		return old, fmt.Errorf("sigprocmask: bad how %d: %w", how, ErrInvalidSignal)
	}

	m.storeBlocked(next)
	m.maskChanges++
	return old, nil
}

// storeBlocked installs a new blocked set with unblockable signals
// stripped. Caller holds mu.
func (m *MaskState) storeBlocked(s Set) {
	m.blocked.Store(s.Intersect(Unblockable.Not()).Mask())
}

// Suspend saves the current mask and installs a temporary one, the
// sigsuspend entry half.
func (m *MaskState) Suspend(mask Set) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = FromMask(m.blocked.Load())
	m.suspended = true
	m.storeBlocked(mask)
}

// Restore reinstalls the mask saved by Suspend. Calling it without a
// prior Suspend is a no-op.
func (m *MaskState) Restore() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.suspended {
		return
	}
	m.storeBlocked(m.saved)
	m.suspended = false
}

// SetAction replaces the action for a signal and returns the previous
// one. Fails with ErrInvalidSignal for SIGKILL, SIGSTOP, and
// out-of-range numbers.
func (m *MaskState) SetAction(n int, act Action) (old Action, err error) {
	if !Valid(n) || Unblockable.Has(n) {
		return Action{}, fmt.Errorf("sigaction %d: %w", n, ErrInvalidSignal)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old = m.actions[n]
	act.Mask = act.Mask.Intersect(Unblockable.Not())
	m.actions[n] = act
	return old, nil
}

// GetAction returns the current action for a signal.
func (m *MaskState) GetAction(n int) (Action, error) {
	if !Valid(n) {
		return Action{}, fmt.Errorf("sigaction %d: %w", n, ErrInvalidSignal)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.actions[n], nil
}

// ResetAction restores the default disposition for a signal, used when
// tearing down a handler.
func (m *MaskState) ResetAction(n int) error {
	if !Valid(n) || Unblockable.Has(n) {
		return fmt.Errorf("sigaction %d: %w", n, ErrInvalidSignal)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if IsIgnoredByDefault(n) {
		m.actions[n] = Action{Disposition: Ignore}
	} else {
		m.actions[n] = Action{}
	}
	return nil
}

// SetAltStack installs an alternate signal stack and returns the
// previous descriptor.
func (m *MaskState) SetAltStack(st AltStack) (old AltStack) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old = m.altStack
	m.altStack = st
	return old
}

// AltStack returns the current alternate stack descriptor.
func (m *MaskState) AltStack() AltStack {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.altStack
}

// MaskChanges returns how many times the blocked set has been mutated.
func (m *MaskState) MaskChanges() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maskChanges
}
