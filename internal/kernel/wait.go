package kernel

import (
	"strconv"
	"time"

	"github.com/osirisdev/osiris/internal/events"
)

// Wait option bits.
const (
	WNOHANG    = 1 // return immediately if no child has exited
	WUNTRACED  = 2 // accepted, not yet reported
	WCONTINUED = 4 // accepted, not yet reported
)

// WaitStatus carries a reaped child's termination record. KilledBy is
// nonzero if a fatal signal ended the child.
type WaitStatus struct {
	ExitCode int
	KilledBy int
}

type waitResult struct {
	pid      PID
	exitCode int
	killedBy int
	err      error
}

// Wait reaps any exited child of caller, blocking until one exits.
func (k *Kernel) Wait(caller PID) (PID, WaitStatus, error) {
	return k.WaitPid(caller, 0, 0)
}

// WaitPid reaps an exited child of caller. pid selects a specific child
// when positive, any child when zero or negative. With WNOHANG set and
// no zombie available it returns PID 0 instead of blocking. With no
// matching children at all it returns ErrNoSuchChild.
func (k *Kernel) WaitPid(caller, pid PID, options int) (PID, WaitStatus, error) {
	k.mu.Lock()

	p := k.table.lookup(caller)
	if p == nil {
		k.mu.Unlock()
		return 0, WaitStatus{}, ErrNoSuchProcess
	}
	k.stats.waits++

	if z := k.findZombieLocked(p, pid); z != nil {
		st := WaitStatus{ExitCode: z.exitCode, KilledBy: z.killedBy}
		zpid := z.PID
		k.reapLocked(p, z)
		if k.metrics != nil {
			k.metrics.IncWaitCall("reaped")
		}
		k.mu.Unlock()
		return zpid, st, nil
	}

	if !k.hasMatchingChildLocked(p, pid) {
		if k.metrics != nil {
			k.metrics.IncWaitCall("nochild")
		}
		k.mu.Unlock()
		return 0, WaitStatus{}, ErrNoSuchChild
	}

	if options&WNOHANG != 0 {
		if k.metrics != nil {
			k.metrics.IncWaitCall("nohang")
		}
		k.mu.Unlock()
		return 0, WaitStatus{}, nil
	}

	// Block until a matching child exits. The exit path completes the
	// reap, restores the caller to READY, and sends the result; the
	// buffered channel keeps the sender from parking inside exit.
	ch := make(chan waitResult, 1)
	p.waiting = true
	p.waitingFor = 0
	if pid > 0 {
		p.waitingFor = pid
	}
	p.waitCh = ch
	p.state = Blocked
	k.sched.RemoveReady(caller)
	k.publish(events.ProcessBlocked, caller, map[string]string{"waiting_for": strconv.Itoa(int(p.waitingFor))})
	if k.metrics != nil {
		k.metrics.IncWaitCall("blocked")
	}
	k.mu.Unlock()

	res := <-ch
	if res.err != nil {
		return 0, WaitStatus{}, res.err
	}
	return res.pid, WaitStatus{ExitCode: res.exitCode, KilledBy: res.killedBy}, nil
}

// abortWaitLocked wakes a process blocked in a wait call because the
// waiter itself is being torn down. The blocked WaitPid returns err.
// Caller holds the mutex.
func (k *Kernel) abortWaitLocked(p *Process, err error) {
	if !p.waiting {
		return
	}
	p.waiting = false
	p.waitingFor = 0
	ch := p.waitCh
	p.waitCh = nil
	if ch != nil {
		ch <- waitResult{err: err}
	}
}

// findZombieLocked returns the first zombie child of p matching pid
// (0 or negative selects any). Caller holds the mutex.
func (k *Kernel) findZombieLocked(p *Process, pid PID) *Process {
	for _, zpid := range p.zombies {
		if pid > 0 && zpid != pid {
			continue
		}
		if z := k.table.lookup(zpid); z != nil {
			return z
		}
	}
	return nil
}

// hasMatchingChildLocked reports whether p has any child, live or
// zombie, matching pid.
func (k *Kernel) hasMatchingChildLocked(p *Process, pid PID) bool {
	if pid <= 0 {
		return len(p.children) > 0 || len(p.zombies) > 0
	}
	for _, c := range p.children {
		if c == pid {
			return true
		}
	}
	for _, z := range p.zombies {
		if z == pid {
			return true
		}
	}
	return false
}

// reapLocked frees a zombie child's slot and records the reap. Caller
// holds the mutex.
func (k *Kernel) reapLocked(parent, z *Process) {
	parent.zombies = removePID(parent.zombies, z.PID)
	z.state = Terminated
	k.table.release(z)

	k.stats.reaps++
	if k.metrics != nil {
		k.metrics.ProcessReapTotal.Inc()
	}
	k.publish(events.ProcessReaped, z.PID, map[string]string{
		"parent":    strconv.Itoa(int(parent.PID)),
		"exit_code": strconv.Itoa(z.exitCode),
	})
	k.logger.Debug("zombie reaped", "pid", int(z.PID), "parent", int(parent.PID))
	k.updateGauges()
}

// SweepZombies reaps zombies that have sat unreaped longer than maxAge.
// It returns the number of slots reclaimed. A zero maxAge reaps every
// zombie.
func (k *Kernel) SweepZombies(maxAge time.Duration) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.clock.Now()
	var stale []*Process
	k.table.each(func(p *Process) {
		if p.state == Zombie && now.Sub(p.exitedAt) >= maxAge {
			stale = append(stale, p)
		}
	})
	for _, z := range stale {
		parent := k.table.lookup(z.PPID)
		if parent == nil {
			parent = k.table.lookup(InitPID)
		}
		if parent == nil {
			continue
		}
		k.logger.Info("sweeping stale zombie",
			"pid", int(z.PID), "age", now.Sub(z.exitedAt).String())
		k.reapLocked(parent, z)
	}
	return len(stale)
}
