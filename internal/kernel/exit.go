package kernel

import (
	"strconv"

	"github.com/osirisdev/osiris/internal/events"
	"github.com/osirisdev/osiris/internal/sig"
)

// Exit terminates pid voluntarily with the given exit code. Exit never
// fails on a live process: every teardown step degrades rather than
// aborts.
func (k *Kernel) Exit(pid PID, code int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return ErrNoSuchProcess
	}
	if p.state == Zombie || p.state == Terminated {
		return nil
	}
	p.exitCode = code
	k.stats.exits++
	if k.metrics != nil {
		k.metrics.IncProcessExit("exit")
	}
	k.exitLocked(p)
	return nil
}

// Kill terminates pid as the effect of a fatal signal. The exit code is
// 128 plus the signal number, mirroring shell conventions.
func (k *Kernel) Kill(pid PID, signo int) error {
	if !sig.Valid(signo) {
		return sig.ErrInvalidSignal
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return ErrNoSuchProcess
	}
	if p.state == Zombie || p.state == Terminated {
		return nil
	}
	k.killLocked(p, signo)
	return nil
}

// killLocked marks p as signal-terminated and runs the common exit
// path. Caller holds the mutex.
func (k *Kernel) killLocked(p *Process, signo int) {
	p.killedBy = signo
	p.exitCode = 128 + signo
	k.stats.kills++
	if k.metrics != nil {
		k.metrics.IncProcessExit("signal")
		k.metrics.ProcessKillTotal.Inc()
	}
	k.exitLocked(p)
}

// exitLocked is the common teardown: release resources, reparent
// children, become a zombie, notify the parent. Caller holds the mutex
// and has already set exitCode and killedBy.
func (k *Kernel) exitLocked(p *Process) {
	p.exitedAt = k.clock.Now()
	k.abortWaitLocked(p, ErrInterrupted)

	for _, c := range k.cleanups {
		n, err := c.Fn(p.PID)
		if err != nil {
			k.logger.Error("cleanup failed", "pid", int(p.PID), "stage", c.Name, "error", err)
			continue
		}
		if n > 0 {
			k.logger.Debug("cleanup released resources", "pid", int(p.PID), "stage", c.Name, "count", n)
		}
	}

	if dropped := p.delivery.clear(); dropped > 0 {
		k.stats.discarded += uint64(dropped)
	}
	k.cancelAlarmLocked(p)
	k.reparentChildrenLocked(p)
	k.sched.RemoveReady(p.PID)

	p.state = Zombie
	k.publish(events.ProcessZombie, p.PID, map[string]string{
		"exit_code": strconv.Itoa(p.exitCode),
		"killed_by": strconv.Itoa(p.killedBy),
	})
	k.logger.Info("process exited",
		"pid", int(p.PID), "exit_code", p.exitCode, "killed_by", p.killedBy)

	k.notifyParentLocked(p)
	k.updateGauges()
	k.sched.Yield()
}

// reparentChildrenLocked hands p's live children and unreaped zombies
// to init.
func (k *Kernel) reparentChildrenLocked(p *Process) {
	if len(p.children) == 0 && len(p.zombies) == 0 {
		return
	}
	init := k.table.lookup(InitPID)
	move := func(list []PID, dst *[]PID) {
		for _, cpid := range list {
			c := k.table.lookup(cpid)
			if c == nil {
				continue
			}
			c.PPID = InitPID
			if init != nil && init != p {
				*dst = append(*dst, cpid)
			}
			k.stats.reparents++
			if k.metrics != nil {
				k.metrics.OrphansReparented.Inc()
			}
			k.publish(events.ProcessReparented, cpid, map[string]string{"old_ppid": strconv.Itoa(int(p.PID))})
		}
	}
	if init != nil && init != p {
		move(p.children, &init.children)
		move(p.zombies, &init.zombies)
	} else {
		move(p.children, nil)
		move(p.zombies, nil)
	}
	p.children = nil
	p.zombies = nil
}

// notifyParentLocked moves p into its parent's zombie list, sends
// SIGCHLD carrying the child status, and wakes the parent if it is
// blocked in a matching wait.
func (k *Kernel) notifyParentLocked(p *Process) {
	if p.PID == InitPID {
		return
	}
	parent := k.table.lookup(p.PPID)
	if parent == nil {
		return
	}
	parent.children = removePID(parent.children, p.PID)
	parent.zombies = append(parent.zombies, p.PID)

	info := sig.NewInfo(sig.SIGCHLD, sig.SourceKernel).WithChild(int(p.PID), p.exitCode)
	if err := k.generateLocked(parent, sig.SIGCHLD, info, FlagCoalesce); err != nil {
		k.logger.Warn("SIGCHLD notification failed",
			"pid", int(parent.PID), "child", int(p.PID), "error", err)
	}

	if parent.waiting && (parent.waitingFor == 0 || parent.waitingFor == p.PID) {
		res := waitResult{pid: p.PID, exitCode: p.exitCode, killedBy: p.killedBy}
		k.reapLocked(parent, p)
		parent.waiting = false
		parent.waitingFor = 0
		ch := parent.waitCh
		parent.waitCh = nil
		if parent.state == Blocked {
			parent.state = Ready
			k.sched.AddReady(parent.PID)
		}
		ch <- res
	}
}

// ForceKill tears pid down immediately: no zombie interval, no parent
// notification, slot freed on return.
func (k *Kernel) ForceKill(pid PID) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return ErrNoSuchProcess
	}
	p.killedBy = sig.SIGKILL
	p.exitedAt = k.clock.Now()
	k.abortWaitLocked(p, ErrInterrupted)
	p.delivery.clear()
	k.cancelAlarmLocked(p)
	k.reparentChildrenLocked(p)
	k.sched.RemoveReady(pid)

	if parent := k.table.lookup(p.PPID); parent != nil {
		parent.children = removePID(parent.children, pid)
		parent.zombies = removePID(parent.zombies, pid)
	}
	p.state = Terminated
	k.table.release(p)

	k.stats.forced++
	if k.metrics != nil {
		k.metrics.IncProcessExit("forced")
	}
	k.publish(events.ProcessForceKill, pid, nil)
	k.logger.Warn("process force-killed", "pid", int(pid))
	k.updateGauges()
	return nil
}

// stopLocked suspends p. Pending signals survive a stop and deliver
// when the process next runs.
func (k *Kernel) stopLocked(p *Process, signo int) {
	if p.state != Ready && p.state != Running {
		return
	}
	k.sched.RemoveReady(p.PID)
	p.state = Stopped
	k.publish(events.ProcessStopped, p.PID, map[string]string{"signal": sig.Name(signo)})
	k.logger.Debug("process stopped", "pid", int(p.PID), "signal", sig.Name(signo))
}

// continueLocked resumes a stopped p.
func (k *Kernel) continueLocked(p *Process) {
	if p.state != Stopped {
		return
	}
	p.state = Ready
	k.sched.AddReady(p.PID)
	k.publish(events.ProcessContinued, p.PID, nil)
	k.logger.Debug("process continued", "pid", int(p.PID))
}
