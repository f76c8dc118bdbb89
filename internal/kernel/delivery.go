package kernel

import (
	"strconv"
	"time"

	"github.com/osirisdev/osiris/internal/events"
	"github.com/osirisdev/osiris/internal/sig"
)

// Generate flags.
const (
	// FlagForce bypasses the blocked-mask check.
	FlagForce uint32 = 1 << iota
	// FlagCoalesce allows merging with an already-pending instance of
	// the same standard signal.
	FlagCoalesce
)

// deliveryState is the per-process side of the signal pipeline: one
// queue per signal number (created on first use), a pending bitmask,
// and re-entrancy bookkeeping for the dispatch loop.
type deliveryState struct {
	queues         [sig.NSig]*sig.Queue
	pending        sig.Set
	totalPending   int
	active         bool
	currentSignal  int
	deliveredCount uint64
}

func newDeliveryState() *deliveryState {
	return &deliveryState{}
}

// queue returns the queue for signo, creating it on first use.
func (d *deliveryState) queue(signo int, cfg Config) *sig.Queue {
	if d.queues[signo] == nil {
		if sig.IsRealtime(signo) {
			d.queues[signo] = sig.NewQueue(cfg.RTQueueSize, true)
		} else {
			d.queues[signo] = sig.NewQueue(cfg.StdQueueSize, false)
		}
	}
	return d.queues[signo]
}

// queued returns the number of queued entries for signo.
func (d *deliveryState) queued(signo int) int {
	if d.queues[signo] == nil {
		return 0
	}
	return d.queues[signo].Len()
}

// clear drops all queued entries and pending bits, returning the
// number of entries discarded.
func (d *deliveryState) clear() int {
	dropped := 0
	for n := 1; n < sig.NSig; n++ {
		if d.queues[n] != nil {
			dropped += d.queues[n].Clear()
		}
	}
	d.pending = sig.EmptySet()
	d.totalPending = 0
	return dropped
}

// Generate injects a signal into target's pending set. Invalid input
// fails fast; every later stage degrades instead of failing: blocked
// signals defer, coalesced duplicates merge, overflow drops.
func (k *Kernel) Generate(target PID, signo int, info sig.Info, flags uint32) error {
	if !sig.Valid(signo) {
		return sig.ErrInvalidSignal
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(target)
	if p == nil {
		return ErrNoSuchProcess
	}
	if info.Signo == 0 {
		info.Signo = signo
	}
	return k.generateLocked(p, signo, info, flags)
}

// generateLocked runs the generate pipeline against a resolved target.
// Caller holds the mutex.
func (k *Kernel) generateLocked(p *Process, signo int, info sig.Info, flags uint32) error {
	if p.state == Zombie || p.state == Terminated {
		// Exited target: nothing can be delivered, drop silently.
		k.stats.discarded++
		return nil
	}
	if info.Timestamp.IsZero() {
		info.Timestamp = k.clock.Now()
	}
	k.stats.generated++
	if k.metrics != nil {
		k.metrics.IncSignalGenerated(sig.Name(signo))
	}
	k.publish(events.SignalGenerated, p.PID, map[string]string{
		"signal": sig.Name(signo),
		"sender": strconv.Itoa(info.SenderPID),
	})

	// SIGCONT resumes a stopped target at generation time, before any
	// mask or disposition is consulted.
	if signo == sig.SIGCONT && p.state == Stopped {
		k.continueLocked(p)
	}

	blocked := p.mask.IsBlocked(signo) && flags&FlagForce == 0

	if blocked && !sig.IsRealtime(signo) {
		// A blocked standard signal is recorded as a pending bit only.
		// Repeats while blocked collapse into the same bit.
		p.delivery.pending.Add(signo)
		k.stats.blocked++
		if k.metrics != nil {
			k.metrics.SignalsBlocked.Inc()
		}
		return nil
	}

	if flags&FlagCoalesce != 0 && sig.CanCoalesce(signo) && p.delivery.pending.Has(signo) {
		// First instance wins; the duplicate is a no-op.
		k.stats.coalesced++
		if k.metrics != nil {
			k.metrics.SignalsCoalesced.Inc()
		}
		k.publish(events.SignalCoalesced, p.PID, map[string]string{"signal": sig.Name(signo)})
		return nil
	}

	if k.cfg.MaxPending > 0 && p.delivery.totalPending >= k.cfg.MaxPending {
		k.dropSignal(p, signo, "per-process pending cap")
		return nil
	}

	q := p.delivery.queue(signo, k.cfg)
	if err := q.Enqueue(signo, info, sig.Priority(signo), flags, k.clock.Now()); err != nil {
		// Queue overflow is non-fatal: the signal is dropped, counted,
		// and the target keeps running.
		k.dropSignal(p, signo, "queue full")
		return nil
	}
	p.delivery.pending.Add(signo)
	p.delivery.totalPending++

	// Synchronous delivery: a running target that is not already inside
	// the dispatch loop takes the signal now. A target blocked in a wait
	// call is interrupted only by a signal that would terminate it; the
	// kill path aborts the wait. Everyone else keeps the signal pending
	// until they are next scheduled.
	if !blocked && !p.delivery.active {
		switch {
		case p.state == Running:
			k.deliverPendingLocked(p)
		case p.state == Blocked && k.terminatesLocked(p, signo):
			info := k.takePending(p, signo)
			k.deliverImmediateLocked(p, signo, info)
		}
	}
	return nil
}

// terminatesLocked reports whether delivering signo to p now would run
// the terminate default action: no handler or ignore disposition
// installed, and a fatal-by-default signal. Caller holds the mutex.
func (k *Kernel) terminatesLocked(p *Process, signo int) bool {
	act, err := p.mask.GetAction(signo)
	if err == nil && act.Disposition != sig.Default {
		return false
	}
	return sig.DefaultActionFor(signo) == sig.ActionTerminate
}

func (k *Kernel) dropSignal(p *Process, signo int, reason string) {
	k.stats.discarded++
	k.stats.overflows++
	if k.metrics != nil {
		k.metrics.SignalsDiscarded.Inc()
		k.metrics.QueueOverflows.Inc()
	}
	k.publish(events.QueueOverflow, p.PID, map[string]string{
		"signal": sig.Name(signo),
		"reason": reason,
	})
	k.logger.Warn("signal dropped", "pid", int(p.PID), "signal", sig.Name(signo), "reason", reason)
}

// nextDeliverable picks the highest-priority pending, unblocked signal.
// Ties break toward the lower signal number. Returns 0 if nothing is
// deliverable.
func (p *Process) nextDeliverable() int {
	best := 0
	for n := 1; n < sig.NSig; n++ {
		if !p.delivery.pending.Has(n) || p.mask.IsBlocked(n) {
			continue
		}
		if best == 0 || sig.ComparePriority(n, best) < 0 {
			best = n
		}
	}
	return best
}

// deliverPendingLocked drains deliverable signals in priority order.
// Re-entry is refused so a handler-triggered Generate cannot recurse.
// Returns the number of signals delivered. Caller holds the mutex.
func (k *Kernel) deliverPendingLocked(p *Process) int {
	if p.delivery.active {
		return 0
	}
	p.delivery.active = true
	defer func() { p.delivery.active = false }()

	delivered := 0
	for p.state == Running {
		signo := p.nextDeliverable()
		if signo == 0 {
			break
		}
		info := k.takePending(p, signo)
		k.deliverImmediateLocked(p, signo, info)
		delivered++
	}
	return delivered
}

// takePending removes one pending instance of signo. A pending bit with
// an empty queue came from a blocked standard signal; a single entry is
// synthesized for it. The bit clears only when no instances remain.
func (k *Kernel) takePending(p *Process, signo int) sig.Info {
	var info sig.Info
	if entry, ok := p.delivery.queue(signo, k.cfg).Dequeue(); ok {
		info = entry
		p.delivery.totalPending--
	} else {
		info = sig.NewInfo(signo, sig.SourceKernel)
		info.Timestamp = k.clock.Now()
	}
	if p.delivery.queued(signo) == 0 {
		p.delivery.pending.Delete(signo)
	}
	return info
}

// deliverImmediateLocked dispatches one signal instance according to
// its disposition. Caller holds the mutex.
func (k *Kernel) deliverImmediateLocked(p *Process, signo int, info sig.Info) {
	p.delivery.currentSignal = signo
	defer func() { p.delivery.currentSignal = 0 }()

	act, err := p.mask.GetAction(signo)
	if err != nil {
		act = sig.Action{Disposition: sig.Default}
	}

	switch act.Disposition {
	case sig.Ignore:
		// Counted as delivered; no state changes.
	case sig.Handler:
		if err := k.invoker.Invoke(p.PID, act.HandlerID, info); err != nil {
			k.stats.deliveryFailures++
			if k.metrics != nil {
				k.metrics.DeliveryFailures.Inc()
			}
			k.logger.Error("handler invocation failed",
				"pid", int(p.PID), "signal", sig.Name(signo), "error", err)
		}
	default:
		k.defaultActionLocked(p, signo)
	}

	p.delivery.deliveredCount++
	k.recordDelivery(signo, info)
	k.publish(events.SignalDelivered, p.PID, map[string]string{"signal": sig.Name(signo)})
}

// defaultActionLocked applies the POSIX default action for signo.
func (k *Kernel) defaultActionLocked(p *Process, signo int) {
	switch sig.DefaultActionFor(signo) {
	case sig.ActionIgnore:
		// CHLD, URG, WINCH: discard.
	case sig.ActionStop:
		k.stopLocked(p, signo)
	case sig.ActionContinue:
		k.continueLocked(p)
	default:
		k.killLocked(p, signo)
	}
}

func (k *Kernel) recordDelivery(signo int, info sig.Info) {
	k.stats.delivered++
	var dur time.Duration
	if !info.Timestamp.IsZero() {
		dur = k.clock.Now().Sub(info.Timestamp)
		if dur < 0 {
			dur = 0
		}
		k.stats.deliveryTotal += dur
		if dur > k.stats.deliveryMax {
			k.stats.deliveryMax = dur
		}
	}
	if k.metrics != nil {
		k.metrics.IncSignalDelivered(sig.Name(signo))
		k.metrics.ObserveDelivery(dur.Seconds())
	}
}

// ConsumePending removes and returns one pending instance of a signal
// in set, highest priority first, without running its disposition. The
// second return is false when nothing in set is pending.
func (k *Kernel) ConsumePending(pid PID, set sig.Set) (sig.Info, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return sig.Info{}, false, ErrNoSuchProcess
	}
	best := 0
	for n := 1; n < sig.NSig; n++ {
		if !set.Has(n) || !p.delivery.pending.Has(n) {
			continue
		}
		if best == 0 || sig.ComparePriority(n, best) < 0 {
			best = n
		}
	}
	if best == 0 {
		return sig.Info{}, false, nil
	}
	return k.takePending(p, best), true, nil
}

// DeliveredCount returns the number of signals delivered to pid over
// its lifetime.
func (k *Kernel) DeliveredCount(pid PID) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return 0, ErrNoSuchProcess
	}
	return p.delivery.deliveredCount, nil
}

// Pending returns the pending signal set for pid.
func (k *Kernel) Pending(pid PID) (sig.Set, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return sig.EmptySet(), ErrNoSuchProcess
	}
	return p.delivery.pending, nil
}

// ChangeMask alters pid's blocked set and, if the process is running,
// delivers anything the change unblocked.
func (k *Kernel) ChangeMask(pid PID, how sig.How, set sig.Set) (sig.Set, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return sig.EmptySet(), ErrNoSuchProcess
	}
	old, err := p.mask.Change(how, set)
	if err != nil {
		return old, err
	}
	if p.state == Running {
		k.deliverPendingLocked(p)
	}
	return old, nil
}

// SetAction installs a disposition for signo on pid.
func (k *Kernel) SetAction(pid PID, signo int, act sig.Action) (sig.Action, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return sig.Action{}, ErrNoSuchProcess
	}
	return p.mask.SetAction(signo, act)
}

// GetAction reports the current disposition for signo on pid.
func (k *Kernel) GetAction(pid PID, signo int) (sig.Action, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return sig.Action{}, ErrNoSuchProcess
	}
	return p.mask.GetAction(signo)
}

// Suspend atomically swaps pid's mask and will restore it after the
// next delivery completes.
func (k *Kernel) Suspend(pid PID, mask sig.Set) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return ErrNoSuchProcess
	}
	p.mask.Suspend(mask)
	if p.state == Running {
		if k.deliverPendingLocked(p) > 0 {
			p.mask.Restore()
		}
	}
	return nil
}

// SetAltStack records the alternate handler stack for pid.
func (k *Kernel) SetAltStack(pid PID, st sig.AltStack) (sig.AltStack, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return sig.AltStack{}, ErrNoSuchProcess
	}
	return p.mask.SetAltStack(st), nil
}

// AltStack reports the alternate handler stack for pid.
func (k *Kernel) AltStack(pid PID) (sig.AltStack, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return sig.AltStack{}, ErrNoSuchProcess
	}
	return p.mask.AltStack(), nil
}
