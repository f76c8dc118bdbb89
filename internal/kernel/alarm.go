package kernel

import (
	"time"

	"github.com/osirisdev/osiris/internal/sig"
)

// Alarm arms a one-shot SIGALRM for pid after the given number of
// seconds, replacing any earlier alarm. It returns the whole seconds
// that remained on the previous alarm, or 0 if none was set. Zero
// seconds cancels without arming.
func (k *Kernel) Alarm(pid PID, seconds int) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return 0, ErrNoSuchProcess
	}

	remaining := 0
	if p.alarmCancel != nil {
		if rem := p.alarmDeadline.Sub(k.clock.Now()); rem > 0 {
			remaining = int((rem + time.Second - 1) / time.Second)
		}
	}
	k.cancelAlarmLocked(p)

	if seconds <= 0 {
		return remaining, nil
	}

	d := time.Duration(seconds) * time.Second
	p.alarmDeadline = k.clock.Now().Add(d)
	p.alarmCancel = k.clock.AfterFunc(d, func() {
		info := sig.NewInfo(sig.SIGALRM, sig.SourceTimer)
		if err := k.Generate(pid, sig.SIGALRM, info, FlagCoalesce); err != nil {
			k.logger.Warn("alarm expiry not deliverable", "pid", int(pid), "error", err)
		}
	})
	return remaining, nil
}

// cancelAlarmLocked stops any armed alarm. Caller holds the mutex.
func (k *Kernel) cancelAlarmLocked(p *Process) {
	if p.alarmCancel != nil {
		p.alarmCancel()
		p.alarmCancel = nil
		p.alarmDeadline = time.Time{}
	}
}
