package kernel

import (
	"time"

	"github.com/osirisdev/osiris/internal/sig"
)

// PID identifies a process. PIDs are handles into the process table and
// are never reused while the owning slot is live.
type PID int

// InitPID is the PID of the init process. Orphans are reparented to it.
const InitPID PID = 1

// Process is a process table entry. All fields are guarded by the
// kernel mutex.
type Process struct {
	PID     PID
	PPID    PID
	Name    string
	UID     int
	GID     int
	Session int

	state     State
	exitCode  int
	killedBy  int // nonzero if terminated by a signal
	createdAt time.Time
	exitedAt  time.Time

	// children holds live children; zombies holds exited, unreaped
	// children. A child appears in exactly one of the two lists.
	children []PID
	zombies  []PID

	mask     *sig.MaskState
	delivery *deliveryState

	// Wait bookkeeping. waiting is true while the process is BLOCKED in
	// a wait call. waitingFor is the requested child PID, or 0 for any.
	waiting    bool
	waitingFor PID
	waitCh     chan waitResult

	// Alarm timer, at most one per process.
	alarmCancel   CancelFunc
	alarmDeadline time.Time
}

// State returns the current lifecycle state.
func (p *Process) State() State { return p.state }

// removePID deletes the first occurrence of pid from list.
func removePID(list []PID, pid PID) []PID {
	for i, v := range list {
		if v == pid {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Snapshot is a copy of observable process state, safe to use without
// holding the kernel mutex.
type Snapshot struct {
	PID       PID       `json:"pid"`
	PPID      PID       `json:"ppid"`
	Name      string    `json:"name"`
	UID       int       `json:"uid"`
	GID       int       `json:"gid"`
	Session   int       `json:"session"`
	State     string    `json:"state"`
	ExitCode  int       `json:"exit_code"`
	KilledBy  int       `json:"killed_by,omitempty"`
	Pending   []string  `json:"pending_signals,omitempty"`
	Blocked   []string  `json:"blocked_signals,omitempty"`
	Children  int       `json:"children"`
	Zombies   int       `json:"zombies"`
	CreatedAt time.Time `json:"created_at"`
	ExitedAt  time.Time `json:"exited_at,omitempty"`
}

func (p *Process) snapshot() Snapshot {
	s := Snapshot{
		PID:       p.PID,
		PPID:      p.PPID,
		Name:      p.Name,
		UID:       p.UID,
		GID:       p.GID,
		Session:   p.Session,
		State:     p.state.String(),
		ExitCode:  p.exitCode,
		KilledBy:  p.killedBy,
		Children:  len(p.children),
		Zombies:   len(p.zombies),
		CreatedAt: p.createdAt,
		ExitedAt:  p.exitedAt,
	}
	for n := 1; n < sig.NSig; n++ {
		if p.delivery.pending.Has(n) {
			s.Pending = append(s.Pending, sig.Name(n))
		}
		if p.mask.Blocked().Has(n) {
			s.Blocked = append(s.Blocked, sig.Name(n))
		}
	}
	return s
}
