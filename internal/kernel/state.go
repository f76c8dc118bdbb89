package kernel

import (
	"fmt"
	"time"
)

// State represents a process lifecycle state.
type State int

const (
	Ready      State = iota // READY: runnable, waiting for a CPU
	Running                 // RUNNING: currently executing
	Blocked                 // BLOCKED: waiting for a child to exit
	Stopped                 // STOPPED: suspended by a stop signal
	Zombie                  // ZOMBIE: exited, status not yet reaped
	Terminated              // TERMINATED: slot freed
)

var stateNames = [...]string{
	"READY", "RUNNING", "BLOCKED", "STOPPED", "ZOMBIE", "TERMINATED",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("UNKNOWN(%d)", s)
}

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Ready:      {Running, Stopped, Zombie, Terminated},
	Running:    {Ready, Blocked, Stopped, Zombie, Terminated},
	Blocked:    {Ready, Zombie, Terminated},
	Stopped:    {Ready, Zombie, Terminated},
	Zombie:     {Terminated},
	Terminated: {},
}

// canTransition reports whether from -> to is an allowed transition.
func canTransition(from, to State) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// CancelFunc stops a scheduled timer. It reports whether the timer was
// still pending.
type CancelFunc func() bool

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) CancelFunc
}

// realClock uses the system clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) CancelFunc {
	t := time.AfterFunc(d, f)
	return t.Stop
}

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock { return realClock{} }
