// Package kernel implements the signal delivery engine and the process
// termination, zombie, and wait state machine.
package kernel

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/osirisdev/osiris/internal/events"
	"github.com/osirisdev/osiris/internal/metrics"
	"github.com/osirisdev/osiris/internal/sig"
)

// Config sets the fixed limits of a kernel instance.
type Config struct {
	// MaxProcesses is the process table capacity, including init.
	MaxProcesses int
	// StdQueueSize caps the per-signal queue for standard signals.
	StdQueueSize int
	// RTQueueSize caps the per-signal queue for realtime signals.
	RTQueueSize int
	// MaxPending caps the total queued entries per process across all
	// signal numbers. Zero means no cap.
	MaxPending int
}

// Scheduler is notified when processes become runnable or stop being
// runnable. Implementations must not call back into the kernel.
type Scheduler interface {
	AddReady(pid PID)
	RemoveReady(pid PID)
	Yield()
}

type noopScheduler struct{}

func (noopScheduler) AddReady(PID)    {}
func (noopScheduler) RemoveReady(PID) {}
func (noopScheduler) Yield()          {}

// HandlerInvoker dispatches a caught signal to the registered handler.
// Implementations must not call back into the kernel.
type HandlerInvoker interface {
	Invoke(pid PID, handlerID int, info sig.Info) error
}

type noopInvoker struct{}

func (noopInvoker) Invoke(PID, int, sig.Info) error { return nil }

// Cleanup releases one category of per-process resources at exit. Fn
// returns the number of resources released. Errors are logged, never
// propagated: exit cannot fail.
type Cleanup struct {
	Name string
	Fn   func(pid PID) (int, error)
}

// Options holds optional collaborators for New. Zero values select
// working defaults.
type Options struct {
	Clock    Clock
	Sched    Scheduler
	Invoker  HandlerInvoker
	Bus      *events.Bus
	Metrics  *metrics.Collector
	Cleanups []Cleanup
}

// counters aggregates kernel-wide statistics. Guarded by the kernel
// mutex.
type counters struct {
	generated        uint64
	delivered        uint64
	blocked          uint64
	coalesced        uint64
	discarded        uint64
	overflows        uint64
	deliveryFailures uint64

	exits     uint64
	kills     uint64
	forced    uint64
	reaps     uint64
	reparents uint64
	waits     uint64

	deliveryTotal time.Duration
	deliveryMax   time.Duration
}

// Kernel owns the process table and the signal pipeline. A single mutex
// guards all process and delivery state; per-call work is bounded so
// the coarse lock does not serialize anything long-running.
type Kernel struct {
	mu       sync.Mutex
	cfg      Config
	logger   *slog.Logger
	clock    Clock
	sched    Scheduler
	invoker  HandlerInvoker
	bus      *events.Bus
	metrics  *metrics.Collector
	cleanups []Cleanup

	table     *table
	stats     counters
	startedAt time.Time
}

// New creates a kernel with an init process (PID 1, RUNNING) already in
// the table.
func New(cfg Config, logger *slog.Logger, opts Options) *Kernel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxProcesses < 2 {
		cfg.MaxProcesses = 2
	}
	if cfg.StdQueueSize < 1 {
		cfg.StdQueueSize = 1
	}
	if cfg.RTQueueSize < 1 {
		cfg.RTQueueSize = 1
	}
	k := &Kernel{
		cfg:      cfg,
		logger:   logger,
		clock:    opts.Clock,
		sched:    opts.Sched,
		invoker:  opts.Invoker,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		cleanups: opts.Cleanups,
		table:    newTable(cfg.MaxProcesses),
	}
	if k.clock == nil {
		k.clock = RealClock()
	}
	if k.sched == nil {
		k.sched = noopScheduler{}
	}
	if k.invoker == nil {
		k.invoker = noopInvoker{}
	}
	k.startedAt = k.clock.Now()

	init, _ := k.table.alloc()
	init.Name = "init"
	init.state = Running
	init.createdAt = k.startedAt
	init.Session = 1
	return k
}

// publish emits a bus event if a bus is configured. Caller holds the
// kernel mutex; bus handlers must be quick and must not call back in.
func (k *Kernel) publish(t events.EventType, pid PID, data map[string]string) {
	if k.bus == nil {
		return
	}
	if data == nil {
		data = map[string]string{}
	}
	data["pid"] = strconv.Itoa(int(pid))
	k.bus.Publish(events.Event{Type: t, Data: data})
}

// Spawn creates a new process as a child of ppid.
func (k *Kernel) Spawn(name string, ppid PID, uid, gid int) (PID, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	parent := k.table.lookup(ppid)
	if parent == nil {
		return 0, ErrNoSuchProcess
	}
	p, err := k.table.alloc()
	if err != nil {
		return 0, err
	}
	p.Name = name
	p.PPID = ppid
	p.UID = uid
	p.GID = gid
	p.Session = parent.Session
	p.createdAt = k.clock.Now()
	parent.children = append(parent.children, p.PID)

	k.sched.AddReady(p.PID)
	k.publish(events.ProcessCreated, p.PID, map[string]string{"name": name, "ppid": strconv.Itoa(int(ppid))})
	k.logger.Debug("process created", "pid", int(p.PID), "ppid", int(ppid), "name", name)
	return p.PID, nil
}

// Start transitions a READY process to RUNNING and delivers anything
// that became pending while it was off-CPU.
func (k *Kernel) Start(pid PID) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return ErrNoSuchProcess
	}
	if err := k.setState(p, Running); err != nil {
		return err
	}
	k.sched.RemoveReady(pid)
	k.publish(events.ProcessRunning, pid, nil)
	k.deliverPendingLocked(p)
	return nil
}

// Preempt transitions a RUNNING process back to READY.
func (k *Kernel) Preempt(pid PID) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return ErrNoSuchProcess
	}
	if err := k.setState(p, Ready); err != nil {
		return err
	}
	k.sched.AddReady(pid)
	return nil
}

// setState performs a checked lifecycle transition.
func (k *Kernel) setState(p *Process, to State) error {
	if p.state == to {
		return nil
	}
	if !canTransition(p.state, to) {
		k.logger.Warn("invalid state transition",
			"pid", int(p.PID), "from", p.state.String(), "to", to.String())
		return ErrBadState
	}
	p.state = to
	return nil
}

// Get returns a snapshot of a live process.
func (k *Kernel) Get(pid PID) (Snapshot, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p := k.table.lookup(pid)
	if p == nil {
		return Snapshot{}, ErrNoSuchProcess
	}
	return p.snapshot(), nil
}

// List returns snapshots of all live processes, ordered by PID slot.
func (k *Kernel) List() []Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]Snapshot, 0, k.table.used())
	k.table.each(func(p *Process) {
		out = append(out, p.snapshot())
	})
	return out
}

// updateGauges refreshes per-state gauges. Caller holds the mutex.
func (k *Kernel) updateGauges() {
	if k.metrics == nil {
		return
	}
	byState := map[State]int{}
	k.table.each(func(p *Process) { byState[p.state]++ })
	for s := Ready; s <= Zombie; s++ {
		k.metrics.SetProcessCount(s.String(), byState[s])
	}
	k.metrics.SetZombieCount(byState[Zombie])
}
