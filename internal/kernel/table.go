package kernel

import "github.com/osirisdev/osiris/internal/sig"

// table is a fixed-capacity process table. Slots are recycled through a
// free list; PIDs are monotonically increasing so a stale PID never
// resolves to a recycled slot.
type table struct {
	slots    []*Process
	byPID    map[PID]int
	free     []int
	nextPID  PID
	capacity int
}

func newTable(capacity int) *table {
	t := &table{
		slots:    make([]*Process, capacity),
		byPID:    make(map[PID]int, capacity),
		free:     make([]int, 0, capacity),
		nextPID:  InitPID,
		capacity: capacity,
	}
	for i := capacity - 1; i >= 0; i-- {
		t.free = append(t.free, i)
	}
	return t
}

// lookup resolves a PID to its live process, or nil.
func (t *table) lookup(pid PID) *Process {
	idx, ok := t.byPID[pid]
	if !ok {
		return nil
	}
	return t.slots[idx]
}

// alloc creates a process in a free slot. The caller fills in parentage
// bookkeeping.
func (t *table) alloc() (*Process, error) {
	if len(t.free) == 0 {
		return nil, ErrTableFull
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	p := &Process{
		PID:      t.nextPID,
		state:    Ready,
		mask:     sig.NewMaskState(),
		delivery: newDeliveryState(),
	}
	t.nextPID++
	t.slots[idx] = p
	t.byPID[p.PID] = idx
	return p, nil
}

// release frees a process slot. The process must be in TERMINATED state.
func (t *table) release(p *Process) {
	idx, ok := t.byPID[p.PID]
	if !ok {
		return
	}
	delete(t.byPID, p.PID)
	t.slots[idx] = nil
	t.free = append(t.free, idx)
}

// each calls fn for every live process.
func (t *table) each(fn func(*Process)) {
	for _, p := range t.slots {
		if p != nil {
			fn(p)
		}
	}
}

// used returns the number of occupied slots.
func (t *table) used() int { return t.capacity - len(t.free) }
