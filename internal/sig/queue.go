package sig

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned when a queue is at capacity. The signal is
// dropped; existing entries are never displaced.
var ErrQueueFull = errors.New("signal queue full")

const none = -1

// entry is a queue node. Entries live in a fixed arena and link to each
// other by index, so the hot path never touches a general allocator.
type entry struct {
	signal     int
	info       Info
	priority   int
	flags      uint32
	seq        uint64
	enqueued   time.Time
	prev, next int
}

// Queue holds the pending instances of one signal number for one
// process, ordered by priority then arrival. Safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	arena    []entry
	free     []int // stack of unused arena slots
	head     int
	tail     int
	count    int
	maxSize  int
	realtime bool
	nextSeq  uint64
}

// NewQueue creates a queue with a fixed capacity arena.
func NewQueue(maxSize int, realtime bool) *Queue {
	q := &Queue{
		arena:    make([]entry, maxSize),
		free:     make([]int, maxSize),
		head:     none,
		tail:     none,
		maxSize:  maxSize,
		realtime: realtime,
	}
	for i := range q.free {
		q.free[i] = maxSize - 1 - i
	}
	return q
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return q.maxSize }

// Realtime reports whether this queue holds a real-time signal.
func (q *Queue) Realtime() bool { return q.realtime }

// Enqueue inserts an instance in priority order. Entries of equal
// priority keep arrival order. Returns ErrQueueFull at capacity.
func (q *Queue) Enqueue(signal int, info Info, priority int, flags uint32, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count >= q.maxSize {
		return ErrQueueFull
	}

	idx := q.free[len(q.free)-1]
	q.free = q.free[:len(q.free)-1]

	q.nextSeq++
	q.arena[idx] = entry{
		signal:   signal,
		info:     info,
		priority: priority,
		flags:    flags,
		seq:      q.nextSeq,
		enqueued: now,
		prev:     none,
		next:     none,
	}
	q.insertOrdered(idx)
	q.count++
	return nil
}

// insertOrdered links idx into the list, keeping ascending priority and
// FIFO order among equal priorities. Caller holds mu.
func (q *Queue) insertOrdered(idx int) {
	e := &q.arena[idx]

	if q.head == none {
		q.head, q.tail = idx, idx
		return
	}

	if e.priority < q.arena[q.head].priority {
		e.next = q.head
		q.arena[q.head].prev = idx
		q.head = idx
		return
	}

	cur := q.head
	for q.arena[cur].next != none && q.arena[q.arena[cur].next].priority <= e.priority {
		cur = q.arena[cur].next
	}

	e.next = q.arena[cur].next
	e.prev = cur
	if e.next != none {
		q.arena[e.next].prev = idx
	} else {
		q.tail = idx
	}
	q.arena[cur].next = idx
}

// Dequeue removes and returns the head entry. ok is false when empty.
func (q *Queue) Dequeue() (info Info, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == none {
		return Info{}, false
	}

	idx := q.head
	info = q.arena[idx].info

	q.head = q.arena[idx].next
	if q.head != none {
		q.arena[q.head].prev = none
	} else {
		q.tail = none
	}
	q.count--
	q.release(idx)
	return info, true
}

// Peek returns the head entry without removing it.
func (q *Queue) Peek() (info Info, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == none {
		return Info{}, false
	}
	return q.arena[q.head].info, true
}

// Clear removes all entries and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cleared := q.count
	for idx := q.head; idx != none; {
		next := q.arena[idx].next
		q.release(idx)
		idx = next
	}
	q.head, q.tail, q.count = none, none, 0
	return cleared
}

// release returns an arena slot to the free list. Caller holds mu.
func (q *Queue) release(idx int) {
	q.arena[idx] = entry{}
	q.free = append(q.free, idx)
}
