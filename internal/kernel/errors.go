package kernel

import "errors"

var (
	// ErrNoSuchProcess means the target PID does not exist.
	ErrNoSuchProcess = errors.New("no such process")

	// ErrNoSuchChild means the caller has no children matching a wait request.
	ErrNoSuchChild = errors.New("no child processes")

	// ErrTableFull means the process table has no free slots.
	ErrTableFull = errors.New("process table full")

	// ErrBadState means an operation was attempted in an incompatible
	// lifecycle state.
	ErrBadState = errors.New("invalid process state")

	// ErrInterrupted means a blocked wait was aborted because the
	// waiting process itself was terminated.
	ErrInterrupted = errors.New("interrupted system call")
)
