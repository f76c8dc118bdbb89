// Package sys is the syscall boundary: it validates arguments, applies
// the permission model, encodes wait statuses, and maps internal
// failures onto POSIX errno values.
package sys

import (
	"errors"
	"strconv"
)

// Errno is a POSIX error number.
type Errno int

const (
	EPERM  Errno = 1  // operation not permitted
	ESRCH  Errno = 3  // no such process
	EINTR  Errno = 4  // interrupted call
	ECHILD Errno = 10 // no child processes
	EAGAIN Errno = 11 // resource temporarily unavailable
	EFAULT Errno = 14 // bad address
	EINVAL Errno = 22 // invalid argument
)

var errnoNames = map[Errno]string{
	EPERM:  "EPERM",
	ESRCH:  "ESRCH",
	EINTR:  "EINTR",
	ECHILD: "ECHILD",
	EAGAIN: "EAGAIN",
	EFAULT: "EFAULT",
	EINVAL: "EINVAL",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return "errno(" + strconv.Itoa(int(e)) + ")"
}

// AsErrno extracts the Errno from err, or 0 if err carries none.
func AsErrno(err error) Errno {
	var e Errno
	if errors.As(err, &e) {
		return e
	}
	return 0
}
