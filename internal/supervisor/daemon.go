package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// WritePIDFile records the daemon PID at path. A leftover file from a
// previous run is overwritten only when its process is gone; a live
// PID means another instance still owns the path.
func WritePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if old, err := readPIDFile(path); err == nil && old != os.Getpid() && pidAlive(old) {
		return fmt.Errorf("already running as pid %d (pid file %s)", old, path)
	}
	data := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("cannot write PID file: %s: %w", path, err)
	}
	return nil
}

// RemovePIDFile removes the PID file if it exists.
func RemovePIDFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// pidAlive probes pid with signal 0. EPERM still means the process
// exists, just owned by someone else.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// getuid is a variable for test override.
var getuid = os.Getuid

// ValidateSocketPermissions checks that the control socket can be
// created at socketPath before the listener is opened.
func ValidateSocketPermissions(socketPath string) error {
	dir := filepath.Dir(socketPath)

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("socket directory does not exist: %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("socket path parent is not a directory: %s", dir)
	}

	f, err := os.CreateTemp(dir, ".osiris-sock-*")
	if err != nil {
		return fmt.Errorf("permission denied: cannot create socket in %s: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return nil
}

// Daemonize detaches from the controlling terminal with the classic
// double fork. Returns true in the original parent, which should exit.
func Daemonize(logger *slog.Logger) (bool, error) {
	pid, errno := sysFork()
	if errno != 0 {
		return false, fmt.Errorf("first fork failed: %v", errno)
	}
	if pid > 0 {
		return true, nil
	}

	if _, err := syscall.Setsid(); err != nil {
		return false, fmt.Errorf("setsid failed: %w", err)
	}

	// Second fork so the session leader exits and the daemon can never
	// reacquire a terminal.
	pid, errno = sysFork()
	if errno != 0 {
		return false, fmt.Errorf("second fork failed: %v", errno)
	}
	if pid > 0 {
		os.Exit(0)
	}

	if err := redirectStdio(); err != nil {
		return false, err
	}

	logger.Info("daemonized", "pid", os.Getpid())
	return false, nil
}

func redirectStdio() error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("cannot open /dev/null: %w", err)
	}
	defer devNull.Close()

	for _, fd := range []int{int(os.Stdin.Fd()), int(os.Stdout.Fd()), int(os.Stderr.Fd())} {
		if err := sysDup2(int(devNull.Fd()), fd); err != nil {
			return fmt.Errorf("dup2 failed: %w", err)
		}
	}
	return nil
}

// DropPrivileges switches to the configured user once the privileged
// setup (PID file, socket) is done. spec is "user", "uid",
// "user:group" or "uid:gid".
func DropPrivileges(spec string, logger *slog.Logger) error {
	if spec == "" {
		return nil
	}

	uid, gid, err := resolveUser(spec)
	if err != nil {
		return fmt.Errorf("cannot resolve user %q: %w", spec, err)
	}

	if err := syscall.Setgroups([]int{gid}); err != nil {
		return fmt.Errorf("setgroups(%d) failed: %w", gid, err)
	}
	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("setgid(%d) failed: %w", gid, err)
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("setuid(%d) failed: %w", uid, err)
	}

	logger.Info("dropped privileges", "uid", uid, "gid", gid)
	return nil
}

// resolveUser maps a "user[:group]" spec to numeric ids. Names go
// through the passwd and group databases; numeric ids pass straight
// through.
func resolveUser(spec string) (int, int, error) {
	userPart, groupPart, hasGroup := strings.Cut(spec, ":")

	uid, gid, err := lookupUID(userPart)
	if err != nil {
		return 0, 0, err
	}
	if hasGroup {
		gid, err = lookupGID(groupPart)
		if err != nil {
			return 0, 0, err
		}
	}
	return uid, gid, nil
}

func lookupUID(s string) (int, int, error) {
	if uid, err := strconv.Atoi(s); err == nil {
		return uid, uid, nil
	}
	u, err := user.Lookup(s)
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("non-numeric uid %q for user %s", u.Uid, s)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("non-numeric gid %q for user %s", u.Gid, s)
	}
	return uid, gid, nil
}

func lookupGID(s string) (int, error) {
	if gid, err := strconv.Atoi(s); err == nil {
		return gid, nil
	}
	g, err := user.LookupGroup(s)
	if err != nil {
		return 0, err
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, fmt.Errorf("non-numeric gid %q for group %s", g.Gid, s)
	}
	return gid, nil
}
