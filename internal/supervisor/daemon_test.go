package supervisor

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestWritePIDFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "osiris.pid")

	if err := WritePIDFile(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid file contains %d, want %d", pid, os.Getpid())
	}

	// Rewriting our own pid file is allowed.
	if err := WritePIDFile(path); err != nil {
		t.Fatalf("rewrite of own pid file: %v", err)
	}

	RemovePIDFile(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("pid file should be removed")
	}
}

func TestWritePIDFileEmptyPath(t *testing.T) {
	if err := WritePIDFile(""); err != nil {
		t.Fatal("empty path should be a no-op")
	}
	RemovePIDFile("")
}

func TestWritePIDFileBadDir(t *testing.T) {
	if err := WritePIDFile("/nonexistent/dir/osiris.pid"); err == nil {
		t.Fatal("expected error for unwritable directory")
	}
}

func TestWritePIDFileStaleOverwritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "osiris.pid")

	// PID 0 never names a live process.
	if err := os.WriteFile(path, []byte("0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WritePIDFile(path); err != nil {
		t.Fatalf("stale pid file should be overwritten: %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file contains %q, want own pid", data)
	}
}

func TestWritePIDFileLiveProcessRefused(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "osiris.pid")

	// PID 1 is always alive.
	if err := os.WriteFile(path, []byte("1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WritePIDFile(path); err == nil {
		t.Fatal("expected error for pid file of a live process")
	}
}

func TestValidateSocketPermissions(t *testing.T) {
	dir := t.TempDir()
	if err := ValidateSocketPermissions(filepath.Join(dir, "osiris.sock")); err != nil {
		t.Fatal(err)
	}
}

func TestValidateSocketPermissionsMissingDir(t *testing.T) {
	if err := ValidateSocketPermissions("/nonexistent/dir/osiris.sock"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestValidateSocketPermissionsNotADir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plainfile")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateSocketPermissions(file + "/osiris.sock"); err == nil {
		t.Fatal("expected error when parent is not a directory")
	}
}

func TestResolveUserNumeric(t *testing.T) {
	cases := []struct {
		in       string
		uid, gid int
	}{
		{"1000", 1000, 1000},
		{"1000:2000", 1000, 2000},
		{"0:0", 0, 0},
	}
	for _, tc := range cases {
		uid, gid, err := resolveUser(tc.in)
		if err != nil {
			t.Errorf("resolveUser(%q): %v", tc.in, err)
			continue
		}
		if uid != tc.uid || gid != tc.gid {
			t.Errorf("resolveUser(%q) = %d/%d, want %d/%d", tc.in, uid, gid, tc.uid, tc.gid)
		}
	}
}

func TestResolveUserByName(t *testing.T) {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		t.Skip("no current user entry")
	}

	uid, _, err := resolveUser(u.Username)
	if err != nil {
		t.Skipf("lookup %s: %v", u.Username, err)
	}
	if strconv.Itoa(uid) != u.Uid {
		t.Fatalf("uid = %d, want %s", uid, u.Uid)
	}
}

func TestResolveUserUnknown(t *testing.T) {
	if _, _, err := resolveUser("no-such-user-xyz"); err == nil {
		t.Fatal("expected error for unknown user")
	}
	if _, _, err := resolveUser("1000:no-such-group-xyz"); err == nil {
		t.Fatal("expected error for unknown group")
	}
}
