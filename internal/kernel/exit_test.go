package kernel

import (
	"errors"
	"testing"

	"github.com/osirisdev/osiris/internal/sig"
)

func TestExitBecomesZombie(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawnRunning(t, k, "w", InitPID)

	if err := k.Exit(pid, 42); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	snap, err := k.Get(pid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.State != "ZOMBIE" || snap.ExitCode != 42 || snap.KilledBy != 0 {
		t.Fatalf("snap = %s/%d/%d, want ZOMBIE/42/0", snap.State, snap.ExitCode, snap.KilledBy)
	}
}

func TestExitIsIdempotentOnZombie(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawn(t, k, "w", InitPID)

	if err := k.Exit(pid, 1); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if err := k.Exit(pid, 2); err != nil {
		t.Fatalf("second Exit: %v", err)
	}
	snap, _ := k.Get(pid)
	if snap.ExitCode != 1 {
		t.Fatalf("exit_code = %d, want first exit preserved (1)", snap.ExitCode)
	}
}

func TestExitRunsCleanupsAndToleratesFailure(t *testing.T) {
	var order []string
	cleanups := []Cleanup{
		{Name: "descriptors", Fn: func(PID) (int, error) {
			order = append(order, "descriptors")
			return 3, nil
		}},
		{Name: "mappings", Fn: func(PID) (int, error) {
			order = append(order, "mappings")
			return 0, errors.New("mapping table corrupt")
		}},
		{Name: "timers", Fn: func(PID) (int, error) {
			order = append(order, "timers")
			return 1, nil
		}},
	}
	k := newTestKernel(t, Options{Cleanups: cleanups})
	pid := spawn(t, k, "w", InitPID)

	if err := k.Exit(pid, 0); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	// A failing stage never stops the ones after it.
	want := []string{"descriptors", "mappings", "timers"}
	if len(order) != len(want) {
		t.Fatalf("cleanup order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("cleanup order = %v, want %v", order, want)
		}
	}
	wantState(t, k, pid, "ZOMBIE")
}

func TestExitReparentsChildrenToInit(t *testing.T) {
	k := newTestKernel(t, Options{})
	parent := spawnRunning(t, k, "parent", InitPID)
	c1 := spawn(t, k, "c1", parent)
	c2 := spawn(t, k, "c2", parent)

	// One child is already a zombie when the parent dies.
	if err := k.Exit(c2, 7); err != nil {
		t.Fatalf("Exit(c2): %v", err)
	}
	if err := k.Exit(parent, 0); err != nil {
		t.Fatalf("Exit(parent): %v", err)
	}

	s1, _ := k.Get(c1)
	if s1.PPID != InitPID {
		t.Fatalf("c1 ppid = %d, want %d", s1.PPID, InitPID)
	}
	s2, _ := k.Get(c2)
	if s2.PPID != InitPID {
		t.Fatalf("c2 ppid = %d, want %d", s2.PPID, InitPID)
	}
	// Init can reap the inherited zombie.
	got, st, err := k.WaitPid(InitPID, c2, WNOHANG)
	if err != nil || got != c2 || st.ExitCode != 7 {
		t.Fatalf("WaitPid(init, c2) = %d/%+v/%v, want %d/exit 7/nil", got, st, err, c2)
	}

	stats := k.Stats()
	if stats.OrphansReparented != 2 {
		t.Fatalf("reparented = %d, want 2", stats.OrphansReparented)
	}
}

func TestExitClearsPendingSignals(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawn(t, k, "w", InitPID)

	for _, n := range []int{sig.SIGUSR1, sig.SIGRTMIN, sig.SIGRTMIN + 1} {
		if err := k.Generate(pid, n, sig.Info{}, 0); err != nil {
			t.Fatalf("Generate(%d): %v", n, err)
		}
	}
	if err := k.Exit(pid, 0); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	pending, err := k.Pending(pid)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if !pending.IsEmpty() {
		t.Fatalf("pending after exit = %v, want empty", pending)
	}
}

func TestKillSetsSignalExitCode(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawnRunning(t, k, "w", InitPID)

	if err := k.Kill(pid, sig.SIGKILL); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	snap, _ := k.Get(pid)
	if snap.State != "ZOMBIE" || snap.KilledBy != sig.SIGKILL || snap.ExitCode != 137 {
		t.Fatalf("snap = %s/%d/%d, want ZOMBIE/9/137", snap.State, snap.KilledBy, snap.ExitCode)
	}
}

func TestKillInvalidSignal(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawn(t, k, "w", InitPID)
	if err := k.Kill(pid, 99); err != sig.ErrInvalidSignal {
		t.Fatalf("err = %v, want ErrInvalidSignal", err)
	}
}

func TestForceKillSkipsZombieAndNotification(t *testing.T) {
	k := newTestKernel(t, Options{})
	parent := spawn(t, k, "parent", InitPID)
	child := spawnRunning(t, k, "child", parent)

	if err := k.ForceKill(child); err != nil {
		t.Fatalf("ForceKill: %v", err)
	}
	if _, err := k.Get(child); err != ErrNoSuchProcess {
		t.Fatalf("Get after force-kill err = %v, want ErrNoSuchProcess", err)
	}
	// No SIGCHLD, no zombie left behind.
	pending, _ := k.Pending(parent)
	if pending.Has(sig.SIGCHLD) {
		t.Fatal("parent got SIGCHLD from force-kill")
	}
	snap, _ := k.Get(parent)
	if snap.Zombies != 0 || snap.Children != 0 {
		t.Fatalf("parent lists = %d children/%d zombies, want 0/0", snap.Children, snap.Zombies)
	}
}

func TestInitReapsInheritedZombie(t *testing.T) {
	k := newTestKernel(t, Options{})
	parent := spawnRunning(t, k, "parent", InitPID)
	child := spawn(t, k, "child", parent)

	if err := k.Exit(child, 3); err != nil {
		t.Fatalf("Exit(child): %v", err)
	}
	if err := k.Exit(parent, 0); err != nil {
		t.Fatalf("Exit(parent): %v", err)
	}
	// Init inherited the zombie child and can reap it immediately.
	got, st, err := k.WaitPid(InitPID, child, WNOHANG)
	if err != nil {
		t.Fatalf("WaitPid: %v", err)
	}
	if got != child || st.ExitCode != 3 {
		t.Fatalf("reaped %d/%d, want %d/3", got, st.ExitCode, child)
	}
}
