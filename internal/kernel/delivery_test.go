package kernel

import (
	"testing"

	"github.com/osirisdev/osiris/internal/sig"
)

func handlerAction(id int) sig.Action {
	return sig.Action{Disposition: sig.Handler, HandlerID: id}
}

func TestGenerateInvalidSignal(t *testing.T) {
	k := newTestKernel(t, Options{})
	for _, n := range []int{0, -1, 64, 100} {
		err := k.Generate(InitPID, n, sig.Info{}, 0)
		if err != sig.ErrInvalidSignal {
			t.Fatalf("Generate(%d) err = %v, want ErrInvalidSignal", n, err)
		}
	}
}

func TestGenerateUnknownTarget(t *testing.T) {
	k := newTestKernel(t, Options{})
	if err := k.Generate(999, sig.SIGTERM, sig.Info{}, 0); err != ErrNoSuchProcess {
		t.Fatalf("err = %v, want ErrNoSuchProcess", err)
	}
}

func TestSynchronousDeliveryToRunning(t *testing.T) {
	inv := &recordInvoker{}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawnRunning(t, k, "w", InitPID)

	if _, err := k.SetAction(pid, sig.SIGUSR1, handlerAction(7)); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if err := k.Generate(pid, sig.SIGUSR1, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(inv.calls) != 1 || inv.calls[0].signo != sig.SIGUSR1 || inv.calls[0].handlerID != 7 {
		t.Fatalf("calls = %+v, want one SIGUSR1 to handler 7", inv.calls)
	}
	pending, _ := k.Pending(pid)
	if !pending.IsEmpty() {
		t.Fatalf("pending after delivery = %v, want empty", pending)
	}
}

func TestReadyTargetKeepsSignalPending(t *testing.T) {
	inv := &recordInvoker{}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawn(t, k, "w", InitPID)

	if _, err := k.SetAction(pid, sig.SIGUSR1, handlerAction(1)); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if err := k.Generate(pid, sig.SIGUSR1, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(inv.calls) != 0 {
		t.Fatalf("delivered to READY process: %+v", inv.calls)
	}
	pending, _ := k.Pending(pid)
	if !pending.Has(sig.SIGUSR1) {
		t.Fatal("SIGUSR1 not pending")
	}

	// Scheduling the process drains the pending set.
	if err := k.Start(pid); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(inv.calls) != 1 {
		t.Fatalf("calls after Start = %d, want 1", len(inv.calls))
	}
}

func TestPriorityOrder(t *testing.T) {
	inv := &recordInvoker{}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawn(t, k, "w", InitPID)

	for i, n := range []int{sig.SIGCHLD, sig.SIGSEGV, 40, sig.SIGUSR2} {
		if _, err := k.SetAction(pid, n, handlerAction(i)); err != nil {
			t.Fatalf("SetAction(%d): %v", n, err)
		}
		if err := k.Generate(pid, n, sig.Info{}, 0); err != nil {
			t.Fatalf("Generate(%d): %v", n, err)
		}
	}
	if err := k.Start(pid); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Hardware faults first, then normal, then low, then realtime.
	want := []int{sig.SIGSEGV, sig.SIGUSR2, sig.SIGCHLD, 40}
	got := inv.signals()
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivery order = %v, want %v", got, want)
		}
	}
}

func TestRealtimeFIFOWithinSignal(t *testing.T) {
	inv := &recordInvoker{}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawn(t, k, "w", InitPID)

	const rt = sig.SIGRTMIN + 1
	if _, err := k.SetAction(pid, rt, handlerAction(0)); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	for _, v := range []int{10, 20, 30} {
		info := sig.NewInfo(rt, sig.SourceProcess).WithValue(v)
		if err := k.Generate(pid, rt, info, 0); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	if err := k.Start(pid); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(inv.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(inv.calls))
	}
	for i, want := range []int{10, 20, 30} {
		if inv.calls[i].value != want {
			t.Fatalf("call %d value = %d, want %d", i, inv.calls[i].value, want)
		}
	}
}

func TestBlockedStandardSignalPendsOnce(t *testing.T) {
	inv := &recordInvoker{}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawnRunning(t, k, "w", InitPID)

	if _, err := k.SetAction(pid, sig.SIGHUP, handlerAction(3)); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if _, err := k.ChangeMask(pid, sig.Block, sig.Of(sig.SIGHUP)); err != nil {
		t.Fatalf("ChangeMask: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := k.Generate(pid, sig.SIGHUP, sig.Info{}, FlagCoalesce); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	if len(inv.calls) != 0 {
		t.Fatalf("delivered while blocked: %+v", inv.calls)
	}
	st := k.Stats()
	if st.SignalsBlocked != 3 {
		t.Fatalf("blocked = %d, want 3", st.SignalsBlocked)
	}

	// Unblocking delivers exactly one instance.
	if _, err := k.ChangeMask(pid, sig.Unblock, sig.Of(sig.SIGHUP)); err != nil {
		t.Fatalf("ChangeMask: %v", err)
	}
	if got := inv.signals(); len(got) != 1 || got[0] != sig.SIGHUP {
		t.Fatalf("delivered %v, want one SIGHUP", got)
	}
	pending, _ := k.Pending(pid)
	if pending.Has(sig.SIGHUP) {
		t.Fatal("SIGHUP still pending after delivery")
	}
}

func TestBlockedRealtimeStillQueues(t *testing.T) {
	inv := &recordInvoker{}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawnRunning(t, k, "w", InitPID)

	const rt = sig.SIGRTMIN
	if _, err := k.SetAction(pid, rt, handlerAction(0)); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if _, err := k.ChangeMask(pid, sig.Block, sig.Of(rt)); err != nil {
		t.Fatalf("ChangeMask: %v", err)
	}
	for _, v := range []int{1, 2} {
		info := sig.NewInfo(rt, sig.SourceProcess).WithValue(v)
		if err := k.Generate(pid, rt, info, 0); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	if len(inv.calls) != 0 {
		t.Fatal("delivered while blocked")
	}
	if _, err := k.ChangeMask(pid, sig.Unblock, sig.Of(rt)); err != nil {
		t.Fatalf("ChangeMask: %v", err)
	}
	// Both queued instances survive the blocked interval.
	if len(inv.calls) != 2 || inv.calls[0].value != 1 || inv.calls[1].value != 2 {
		t.Fatalf("calls = %+v, want values 1,2", inv.calls)
	}
}

func TestCoalesceIsNoOp(t *testing.T) {
	inv := &recordInvoker{}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawn(t, k, "w", InitPID)

	if _, err := k.SetAction(pid, sig.SIGUSR1, handlerAction(0)); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	first := sig.NewInfo(sig.SIGUSR1, sig.SourceProcess).WithValue(111)
	dup := sig.NewInfo(sig.SIGUSR1, sig.SourceProcess).WithValue(222)
	if err := k.Generate(pid, sig.SIGUSR1, first, FlagCoalesce); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := k.Generate(pid, sig.SIGUSR1, dup, FlagCoalesce); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	st := k.Stats()
	if st.SignalsCoalesced != 1 {
		t.Fatalf("coalesced = %d, want 1", st.SignalsCoalesced)
	}

	if err := k.Start(pid); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// First instance wins; the duplicate left no trace.
	if len(inv.calls) != 1 || inv.calls[0].value != 111 {
		t.Fatalf("calls = %+v, want one call with value 111", inv.calls)
	}
}

func TestQueueOverflowDropsSignal(t *testing.T) {
	cfg := Config{MaxProcesses: 4, StdQueueSize: 2, RTQueueSize: 2}
	k := New(cfg, discardLogger(), Options{})
	pid := spawn(t, k, "w", InitPID)

	const rt = sig.SIGRTMIN + 3
	for i := 0; i < 3; i++ {
		if err := k.Generate(pid, rt, sig.Info{}, 0); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}
	st := k.Stats()
	if st.QueueOverflows != 1 {
		t.Fatalf("overflows = %d, want 1", st.QueueOverflows)
	}
	if st.SignalsDiscarded != 1 {
		t.Fatalf("discarded = %d, want 1", st.SignalsDiscarded)
	}
	// The target is unharmed.
	wantState(t, k, pid, "READY")
}

func TestIgnoredDispositionCountsDelivered(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawnRunning(t, k, "w", InitPID)

	if _, err := k.SetAction(pid, sig.SIGTERM, sig.Action{Disposition: sig.Ignore}); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if err := k.Generate(pid, sig.SIGTERM, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	wantState(t, k, pid, "RUNNING")
	st := k.Stats()
	if st.SignalsDelivered != 1 {
		t.Fatalf("delivered = %d, want 1", st.SignalsDelivered)
	}
}

func TestDefaultIgnoreSignals(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawnRunning(t, k, "w", InitPID)

	for _, n := range []int{sig.SIGCHLD, sig.SIGURG, sig.SIGWINCH} {
		if err := k.Generate(pid, n, sig.Info{}, 0); err != nil {
			t.Fatalf("Generate(%d): %v", n, err)
		}
	}
	wantState(t, k, pid, "RUNNING")
}

func TestDefaultTerminateUsesKillPath(t *testing.T) {
	k := newTestKernel(t, Options{})
	parent := spawn(t, k, "parent", InitPID)
	child := spawnRunning(t, k, "child", parent)

	if err := k.Generate(child, sig.SIGTERM, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap, err := k.Get(child)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.State != "ZOMBIE" {
		t.Fatalf("state = %s, want ZOMBIE", snap.State)
	}
	if snap.KilledBy != sig.SIGTERM {
		t.Fatalf("killed_by = %d, want %d", snap.KilledBy, sig.SIGTERM)
	}
	if snap.ExitCode != 128+sig.SIGTERM {
		t.Fatalf("exit_code = %d, want %d", snap.ExitCode, 128+sig.SIGTERM)
	}
	// The parent is off-CPU, so the SIGCHLD notification pends.
	pending, _ := k.Pending(parent)
	if !pending.Has(sig.SIGCHLD) {
		t.Fatal("parent missing pending SIGCHLD")
	}
}

func TestStopAndContinueDefaults(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawnRunning(t, k, "w", InitPID)

	if err := k.Generate(pid, sig.SIGSTOP, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate(STOP): %v", err)
	}
	wantState(t, k, pid, "STOPPED")

	if err := k.Generate(pid, sig.SIGCONT, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate(CONT): %v", err)
	}
	wantState(t, k, pid, "READY")
}

func TestPendingSignalsSurviveStop(t *testing.T) {
	inv := &recordInvoker{}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawnRunning(t, k, "w", InitPID)

	if _, err := k.SetAction(pid, sig.SIGUSR1, handlerAction(0)); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if err := k.Generate(pid, sig.SIGSTOP, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate(STOP): %v", err)
	}
	if err := k.Generate(pid, sig.SIGUSR1, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate(USR1): %v", err)
	}
	if len(inv.calls) != 0 {
		t.Fatal("delivered to stopped process")
	}
	if err := k.Generate(pid, sig.SIGCONT, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate(CONT): %v", err)
	}
	if err := k.Start(pid); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := inv.signals(); len(got) != 1 || got[0] != sig.SIGUSR1 {
		t.Fatalf("delivered %v, want one SIGUSR1", got)
	}
}

func TestSigkillCannotBeBlocked(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawnRunning(t, k, "w", InitPID)

	if _, err := k.ChangeMask(pid, sig.Block, sig.FullSet()); err != nil {
		t.Fatalf("ChangeMask: %v", err)
	}
	if err := k.Generate(pid, sig.SIGKILL, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	wantState(t, k, pid, "ZOMBIE")
}

func TestHandlerFailureCounted(t *testing.T) {
	inv := &recordInvoker{err: errTest}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawnRunning(t, k, "w", InitPID)

	if _, err := k.SetAction(pid, sig.SIGUSR1, handlerAction(1)); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if err := k.Generate(pid, sig.SIGUSR1, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	st := k.Stats()
	if st.DeliveryFailures != 1 {
		t.Fatalf("delivery failures = %d, want 1", st.DeliveryFailures)
	}
	// A failed handler still consumes the instance.
	if st.SignalsDelivered != 1 {
		t.Fatalf("delivered = %d, want 1", st.SignalsDelivered)
	}
}

func TestSignalToZombieIsDiscarded(t *testing.T) {
	k := newTestKernel(t, Options{})
	pid := spawn(t, k, "w", InitPID)
	if err := k.Exit(pid, 0); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if err := k.Generate(pid, sig.SIGTERM, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	st := k.Stats()
	if st.SignalsDiscarded != 1 {
		t.Fatalf("discarded = %d, want 1", st.SignalsDiscarded)
	}
}

func TestSuspendRestoresMaskAfterDelivery(t *testing.T) {
	inv := &recordInvoker{}
	k := newTestKernel(t, Options{Invoker: inv})
	pid := spawnRunning(t, k, "w", InitPID)

	if _, err := k.SetAction(pid, sig.SIGUSR1, handlerAction(0)); err != nil {
		t.Fatalf("SetAction: %v", err)
	}
	if _, err := k.ChangeMask(pid, sig.Block, sig.Of(sig.SIGUSR1)); err != nil {
		t.Fatalf("ChangeMask: %v", err)
	}
	if err := k.Generate(pid, sig.SIGUSR1, sig.Info{}, 0); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(inv.calls) != 0 {
		t.Fatal("delivered while blocked")
	}
	// Suspending with an empty mask lets the pending signal through,
	// then reinstates the old mask.
	if err := k.Suspend(pid, sig.EmptySet()); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if got := inv.signals(); len(got) != 1 || got[0] != sig.SIGUSR1 {
		t.Fatalf("delivered %v, want one SIGUSR1", got)
	}
	snap, _ := k.Get(pid)
	found := false
	for _, b := range snap.Blocked {
		if b == sig.Name(sig.SIGUSR1) {
			found = true
		}
	}
	if !found {
		t.Fatal("mask not restored after suspend")
	}
}
