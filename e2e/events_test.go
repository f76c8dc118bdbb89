//go:build e2e

package e2e

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a goroutine-safe writer for collecting streamed events.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEvents_Stream(t *testing.T) {
	client, _ := startDaemon(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf syncBuffer
	errCh := make(chan error, 1)
	go func() { errCh <- client.Events(ctx, nil, &buf) }()

	// Let the stream connect before generating events.
	time.Sleep(300 * time.Millisecond)

	pid, err := client.Spawn("emitter", 1, 0, 0, true)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := client.Signal(pid, "SIGTERM", 1); err != nil {
		t.Fatalf("signal: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		out := buf.String()
		if strings.Contains(out, "PROCESS_CREATED") && strings.Contains(out, "SIGNAL_DELIVERED") {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("stream missing expected events; got: %s", out)
		case <-time.After(100 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not stop after cancel")
	}
}

func TestEvents_TypeFilter(t *testing.T) {
	client, _ := startDaemon(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf syncBuffer
	errCh := make(chan error, 1)
	go func() { errCh <- client.Events(ctx, []string{"SIGNAL_DELIVERED"}, &buf) }()

	time.Sleep(300 * time.Millisecond)

	pid, err := client.Spawn("emitter", 1, 0, 0, true)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := client.Signal(pid, "SIGTERM", 1); err != nil {
		t.Fatalf("signal: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		out := buf.String()
		if strings.Contains(out, "SIGNAL_DELIVERED") {
			if strings.Contains(out, "PROCESS_CREATED") {
				t.Fatalf("filtered stream leaked other event types: %s", out)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("stream missing SIGNAL_DELIVERED; got: %s", out)
		case <-time.After(100 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not stop after cancel")
	}
}
