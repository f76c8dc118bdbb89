//go:build integration

package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/osirisdev/osiris/internal/api"
	"github.com/osirisdev/osiris/internal/events"
	"github.com/osirisdev/osiris/internal/kernel"
	"github.com/osirisdev/osiris/internal/sys"
)

// IntegrationDaemon is a real API server over an in-process kernel,
// started on a random Unix socket for integration testing.
type IntegrationDaemon struct {
	Server     *api.Server
	Kernel     *kernel.Kernel
	Calls      *sys.API
	Bus        *events.Bus
	SocketPath string
	Dir        string
}

// StartIntegrationDaemon starts an API server backed by a fresh kernel on
// a random Unix socket. Registers cleanup to shut down the server.
func StartIntegrationDaemon(t *testing.T, kcfg kernel.Config, di api.DaemonInfo) *IntegrationDaemon {
	t.Helper()

	dir := TempDir(t)
	socketPath := fmt.Sprintf("%s/osiris-integration-%d.sock", dir, time.Now().UnixNano())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	bus := events.NewBus(logger)
	kern := kernel.New(kcfg, logger, kernel.Options{Bus: bus})
	calls := sys.New(kern, logger)

	srv := api.NewServer(api.Config{UnixSocket: socketPath, SocketMode: 0700},
		kern, calls, di, bus, nil, logger)

	if err := srv.StartUnix(socketPath, 0700); err != nil {
		t.Fatalf("cannot start integration daemon: %v", err)
	}

	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(shutdownCtx)
		_ = os.RemoveAll(dir)
	})

	// Wait for the socket to accept connections.
	WaitFor(t, func() bool {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 5*time.Second)

	return &IntegrationDaemon{
		Server:     srv,
		Kernel:     kern,
		Calls:      calls,
		Bus:        bus,
		SocketPath: socketPath,
		Dir:        dir,
	}
}
