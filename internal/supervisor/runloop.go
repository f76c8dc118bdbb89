package supervisor

import (
	"log/slog"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/osirisdev/osiris/internal/config"
	"github.com/osirisdev/osiris/internal/events"
	"github.com/osirisdev/osiris/internal/kernel"
	"github.com/osirisdev/osiris/internal/logging"
	"github.com/osirisdev/osiris/internal/metrics"
	"github.com/osirisdev/osiris/internal/sig"
	"github.com/osirisdev/osiris/internal/sys"
	"github.com/osirisdev/osiris/internal/version"
)

// Supervisor is the main daemon run loop.
type Supervisor struct {
	mu         sync.Mutex
	config     *config.Config
	configPath string
	kern       *kernel.Kernel
	calls      *sys.API
	bus        *events.Bus
	metrics    *metrics.Collector
	ticker     *events.Ticker
	signals    *SignalQueue
	webhooks   *events.WebhookManager
	journal    *logging.RingBuffer
	logger     *slog.Logger
	shutting   bool
	shutdownCh chan struct{}
	doneCh     chan struct{}
	pidFile    string
	logReopen  func() error
	sweepSubID uint64
	lastSweep  time.Time
}

// SupervisorConfig configures the supervisor.
type SupervisorConfig struct {
	Config     *config.Config
	ConfigPath string
	PIDFile    string
	Logger     *slog.Logger

	// LogReopen is invoked on SIGUSR2 to reopen the daemon log file.
	LogReopen func() error
}

// New creates a supervisor with its kernel, bus, and metrics wired up.
func New(cfg SupervisorConfig) *Supervisor {
	bus := events.NewBus(cfg.Logger)
	collector := metrics.New()
	collector.SetBuildInfo(version.Version, version.GoVersion, version.FIPS)

	kcfg := cfg.Config.Kernel
	kern := kernel.New(kernel.Config{
		MaxProcesses: kcfg.MaxProcesses,
		StdQueueSize: kcfg.StdQueueSize,
		RTQueueSize:  kcfg.RTQueueSize,
		MaxPending:   kcfg.MaxPending,
	}, cfg.Logger, kernel.Options{
		Bus:     bus,
		Metrics: collector,
	})

	s := &Supervisor{
		config:     cfg.Config,
		configPath: cfg.ConfigPath,
		kern:       kern,
		calls:      sys.New(kern, cfg.Logger),
		bus:        bus,
		metrics:    collector,
		journal:    logging.NewRingBuffer(journalSize),
		logger:     cfg.Logger,
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
		pidFile:    cfg.PIDFile,
		logReopen:  cfg.LogReopen,
	}
	s.subscribeJournal()
	return s
}

// journalSize is the capacity of the in-memory event journal.
const journalSize = 64 * 1024

// subscribeJournal records every published event as one journal line.
func (s *Supervisor) subscribeJournal() {
	record := func(e events.Event) {
		var b []byte
		b = append(b, e.Timestamp.Format(time.RFC3339)...)
		b = append(b, ' ')
		b = append(b, string(e.Type)...)
		for k, v := range e.Data {
			b = append(b, ' ')
			b = append(b, k...)
			b = append(b, '=')
			b = append(b, v...)
		}
		b = append(b, '\n')
		s.journal.Write(b)
	}
	for _, et := range []events.EventType{
		events.ProcessCreated, events.ProcessRunning, events.ProcessBlocked,
		events.ProcessStopped, events.ProcessContinued, events.ProcessZombie,
		events.ProcessReaped, events.ProcessForceKill, events.ProcessReparented,
		events.SignalGenerated, events.SignalDelivered, events.SignalCoalesced,
		events.SignalDiscarded, events.QueueOverflow,
	} {
		s.bus.Subscribe(et, record)
	}
}

// Journal returns the in-memory event journal.
func (s *Supervisor) Journal() *logging.RingBuffer { return s.journal }

// Kernel returns the kernel instance.
func (s *Supervisor) Kernel() *kernel.Kernel { return s.kern }

// Calls returns the syscall API.
func (s *Supervisor) Calls() *sys.API { return s.calls }

// Bus returns the event bus.
func (s *Supervisor) Bus() *events.Bus { return s.bus }

// Metrics returns the metrics collector.
func (s *Supervisor) Metrics() *metrics.Collector { return s.metrics }

// Run starts the supervisor main loop. Blocks until shutdown.
func (s *Supervisor) Run() error {
	// Write PID file.
	if err := WritePIDFile(s.pidFile); err != nil {
		return err
	}
	defer RemovePIDFile(s.pidFile)

	// Start webhook dispatch.
	s.webhooks = events.NewWebhookManager(s.bus, webhookConfigs(s.config), s.logger)
	defer s.webhooks.Stop()

	// Periodic zombie sweep rides on the event ticker.
	s.lastSweep = time.Now()
	s.sweepSubID = s.bus.Subscribe(events.Tick5, func(e events.Event) {
		s.sweepTick(e.Timestamp)
	})
	defer s.bus.Unsubscribe(s.sweepSubID)

	s.ticker = events.NewTicker(s.bus)
	defer s.ticker.Stop()

	// Start signal handler.
	s.signals = NewSignalQueue(s.logger)
	defer s.signals.Stop()

	s.bus.Publish(events.Event{
		Type: events.KernelRunning,
		Data: map[string]string{},
	})

	s.logger.Info("kernel running", "pid", os.Getpid())

	// Main event loop.
	for {
		select {
		case osSig := <-s.signals.C:
			if s.handleSignal(osSig) {
				goto shutdown
			}
		case <-s.shutdownCh:
			goto shutdown
		}
	}

shutdown:
	s.logger.Info("shutting down")

	s.bus.Publish(events.Event{
		Type: events.KernelStopping,
		Data: map[string]string{},
	})

	// Ask every process to terminate, then wait for the table to drain.
	s.terminateAll()
	s.waitForShutdown()

	// Reap whatever is left.
	if n := s.kern.SweepZombies(0); n > 0 {
		s.logger.Info("reaped zombies at shutdown", "count", n)
	}

	close(s.doneCh)
	s.logger.Info("shutdown complete")
	return nil
}

// handleSignal processes an OS signal and returns true if shutdown
// should begin.
func (s *Supervisor) handleSignal(osSig os.Signal) bool {
	s.logger.Info("received signal", "signal", osSig.String())

	switch osSig {
	case syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT:
		return true

	case syscall.SIGHUP:
		s.handleReload()
		return false

	case syscall.SIGUSR2:
		s.handleLogReopen()
		return false

	default:
		s.logger.Warn("unhandled signal", "signal", osSig.String())
		return false
	}
}

func (s *Supervisor) handleReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutting {
		s.logger.Warn("ignoring reload during shutdown")
		return
	}

	s.logger.Info("reloading config", "path", s.configPath)

	newCfg, warnings, err := config.LoadWithIncludes(s.configPath)
	if err != nil {
		s.logger.Error("reload failed", "error", err)
		return
	}
	for _, w := range warnings {
		s.logger.Warn("config warning", "warning", w)
	}

	// Kernel tunables are fixed at startup.
	if newCfg.Kernel != s.config.Kernel {
		s.logger.Warn("kernel settings changed; restart required to apply")
	}

	// Swap webhook subscriptions.
	if s.webhooks != nil {
		s.webhooks.Stop()
	}
	s.webhooks = events.NewWebhookManager(s.bus, webhookConfigs(newCfg), s.logger)

	s.config = newCfg
	s.logger.Info("config reloaded")
}

func (s *Supervisor) handleLogReopen() {
	if s.logReopen == nil {
		return
	}
	s.logger.Info("reopening log file")
	if err := s.logReopen(); err != nil {
		s.logger.Error("log reopen failed", "error", err)
	}
}

// sweepTick reaps stale zombies when the configured interval has elapsed.
func (s *Supervisor) sweepTick(now time.Time) {
	s.mu.Lock()
	interval := time.Duration(s.config.Kernel.SweepInterval) * time.Second
	maxAge := time.Duration(s.config.Kernel.ZombieMaxAge) * time.Second
	if interval <= 0 || now.Sub(s.lastSweep) < interval {
		s.mu.Unlock()
		return
	}
	s.lastSweep = now
	s.mu.Unlock()

	if n := s.kern.SweepZombies(maxAge); n > 0 {
		s.logger.Info("swept stale zombies", "count", n, "max_age", maxAge)
	}
}

// terminateAll sends SIGTERM to every process except init.
func (s *Supervisor) terminateAll() {
	for _, snap := range s.kern.List() {
		if snap.PID == kernel.InitPID {
			continue
		}
		if snap.State == "ZOMBIE" || snap.State == "TERMINATED" {
			continue
		}
		if err := s.calls.Kill(kernel.InitPID, snap.PID, sig.SIGTERM); err != nil {
			s.logger.Debug("terminate failed", "pid", int(snap.PID), "error", err)
		}
	}
}

// waitForShutdown waits until only init and zombies remain, or the
// shutdown timeout expires.
func (s *Supervisor) waitForShutdown() {
	timeout := time.Duration(s.config.Kernel.ShutdownTimeout) * time.Second
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.tableDrained() {
			return
		}
		if time.Now().After(deadline) {
			s.logger.Warn("shutdown timeout exceeded, force-killing remaining processes")
			s.forceKillAll()
			return
		}
		<-ticker.C
	}
}

func (s *Supervisor) tableDrained() bool {
	for _, snap := range s.kern.List() {
		if snap.PID == kernel.InitPID {
			continue
		}
		if snap.State != "ZOMBIE" {
			return false
		}
	}
	return true
}

func (s *Supervisor) forceKillAll() {
	for _, snap := range s.kern.List() {
		if snap.PID == kernel.InitPID || snap.State == "ZOMBIE" {
			continue
		}
		if err := s.kern.ForceKill(snap.PID); err != nil {
			s.logger.Error("force kill failed", "pid", int(snap.PID), "error", err)
		}
	}
}

// Shutdown triggers a graceful shutdown.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shutting {
		s.shutting = true
		close(s.shutdownCh)
	}
}

// Done returns a channel that closes when the supervisor has finished.
func (s *Supervisor) Done() <-chan struct{} { return s.doneCh }

// IsShuttingDown returns true if the supervisor is shutting down.
func (s *Supervisor) IsShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutting
}

// Version returns version info including the daemon PID.
func (s *Supervisor) Version() map[string]string {
	return map[string]string{
		"version": version.Version,
		"commit":  version.Commit,
		"date":    version.Date,
		"pid":     strconv.Itoa(os.Getpid()),
	}
}

// PID returns the daemon PID.
func (s *Supervisor) PID() int { return os.Getpid() }

// GetConfig returns the current config.
func (s *Supervisor) GetConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// webhookConfigs converts configured webhooks into bus subscriptions.
func webhookConfigs(cfg *config.Config) []events.WebhookConfig {
	out := make([]events.WebhookConfig, 0, len(cfg.Webhooks))
	for name, wh := range cfg.Webhooks {
		types := make([]events.EventType, 0, len(wh.Events))
		for _, e := range wh.Events {
			types = append(types, events.EventType(e))
		}
		out = append(out, events.WebhookConfig{
			Name:       name,
			URL:        wh.URL,
			Events:     types,
			Headers:    wh.Headers,
			Timeout:    time.Duration(wh.Timeout) * time.Second,
			MaxRetries: wh.Retries,
		})
	}
	return out
}
