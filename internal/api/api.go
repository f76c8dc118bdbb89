// Package api exposes the Osiris control API over Unix socket and
// optional TCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/osirisdev/osiris/internal/events"
	"github.com/osirisdev/osiris/internal/kernel"
	"github.com/osirisdev/osiris/internal/logging"
	"github.com/osirisdev/osiris/internal/sig"
	"github.com/osirisdev/osiris/internal/sys"
)

// DaemonInfo describes the running daemon.
type DaemonInfo interface {
	IsShuttingDown() bool
	Version() map[string]string
	PID() int
	Shutdown()
}

// Server is the HTTP API server for Osiris.
type Server struct {
	kern       *kernel.Kernel
	calls      *sys.API
	daemon     DaemonInfo
	bus        *events.Bus
	journal    *logging.RingBuffer
	logger     *slog.Logger
	metricsH   http.Handler
	mux        *http.ServeMux
	unixLn     net.Listener
	tcpLn      net.Listener
	unixServer *http.Server
	tcpServer  *http.Server

	authUser string
	authPass string // bcrypt hash
}

// Config holds API server configuration.
type Config struct {
	UnixSocket string
	SocketMode os.FileMode
	TCPAddr    string
	TCPEnabled bool
	Username   string
	Password   string // bcrypt hash
}

// NewServer creates an API server with the given dependencies. The
// metrics handler may be nil to disable /metrics.
func NewServer(cfg Config, kern *kernel.Kernel, calls *sys.API, di DaemonInfo, bus *events.Bus, metricsH http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		kern:     kern,
		calls:    calls,
		daemon:   di,
		bus:      bus,
		metricsH: metricsH,
		logger:   logger,
		authUser: cfg.Username,
		authPass: cfg.Password,
	}
	s.mux = s.buildMux()
	return s
}

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Probe endpoints -- no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	// API v1 endpoints -- auth required on TCP.
	mux.HandleFunc("GET /api/v1/processes", s.requireAuth(s.handleListProcesses))
	mux.HandleFunc("POST /api/v1/processes", s.requireAuth(s.handleSpawn))
	mux.HandleFunc("GET /api/v1/processes/{pid}", s.requireAuth(s.handleGetProcess))
	mux.HandleFunc("POST /api/v1/processes/{pid}/start", s.requireAuth(s.handleStart))
	mux.HandleFunc("POST /api/v1/processes/{pid}/signal", s.requireAuth(s.handleSignal))
	mux.HandleFunc("POST /api/v1/processes/{pid}/exit", s.requireAuth(s.handleExit))
	mux.HandleFunc("POST /api/v1/processes/{pid}/kill", s.requireAuth(s.handleForceKill))
	mux.HandleFunc("POST /api/v1/processes/{pid}/wait", s.requireAuth(s.handleWait))
	mux.HandleFunc("POST /api/v1/processes/{pid}/alarm", s.requireAuth(s.handleAlarm))

	mux.HandleFunc("GET /api/v1/signals", s.requireAuth(s.handleListSignals))
	mux.HandleFunc("GET /api/v1/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("POST /api/v1/sweep", s.requireAuth(s.handleSweep))

	mux.HandleFunc("POST /api/v1/shutdown", s.requireAuth(s.handleShutdown))
	mux.HandleFunc("GET /api/v1/version", s.requireAuth(s.handleVersion))
	mux.HandleFunc("GET /api/v1/events/stream", s.requireAuth(s.handleEventStream))
	mux.HandleFunc("GET /api/v1/events/recent", s.requireAuth(s.handleEventsRecent))

	if s.metricsH != nil {
		mux.Handle("GET /metrics", s.requireAuth(s.metricsH.ServeHTTP))
	}

	return mux
}

// StartUnix creates and begins serving on a Unix domain socket.
func (s *Server) StartUnix(path string, mode os.FileMode) error {
	// Remove stale socket from previous run.
	if err := removeStaleSocket(path); err != nil {
		return fmt.Errorf("cannot create socket: %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("cannot create socket: %s: %w", path, err)
	}

	if err := os.Chmod(path, mode); err != nil {
		ln.Close()
		return fmt.Errorf("cannot set socket permissions: %s: %w", path, err)
	}

	s.unixLn = ln
	s.unixServer = &http.Server{Handler: s.mux}

	go func() {
		if err := s.unixServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("unix server error", "error", err)
		}
	}()

	s.logger.Info("unix socket server started", "path", path)
	return nil
}

// StartTCP begins serving on a TCP address.
func (s *Server) StartTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cannot bind %s: %w", addr, err)
	}

	s.tcpLn = ln
	s.tcpServer = &http.Server{Handler: s.mux}

	// Warn about binding to all interfaces.
	host, _, _ := net.SplitHostPort(addr)
	if host == "0.0.0.0" || host == "" || host == "::" {
		s.logger.Warn("HTTP server bound to all interfaces", "addr", addr)
	}

	go func() {
		if err := s.tcpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("tcp server error", "error", err)
		}
	}()

	s.logger.Info("tcp http server started", "addr", addr)
	return nil
}

// Stop gracefully shuts down all listeners.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.unixServer != nil {
		if err := s.unixServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.tcpServer != nil {
		if err := s.tcpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("server shutdown errors: %v", errs)
	}
	return nil
}

// UnixAddr returns the address of the Unix listener, or empty if not started.
func (s *Server) UnixAddr() string {
	if s.unixLn != nil {
		return s.unixLn.Addr().String()
	}
	return ""
}

// TCPAddr returns the address of the TCP listener, or empty if not started.
func (s *Server) TCPAddr() string {
	if s.tcpLn != nil {
		return s.tcpLn.Addr().String()
	}
	return ""
}

func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// --- HTTP Handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.daemon != nil && s.daemon.IsShuttingDown() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "shutting_down",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	// Ready once init answers a liveness probe.
	if _, err := s.kern.Get(kernel.InitPID); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kern.List())
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(w, r)
	if !ok {
		return
	}
	snap, err := s.kern.Get(pid)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	if s.daemon != nil && s.daemon.IsShuttingDown() {
		writeError(w, http.StatusConflict, "daemon is shutting down", "SHUTTING_DOWN")
		return
	}
	var body struct {
		Name  string `json:"name"`
		PPID  int    `json:"ppid"`
		UID   int    `json:"uid"`
		GID   int    `json:"gid"`
		Start bool   `json:"start"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "request body must contain {\"name\":\"...\"}", "BAD_REQUEST")
		return
	}
	ppid := kernel.PID(body.PPID)
	if ppid == 0 {
		ppid = kernel.InitPID
	}
	pid, err := s.kern.Spawn(body.Name, ppid, body.UID, body.GID)
	if err != nil {
		statusCode := classifyError(err)
		writeError(w, statusCode, err.Error(), errorCode(statusCode))
		return
	}
	if body.Start {
		if err := s.kern.Start(pid); err != nil {
			statusCode := classifyError(err)
			writeError(w, statusCode, err.Error(), errorCode(statusCode))
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "pid": int(pid)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(w, r)
	if !ok {
		return
	}
	if err := s.kern.Start(pid); err != nil {
		statusCode := classifyError(err)
		writeError(w, statusCode, err.Error(), errorCode(statusCode))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "running", "pid": int(pid)})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(w, r)
	if !ok {
		return
	}
	var body struct {
		Signal string `json:"signal"`
		Sender int    `json:"sender"`
		Value  *int   `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Signal == "" {
		writeError(w, http.StatusBadRequest, "request body must contain {\"signal\":\"NAME\"}", "BAD_REQUEST")
		return
	}
	signo, ok := parseSignal(body.Signal)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown signal "+body.Signal, "BAD_REQUEST")
		return
	}
	sender := kernel.PID(body.Sender)
	if sender == 0 {
		sender = kernel.InitPID
	}
	var err error
	if body.Value != nil {
		err = s.calls.Sigqueue(sender, pid, signo, *body.Value)
	} else {
		err = s.calls.Kill(sender, pid, signo)
	}
	if err != nil {
		statusCode := classifyError(err)
		writeError(w, statusCode, err.Error(), errorCode(statusCode))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "signaled", "pid": int(pid), "signal": sig.Name(signo)})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(w, r)
	if !ok {
		return
	}
	var body struct {
		Code int `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must contain {\"code\":N}", "BAD_REQUEST")
		return
	}
	if err := s.calls.Exit(pid, body.Code); err != nil {
		statusCode := classifyError(err)
		writeError(w, statusCode, err.Error(), errorCode(statusCode))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "exited", "pid": int(pid), "code": body.Code})
}

func (s *Server) handleForceKill(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(w, r)
	if !ok {
		return
	}
	if err := s.kern.ForceKill(pid); err != nil {
		statusCode := classifyError(err)
		writeError(w, statusCode, err.Error(), errorCode(statusCode))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "force_killed", "pid": int(pid)})
}

func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	caller, ok := pathPID(w, r)
	if !ok {
		return
	}
	var body struct {
		Child  int  `json:"child"`
		Nohang bool `json:"nohang"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return
	}
	options := 0
	if body.Nohang {
		options = sys.WNOHANG
	}
	pid, status, err := s.calls.Waitpid(caller, kernel.PID(body.Child), options)
	if err != nil {
		statusCode := classifyError(err)
		writeError(w, statusCode, err.Error(), errorCode(statusCode))
		return
	}
	resp := map[string]any{"pid": int(pid), "status": int(status)}
	if pid != 0 {
		resp["exited"] = status.Exited()
		if status.Exited() {
			resp["exit_status"] = status.ExitStatus()
		}
		if status.Signaled() {
			resp["signal"] = sig.Name(status.Signal())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathPID(w, r)
	if !ok {
		return
	}
	var body struct {
		Seconds int `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "request body must contain {\"seconds\":N}", "BAD_REQUEST")
		return
	}
	remaining, err := s.calls.Alarm(pid, body.Seconds)
	if err != nil {
		statusCode := classifyError(err)
		writeError(w, statusCode, err.Error(), errorCode(statusCode))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "armed", "pid": int(pid), "remaining": remaining})
}

// signalInfo is one row of the signal table endpoint.
type signalInfo struct {
	Number   int    `json:"number"`
	Name     string `json:"name"`
	Default  string `json:"default"`
	Realtime bool   `json:"realtime"`
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	out := make([]signalInfo, 0, sig.NSig-1)
	for n := 1; n < sig.NSig; n++ {
		out = append(out, signalInfo{
			Number:   n,
			Name:     sig.Name(n),
			Default:  defaultName(sig.DefaultActionFor(n)),
			Realtime: sig.IsRealtime(n),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func defaultName(a sig.DefaultAction) string {
	switch a {
	case sig.ActionStop:
		return "stop"
	case sig.ActionContinue:
		return "continue"
	case sig.ActionIgnore:
		return "ignore"
	default:
		return "terminate"
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kern.Stats())
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	maxAge := time.Duration(0)
	if v := r.URL.Query().Get("max_age"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			writeError(w, http.StatusBadRequest, "max_age must be a non-negative integer", "BAD_REQUEST")
			return
		}
		maxAge = time.Duration(secs) * time.Second
	}
	n := s.kern.SweepZombies(maxAge)
	writeJSON(w, http.StatusOK, map[string]any{"status": "swept", "reaped": n})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting_down"})
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.daemon.Shutdown()
	}()
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Version())
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "SERVER_ERROR")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	// Parse type filter.
	typesParam := r.URL.Query().Get("types")
	var typeFilter map[events.EventType]bool
	if typesParam != "" {
		typeFilter = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesParam, ",") {
			typeFilter[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	allTypes := []events.EventType{
		events.ProcessCreated, events.ProcessRunning, events.ProcessBlocked,
		events.ProcessStopped, events.ProcessContinued, events.ProcessZombie,
		events.ProcessReaped, events.ProcessForceKill, events.ProcessReparented,
		events.SignalGenerated, events.SignalDelivered, events.SignalCoalesced,
		events.SignalDiscarded, events.QueueOverflow,
	}

	// Use a channel to serialize writes to the response writer.
	type sseEvent struct {
		eventType string
		data      []byte
	}
	ch := make(chan sseEvent, 64)

	var ids []uint64
	for _, et := range allTypes {
		if typeFilter != nil && !typeFilter[et] {
			continue
		}
		id := s.bus.Subscribe(et, func(e events.Event) {
			data, _ := json.Marshal(e.Data)
			select {
			case ch <- sseEvent{eventType: string(e.Type), data: data}:
			default:
			}
		})
		ids = append(ids, id)
	}

	defer func() {
		for _, id := range ids {
			s.bus.Unsubscribe(id)
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.eventType, ev.data)
			flusher.Flush()
		}
	}
}

// SetJournal attaches the in-memory event journal served by
// /api/v1/events/recent. Call before starting listeners.
func (s *Server) SetJournal(rb *logging.RingBuffer) { s.journal = rb }

func (s *Server) handleEventsRecent(w http.ResponseWriter, r *http.Request) {
	n := 4096
	if v := r.URL.Query().Get("bytes"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "bytes must be a positive integer", "BAD_REQUEST")
			return
		}
		n = parsed
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.journal == nil {
		return
	}
	_, _ = w.Write(s.journal.Read(n))
}

// --- Auth middleware ---

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Unix socket connections skip auth.
		if isUnixConn(r) {
			next(w, r)
			return
		}

		// TCP connections require auth if configured.
		if s.authUser == "" {
			next(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="osiris"`)
			writeError(w, http.StatusUnauthorized, "authentication required", "UNAUTHORIZED")
			return
		}

		if user != s.authUser || !checkPassword(pass, s.authPass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="osiris"`)
			writeError(w, http.StatusUnauthorized, "invalid credentials", "UNAUTHORIZED")
			return
		}

		next(w, r)
	}
}

func isUnixConn(r *http.Request) bool {
	// When served over Unix socket, RemoteAddr is typically empty or "@".
	return r.RemoteAddr == "" || r.RemoteAddr == "@"
}

func checkPassword(plain, hash string) bool {
	if hash == "" {
		return plain == ""
	}
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
	}
	// Plaintext fallback for testing only.
	return plain == hash
}

// --- helpers ---

func pathPID(w http.ResponseWriter, r *http.Request) (kernel.PID, bool) {
	raw := r.PathValue("pid")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "pid must be a positive integer", "BAD_REQUEST")
		return 0, false
	}
	return kernel.PID(n), true
}

// parseSignal accepts a signal name ("SIGTERM", "TERM", "SIGRT5") or a
// decimal number.
func parseSignal(v string) (int, bool) {
	if n, err := strconv.Atoi(v); err == nil {
		if n == 0 || sig.Valid(n) {
			return n, true
		}
		return 0, false
	}
	return sig.Number(strings.ToUpper(v))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

func classifyError(err error) int {
	var errno sys.Errno
	if errors.As(err, &errno) {
		switch errno {
		case sys.ESRCH, sys.ECHILD:
			return http.StatusNotFound
		case sys.EPERM:
			return http.StatusForbidden
		case sys.EINVAL:
			return http.StatusBadRequest
		case sys.EAGAIN:
			return http.StatusConflict
		}
	}
	switch {
	case errors.Is(err, kernel.ErrNoSuchProcess), errors.Is(err, kernel.ErrNoSuchChild):
		return http.StatusNotFound
	case errors.Is(err, sig.ErrInvalidSignal), errors.Is(err, kernel.ErrBadState):
		return http.StatusBadRequest
	case errors.Is(err, kernel.ErrTableFull):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "SERVER_ERROR"
	}
}
