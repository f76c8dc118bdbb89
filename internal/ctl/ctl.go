// Package ctl implements the CLI control client for communicating
// with a running Osiris daemon over its Unix socket or TCP API.
package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// Client communicates with an Osiris daemon API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
}

// NewUnixClient creates a client that connects via Unix socket.
func NewUnixClient(socketPath string) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return net.Dial("unix", socketPath)
				},
			},
			Timeout: 30 * time.Second,
		},
		baseURL: "http://unix",
	}
}

// NewTCPClient creates a client that connects via TCP.
func NewTCPClient(addr, username, password string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "http://" + addr,
		username:   username,
		password:   password,
	}
}

func (c *Client) do(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.httpClient.Do(req)
}

func (c *Client) doJSON(method, path string, body any) (map[string]any, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = strings.NewReader(string(data))
	}
	resp, err := c.do(method, path, rd)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := "unknown error"
		if e, ok := result["error"].(string); ok {
			msg = e
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return result, nil
}

// ProcessInfo is the JSON structure returned by the API.
type ProcessInfo struct {
	PID       int       `json:"pid"`
	PPID      int       `json:"ppid"`
	Name      string    `json:"name"`
	UID       int       `json:"uid"`
	GID       int       `json:"gid"`
	Session   int       `json:"session"`
	State     string    `json:"state"`
	ExitCode  int       `json:"exit_code"`
	KilledBy  int       `json:"killed_by"`
	Pending   []string  `json:"pending_signals"`
	Blocked   []string  `json:"blocked_signals"`
	Children  int       `json:"children"`
	Zombies   int       `json:"zombies"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Process control operations ---

// Spawn creates a new process. It returns the assigned PID.
func (c *Client) Spawn(name string, ppid, uid, gid int, start bool) (int, error) {
	result, err := c.doJSON("POST", "/api/v1/processes", map[string]any{
		"name": name, "ppid": ppid, "uid": uid, "gid": gid, "start": start,
	})
	if err != nil {
		return 0, err
	}
	pid, _ := result["pid"].(float64)
	return int(pid), nil
}

// Start schedules a ready process onto the CPU.
func (c *Client) Start(pid int) error {
	_, err := c.doJSON("POST", fmt.Sprintf("/api/v1/processes/%d/start", pid), nil)
	return err
}

// Signal sends a signal to a process. The signal may be a name
// ("SIGTERM", "TERM") or a decimal number.
func (c *Client) Signal(pid int, signal string, sender int) error {
	_, err := c.doJSON("POST", fmt.Sprintf("/api/v1/processes/%d/signal", pid),
		map[string]any{"signal": signal, "sender": sender})
	return err
}

// SignalValue sends a queued signal carrying a payload value.
func (c *Client) SignalValue(pid int, signal string, sender, value int) error {
	_, err := c.doJSON("POST", fmt.Sprintf("/api/v1/processes/%d/signal", pid),
		map[string]any{"signal": signal, "sender": sender, "value": value})
	return err
}

// Exit makes a process exit with the given code.
func (c *Client) Exit(pid, code int) error {
	_, err := c.doJSON("POST", fmt.Sprintf("/api/v1/processes/%d/exit", pid),
		map[string]any{"code": code})
	return err
}

// Kill force-kills a process, bypassing the zombie state.
func (c *Client) Kill(pid int) error {
	_, err := c.doJSON("POST", fmt.Sprintf("/api/v1/processes/%d/kill", pid), nil)
	return err
}

// Wait reaps a zombie child of pid. A zero child matches any child.
func (c *Client) Wait(pid, child int, nohang bool) (map[string]any, error) {
	return c.doJSON("POST", fmt.Sprintf("/api/v1/processes/%d/wait", pid),
		map[string]any{"child": child, "nohang": nohang})
}

// Alarm arms a SIGALRM timer on pid. It returns the seconds that were
// remaining on any previously armed timer.
func (c *Client) Alarm(pid, seconds int) (int, error) {
	result, err := c.doJSON("POST", fmt.Sprintf("/api/v1/processes/%d/alarm", pid),
		map[string]any{"seconds": seconds})
	if err != nil {
		return 0, err
	}
	remaining, _ := result["remaining"].(float64)
	return int(remaining), nil
}

// Sweep reaps zombies older than maxAge seconds. Zero reaps all.
func (c *Client) Sweep(maxAge int) (int, error) {
	result, err := c.doJSON("POST", fmt.Sprintf("/api/v1/sweep?max_age=%d", maxAge), nil)
	if err != nil {
		return 0, err
	}
	reaped, _ := result["reaped"].(float64)
	return int(reaped), nil
}

// --- Status display ---

// Status retrieves and formats the process table.
func (c *Client) Status(names []string, jsonOutput bool, w io.Writer) error {
	resp, err := c.do("GET", "/api/v1/processes", nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var procs []ProcessInfo
	if err := json.NewDecoder(resp.Body).Decode(&procs); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}

	// Filter by names if specified.
	if len(names) > 0 {
		filter := make(map[string]bool)
		for _, n := range names {
			filter[n] = true
		}
		var filtered []ProcessInfo
		for _, p := range procs {
			if filter[p.Name] {
				filtered = append(filtered, p)
			}
		}
		procs = filtered
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(procs)
	}

	return formatStatusTable(procs, w, isTerminal(w))
}

func formatStatusTable(procs []ProcessInfo, w io.Writer, color bool) error {
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].PID < procs[j].PID
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "PID\tPPID\tNAME\tSTATE\tPENDING\tDESCRIPTION\n")

	for _, p := range procs {
		state := p.State
		if color {
			state = colorState(p.State)
		}

		pending := "-"
		if len(p.Pending) > 0 {
			pending = strings.Join(p.Pending, ",")
		}

		desc := ""
		switch p.State {
		case "ZOMBIE":
			if p.KilledBy != 0 {
				desc = fmt.Sprintf("killed by %d", p.KilledBy)
			} else {
				desc = fmt.Sprintf("exit %d", p.ExitCode)
			}
		case "RUNNING", "READY":
			desc = formatDuration(time.Since(p.CreatedAt))
		}

		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", p.PID, p.PPID, p.Name, state, pending, desc)
	}
	return tw.Flush()
}

func colorState(state string) string {
	switch state {
	case "RUNNING":
		return "\033[32m" + state + "\033[0m"
	case "ZOMBIE":
		return "\033[31m" + state + "\033[0m"
	case "STOPPED", "BLOCKED":
		return "\033[33m" + state + "\033[0m"
	default:
		return state
	}
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		stat, _ := f.Stat()
		return stat != nil && (stat.Mode()&os.ModeCharDevice) != 0
	}
	return false
}

// --- Info operations ---

// Signals prints the signal table.
func (c *Client) Signals(w io.Writer) error {
	resp, err := c.do("GET", "/api/v1/signals", nil)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var sigs []struct {
		Number   int    `json:"number"`
		Name     string `json:"name"`
		Default  string `json:"default"`
		Realtime bool   `json:"realtime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sigs); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "NUM\tNAME\tDEFAULT\tREALTIME\n")
	for _, s := range sigs {
		rt := ""
		if s.Realtime {
			rt = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Number, s.Name, s.Default, rt)
	}
	return tw.Flush()
}

// Stats returns accumulated kernel counters.
func (c *Client) Stats() (map[string]any, error) {
	return c.doJSON("GET", "/api/v1/stats", nil)
}

// --- Event streaming ---

// Events streams kernel events via SSE, one JSON line per event.
// An empty types filter streams everything.
func (c *Client) Events(ctx context.Context, types []string, w io.Writer) error {
	path := "/api/v1/events/stream"
	if len(types) > 0 {
		path += "?types=" + strings.Join(types, ",")
	}
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	// The default client timeout would cut the stream short.
	client := &http.Client{Transport: c.httpClient.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
			return fmt.Errorf("server error (status %d)", resp.StatusCode)
		}
		return fmt.Errorf("%s", errBody["error"])
	}

	buf := make([]byte, 4096)
	var event string
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range strings.Split(string(buf[:n]), "\n") {
				if strings.HasPrefix(line, "event: ") {
					event = line[7:]
				} else if strings.HasPrefix(line, "data: ") {
					fmt.Fprintf(w, "%s %s\n", event, line[6:])
				}
			}
		}
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// --- Daemon operations ---

// Shutdown initiates daemon shutdown.
func (c *Client) Shutdown() error {
	_, err := c.doJSON("POST", "/api/v1/shutdown", nil)
	return err
}

// Version returns daemon version info.
func (c *Client) Version() (map[string]any, error) {
	return c.doJSON("GET", "/api/v1/version", nil)
}

// PID returns the daemon PID from the version endpoint.
func (c *Client) PID() (string, error) {
	result, err := c.doJSON("GET", "/api/v1/version", nil)
	if err != nil {
		return "", err
	}
	if pid, ok := result["pid"]; ok {
		return fmt.Sprintf("%v", pid), nil
	}
	return "", fmt.Errorf("pid not available from version endpoint")
}

// --- Health checks ---

// Health checks daemon liveness.
func (c *Client) Health() (string, error) {
	resp, err := c.do("GET", "/healthz", nil)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("invalid response: %w", err)
	}
	return body["status"], nil
}

// Ready checks daemon readiness.
func (c *Client) Ready() (string, error) {
	resp, err := c.do("GET", "/readyz", nil)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("invalid response: %w", err)
	}
	status, _ := body["status"].(string)
	return status, nil
}
