package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/osirisdev/osiris/internal/ctl"
)

var (
	ctlSocket string
	ctlAddr   string
	ctlUser   string
	ctlPass   string
	ctlJSON   bool
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running Osiris daemon",
	Long:  "Send commands to a running Osiris daemon via its API.",
}

func newCtlClient() *ctl.Client {
	if ctlAddr != "" {
		return ctl.NewTCPClient(ctlAddr, ctlUser, ctlPass)
	}
	sock := ctlSocket
	if sock == "" {
		sock = "/var/run/osiris.sock"
	}
	return ctl.NewUnixClient(sock)
}

func argPID(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid < 1 {
		return 0, fmt.Errorf("invalid pid: %s", s)
	}
	return pid, nil
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status [name...]",
	Short: "Show the process table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCtlClient().Status(args, ctlJSON, cmd.OutOrStdout())
	},
}

var (
	spawnPPID  int
	spawnUID   int
	spawnGID   int
	spawnStart bool
)

var ctlSpawnCmd = &cobra.Command{
	Use:   "spawn <name>",
	Short: "Create a new process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := newCtlClient().Spawn(args[0], spawnPPID, spawnUID, spawnGID, spawnStart)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "spawned %s with pid %d\n", args[0], pid)
		return nil
	},
}

var ctlStartCmd = &cobra.Command{
	Use:   "start <pid>",
	Short: "Schedule a ready process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := argPID(args[0])
		if err != nil {
			return err
		}
		if err := newCtlClient().Start(pid); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d: running\n", pid)
		return nil
	},
}

var (
	signalSender int
	signalValue  int
)

var ctlSignalCmd = &cobra.Command{
	Use:   "signal <pid> <signal>",
	Short: "Send a signal to a process",
	Long:  "Send a signal by name (SIGTERM, TERM, SIGRT5) or number to a process.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := argPID(args[0])
		if err != nil {
			return err
		}
		c := newCtlClient()
		if cmd.Flags().Changed("value") {
			err = c.SignalValue(pid, args[1], signalSender, signalValue)
		} else {
			err = c.Signal(pid, args[1], signalSender)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d: signaled %s\n", pid, args[1])
		return nil
	},
}

var exitCode int

var ctlExitCmd = &cobra.Command{
	Use:   "exit <pid>",
	Short: "Make a process exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := argPID(args[0])
		if err != nil {
			return err
		}
		if err := newCtlClient().Exit(pid, exitCode); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d: exited with code %d\n", pid, exitCode)
		return nil
	},
}

var ctlKillCmd = &cobra.Command{
	Use:   "kill <pid>",
	Short: "Force-kill a process, bypassing the zombie state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := argPID(args[0])
		if err != nil {
			return err
		}
		if err := newCtlClient().Kill(pid); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d: force-killed\n", pid)
		return nil
	},
}

var (
	waitChild  int
	waitNohang bool
)

var ctlWaitCmd = &cobra.Command{
	Use:   "wait <pid>",
	Short: "Reap a zombie child of a process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := argPID(args[0])
		if err != nil {
			return err
		}
		result, err := newCtlClient().Wait(pid, waitChild, waitNohang)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var alarmSeconds int

var ctlAlarmCmd = &cobra.Command{
	Use:   "alarm <pid>",
	Short: "Arm or cancel a SIGALRM timer on a process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := argPID(args[0])
		if err != nil {
			return err
		}
		remaining, err := newCtlClient().Alarm(pid, alarmSeconds)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d: alarm armed, %d seconds were remaining\n", pid, remaining)
		return nil
	},
}

var sweepMaxAge int

var ctlSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reap stale zombies",
	RunE: func(cmd *cobra.Command, args []string) error {
		reaped, err := newCtlClient().Sweep(sweepMaxAge)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reaped %d zombies\n", reaped)
		return nil
	},
}

var ctlSignalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Show the signal table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCtlClient().Signals(cmd.OutOrStdout())
	},
}

var ctlStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show kernel counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newCtlClient().Stats()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var ctlEventsCmd = &cobra.Command{
	Use:   "events [type...]",
	Short: "Stream kernel events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return newCtlClient().Events(ctx, args, cmd.OutOrStdout())
	},
}

var ctlShutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut down the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newCtlClient().Shutdown(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
		return nil
	},
}

var ctlVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show daemon version",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newCtlClient().Version()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var ctlPIDCmd = &cobra.Command{
	Use:   "pid",
	Short: "Show the daemon PID",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := newCtlClient().PID()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), pid)
		return nil
	},
}

var ctlHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newCtlClient().Health()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		if status != "ok" {
			os.Exit(1)
		}
		return nil
	},
}

var ctlReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Check daemon readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newCtlClient().Ready()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		if status != "ready" {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	ctlCmd.PersistentFlags().StringVar(&ctlSocket, "socket", "", "Unix socket path (default /var/run/osiris.sock)")
	ctlCmd.PersistentFlags().StringVar(&ctlAddr, "addr", "", "TCP address of the daemon API")
	ctlCmd.PersistentFlags().StringVar(&ctlUser, "user", "", "HTTP Basic Auth username")
	ctlCmd.PersistentFlags().StringVar(&ctlPass, "pass", "", "HTTP Basic Auth password")

	ctlStatusCmd.Flags().BoolVar(&ctlJSON, "json", false, "output JSON")

	ctlSpawnCmd.Flags().IntVar(&spawnPPID, "ppid", 1, "parent pid")
	ctlSpawnCmd.Flags().IntVar(&spawnUID, "uid", 0, "owner uid")
	ctlSpawnCmd.Flags().IntVar(&spawnGID, "gid", 0, "owner gid")
	ctlSpawnCmd.Flags().BoolVar(&spawnStart, "start", true, "schedule immediately")

	ctlSignalCmd.Flags().IntVar(&signalSender, "sender", 1, "sender pid")
	ctlSignalCmd.Flags().IntVar(&signalValue, "value", 0, "queued payload value for real-time signals")

	ctlExitCmd.Flags().IntVar(&exitCode, "code", 0, "exit code")

	ctlWaitCmd.Flags().IntVar(&waitChild, "child", 0, "child pid to wait for (0 = any)")
	ctlWaitCmd.Flags().BoolVar(&waitNohang, "nohang", true, "do not block when no child has exited")

	ctlAlarmCmd.Flags().IntVar(&alarmSeconds, "seconds", 0, "seconds until SIGALRM (0 cancels)")

	ctlSweepCmd.Flags().IntVar(&sweepMaxAge, "max-age", 0, "only reap zombies older than this many seconds")

	ctlCmd.AddCommand(ctlStatusCmd, ctlSpawnCmd, ctlStartCmd, ctlSignalCmd,
		ctlExitCmd, ctlKillCmd, ctlWaitCmd, ctlAlarmCmd, ctlSweepCmd,
		ctlSignalsCmd, ctlStatsCmd, ctlEventsCmd, ctlShutdownCmd,
		ctlVersionCmd, ctlPIDCmd, ctlHealthCmd, ctlReadyCmd)
	rootCmd.AddCommand(ctlCmd)
}
