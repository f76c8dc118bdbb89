package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/osirisdev/osiris/internal/api"
	"github.com/osirisdev/osiris/internal/config"
	"github.com/osirisdev/osiris/internal/logging"
	"github.com/osirisdev/osiris/internal/supervisor"
)

var (
	daemonConfig    string
	daemonPIDFile   string
	daemonDetach    bool
	daemonUser      string
	daemonCheckOnly bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the Osiris kernel daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	daemonCmd.Flags().StringVarP(&daemonConfig, "config", "c", "", "config file path")
	daemonCmd.Flags().StringVarP(&daemonPIDFile, "pidfile", "p", "", "write daemon PID to this file")
	daemonCmd.Flags().BoolVarP(&daemonDetach, "daemonize", "d", false, "detach and run in the background")
	daemonCmd.Flags().StringVar(&daemonUser, "user", "", "drop privileges to uid or uid:gid after binding sockets")
	daemonCmd.Flags().BoolVar(&daemonCheckOnly, "check", false, "validate the config and exit")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon() error {
	path, err := config.Resolve(daemonConfig)
	if err != nil {
		return err
	}

	cfg, warnings, err := config.LoadWithIncludes(path)
	if err != nil {
		return err
	}

	if daemonCheckOnly {
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
		fmt.Printf("%s: config OK\n", path)
		return nil
	}

	logger, logReopen, err := logging.DaemonLogger(logging.DaemonConfig{
		File:     cfg.Logging.File,
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		MaxBytes: cfg.Logging.MaxBytes,
		Backups:  cfg.Logging.Backups,
	})
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logger.Warn("config warning", "warning", w)
	}

	if daemonDetach {
		parent, err := supervisor.Daemonize(logger)
		if err != nil {
			return err
		}
		if parent {
			return nil
		}
	}

	supervisor.RootWarning(logger, daemonUser != "")

	sup := supervisor.New(supervisor.SupervisorConfig{
		Config:     cfg,
		ConfigPath: path,
		PIDFile:    daemonPIDFile,
		Logger:     logger,
		LogReopen:  logReopen,
	})

	srv := api.NewServer(api.Config{
		Username: cfg.Server.HTTP.Username,
		Password: cfg.Server.HTTP.Password,
	}, sup.Kernel(), sup.Calls(), sup, sup.Bus(), sup.Metrics().Handler(), logger)
	srv.SetJournal(sup.Journal())

	if err := supervisor.ValidateSocketPermissions(cfg.Server.Unix.File); err != nil {
		return err
	}
	if err := srv.StartUnix(cfg.Server.Unix.File, socketMode(cfg.Server.Unix.Chmod)); err != nil {
		return err
	}
	if cfg.Server.HTTP.Enabled {
		if err := srv.StartTCP(cfg.Server.HTTP.Listen); err != nil {
			return err
		}
	}

	// Sockets are bound; now drop privileges if configured.
	if err := supervisor.DropPrivileges(daemonUser, logger); err != nil {
		return err
	}

	err = sup.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if stopErr := srv.Stop(ctx); stopErr != nil {
		logger.Error("server stop failed", "error", stopErr)
	}
	return err
}

// socketMode parses an octal chmod string, falling back to 0700.
func socketMode(s string) os.FileMode {
	if s == "" {
		return 0700
	}
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0700
	}
	return os.FileMode(n)
}
