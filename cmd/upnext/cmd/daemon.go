package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"upnext/internal/config"
	"upnext/internal/logging"
	"upnext/internal/notify"
	"upnext/internal/scheduler"
)

// daemonPaths returns the default PID and socket locations.
func daemonPaths() (pidPath, socketPath string) {
	dir := config.GetRuntimeDir()
	return filepath.Join(dir, "daemon.pid"), filepath.Join(dir, "daemon.sock")
}

func newDaemonCmd(configPath *string, verbose *bool, stdout io.Writer) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background daemon",
	}

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the background daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath, socketPath := daemonPaths()
			if scheduler.IsRunning(pidPath, socketPath) {
				fmt.Fprintln(stdout, "Daemon already running.")
				return nil
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if !cfg.IsDaemonEnabled() {
				return fmt.Errorf("daemon is disabled in the config file")
			}

			err = scheduler.Fork(&scheduler.Config{
				PIDPath:    pidPath,
				SocketPath: socketPath,
				ConfigPath: *configPath,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon started.")
			return nil
		},
	})

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath, socketPath := daemonPaths()
			if !scheduler.IsRunning(pidPath, socketPath) {
				fmt.Fprintln(stdout, "Daemon not running.")
				return nil
			}
			if err := scheduler.NewClient(socketPath).Stop(); err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Fprintln(stdout, "Daemon stopped.")
			return nil
		},
	})

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath, socketPath := daemonPaths()
			if !scheduler.IsRunning(pidPath, socketPath) {
				fmt.Fprintln(stdout, "Daemon not running.")
				return nil
			}

			resp, err := scheduler.NewClient(socketPath).Status()
			if err != nil {
				return fmt.Errorf("failed to query daemon: %w", err)
			}
			fmt.Fprintln(stdout, "Daemon running.")
			fmt.Fprintf(stdout, "  Syncs:       %d\n", resp.SyncCount)
			if resp.LastSync != "" {
				fmt.Fprintf(stdout, "  Last sync:   %s\n", resp.LastSync)
			}
			fmt.Fprintf(stdout, "  API calls:   %d\n", resp.Counters.APICalls)
			fmt.Fprintf(stdout, "  Cache hits:  %d\n", resp.Counters.CacheHits)
			fmt.Fprintf(stdout, "  Cache misses: %d\n", resp.Counters.CacheMisses)
			return nil
		},
	})

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Trigger an immediate refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath, socketPath := daemonPaths()
			if !scheduler.IsRunning(pidPath, socketPath) {
				return fmt.Errorf("daemon not running")
			}

			resp, err := scheduler.NewClient(socketPath).ForceSync()
			if err != nil {
				return fmt.Errorf("failed to reach daemon: %w", err)
			}
			if !resp.Success {
				return fmt.Errorf("sync rejected: %s", resp.Error)
			}
			fmt.Fprintln(stdout, "Sync triggered.")
			return nil
		},
	})

	return daemonCmd
}

// runDaemonMode is the reentry point for the forked process. It wires
// the full dependency set and blocks until the daemon stops.
func runDaemonMode(configPath, pidPath, socketPath string) error {
	defaultPID, defaultSocket := daemonPaths()
	if pidPath == "" {
		pidPath = defaultPID
	}
	if socketPath == "" {
		socketPath = defaultSocket
	}

	app, err := newApp(configPath, false, io.Discard)
	if err != nil {
		return err
	}
	defer app.close()

	fileLog, err := logging.NewFileLogger(app.cfg.Daemon.LogFile)
	if err != nil {
		app.log.Warn("daemon log unavailable: %v", err)
	}
	defer fileLog.Close()

	records, err := notify.OpenRecords(app.cfg.GetRecordsPath())
	if err != nil {
		fileLog.Printf("notification records unavailable: %v", err)
		records = nil
	} else {
		defer func() { _ = records.Close() }()
	}

	manager := notify.NewManager(true,
		notify.NewOSChannel(),
		notify.NewLogChannel(filepath.Join(filepath.Dir(app.cfg.Daemon.LogFile), "notifications.log")),
	)
	defer func() { _ = manager.Close() }()

	daemon := scheduler.New(
		&scheduler.Config{
			PIDPath:         pidPath,
			SocketPath:      socketPath,
			ConfigPath:      configPath,
			CleanupInterval: app.cfg.GetCleanupInterval(),
			NotifyInterval:  app.cfg.GetNotifyInterval(),
		},
		scheduler.Deps{
			Store:    app.store,
			Cache:    app.cache,
			Events:   app.events,
			Fetcher:  app.client,
			Settings: app.settings,
			Provider: app.provider,
			Manager:  manager,
			Records:  records,
			Counters: app.counters,
			Log:      fileLog,
		},
	)
	return daemon.Start(context.Background())
}
