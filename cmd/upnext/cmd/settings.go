package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"upnext/internal/events"
	"upnext/internal/scheduler"
	"upnext/internal/settings"
)

func newSettingsCmd(configPath *string, verbose *bool, stdout io.Writer) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change preferences",
	}

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "Show one setting, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()

			if len(args) == 1 {
				value, err := app.settings.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, value)
				return nil
			}

			for _, key := range settings.Keys() {
				value, err := app.settings.Get(cmd.Context(), key)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "%s = %s\n", key, value)
			}
			return nil
		},
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			// Route through the daemon when it is up so it can react
			// immediately (e.g. restart its sync timer).
			pidPath, socketPath := daemonPaths()
			if scheduler.IsRunning(pidPath, socketPath) {
				resp, err := scheduler.NewClient(socketPath).UpdateSettings(map[string]string{key: value})
				if err == nil {
					if !resp.Success {
						return fmt.Errorf("%s", resp.Error)
					}
					fmt.Fprintf(stdout, "%s = %s\n", key, value)
					return nil
				}
			}

			app, err := newApp(*configPath, *verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.settings.Set(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "%s = %s\n", key, value)
			return nil
		},
	})

	return settingsCmd
}

func newCacheCmd(configPath *string, verbose *bool, stdout io.Writer) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the event cache",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop all cached events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Cache cleared.")
			return nil
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Evict entries past the age bound",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()

			removed, err := app.cache.Cleanup(cmd.Context(), events.MaxCacheAge, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Removed %d entries.\n", removed)
			return nil
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache contents and counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()

			stats, err := app.cache.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "Entries:      %d\n", stats.Entries)
			if !stats.Oldest.IsZero() {
				fmt.Fprintf(stdout, "Oldest:       %s\n", stats.Oldest.Format("2006-01-02 15:04"))
				fmt.Fprintf(stdout, "Newest:       %s\n", stats.Newest.Format("2006-01-02 15:04"))
			}
			if stats.LastUpdate != "" {
				fmt.Fprintf(stdout, "Last update:  %s\n", stats.LastUpdate)
			}

			// Daemon counters cover the long-running process; this
			// process has counters of its own only for this invocation.
			pidPath, socketPath := daemonPaths()
			if scheduler.IsRunning(pidPath, socketPath) {
				if resp, err := scheduler.NewClient(socketPath).Status(); err == nil {
					fmt.Fprintf(stdout, "API calls:    %d\n", resp.Counters.APICalls)
					fmt.Fprintf(stdout, "Cache hits:   %d\n", resp.Counters.CacheHits)
					fmt.Fprintf(stdout, "Cache misses: %d\n", resp.Counters.CacheMisses)
					if total := resp.Counters.CacheHits + resp.Counters.CacheMisses; total > 0 {
						fmt.Fprintf(stdout, "Hit rate:     %.0f%%\n", resp.Counters.HitRate()*100)
					}
				}
			}
			return nil
		},
	})

	return cacheCmd
}
