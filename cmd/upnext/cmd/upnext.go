// Package cmd implements the upnext command line interface.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"upnext/internal/cache"
	"upnext/internal/calendar"
	"upnext/internal/config"
	"upnext/internal/events"
	"upnext/internal/identity"
	"upnext/internal/logging"
	"upnext/internal/metrics"
	"upnext/internal/render"
	"upnext/internal/settings"
	"upnext/internal/store"
	"upnext/internal/timerange"
	"upnext/internal/tui"
)

// Version is set at build time
var Version = "dev"

// Execute runs the CLI with the given arguments and IO writers.
func Execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := NewUpNext(stdout, stderr)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// app holds the wired collaborators for one command invocation.
type app struct {
	cfg      *config.Config
	store    store.Store
	cache    *cache.Cache
	counters *metrics.Counters
	provider identity.Provider
	client   *calendar.Client
	events   *events.Service
	settings *settings.Manager
	log      *logging.Logger
	stdout   io.Writer
}

// newApp loads config and opens the store.
func newApp(configPath string, verbose bool, stdout io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.New(verbose || cfg.IsVerbose())

	if err := os.MkdirAll(filepath.Dir(cfg.GetDatabasePath()), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.OpenSQLite(cfg.GetDatabasePath())
	if err != nil {
		return nil, err
	}

	counters := metrics.NewCounters()
	client := calendar.NewClient(counters)
	if cfg.API.BaseURL != "" {
		client.SetBaseURL(cfg.API.BaseURL)
	}
	if cfg.API.RevokeURL != "" {
		client.SetRevokeURL(cfg.API.RevokeURL)
	}

	eventCache := cache.New(st)
	provider := identity.NewProvider()
	settingsMgr := settings.NewManager(st)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := settingsMgr.EnsureDefaults(ctx); err != nil {
		log.Debug("failed to seed default settings: %v", err)
	}

	return &app{
		cfg:      cfg,
		store:    st,
		cache:    eventCache,
		counters: counters,
		provider: provider,
		client:   client,
		events:   events.NewService(eventCache, client, provider, counters, log),
		settings: settingsMgr,
		log:      log,
		stdout:   stdout,
	}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

// NewUpNext creates the root command with injectable IO.
func NewUpNext(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		verbose    bool

		daemonMode       bool
		daemonPIDPath    string
		daemonSocketPath string
	)

	cmd := &cobra.Command{
		Use:     "upnext",
		Short:   "A calendar viewer for your terminal",
		Long:    "upnext shows your upcoming Google Calendar events with local caching,\nbackground refresh, and event notifications.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemonMode {
				return runDaemonMode(configPath, daemonPIDPath, daemonSocketPath)
			}

			app, err := newApp(configPath, verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()
			return app.renderView(cmd.Context(), timerange.ParseView(app.cfg.DefaultView))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")

	cmd.Flags().BoolVar(&daemonMode, "daemon-mode", false, "")
	cmd.Flags().StringVar(&daemonPIDPath, "daemon-pid-path", "", "")
	cmd.Flags().StringVar(&daemonSocketPath, "daemon-socket-path", "", "")
	_ = cmd.Flags().MarkHidden("daemon-mode")
	_ = cmd.Flags().MarkHidden("daemon-pid-path")
	_ = cmd.Flags().MarkHidden("daemon-socket-path")

	for _, view := range timerange.Views() {
		cmd.AddCommand(newViewCmd(&configPath, &verbose, stdout, view))
	}
	cmd.AddCommand(newPopupCmd(&configPath, &verbose, stdout))
	cmd.AddCommand(newLoginCmd(&configPath, &verbose, stdout))
	cmd.AddCommand(newLogoutCmd(&configPath, &verbose, stdout))
	cmd.AddCommand(newDaemonCmd(&configPath, &verbose, stdout))
	cmd.AddCommand(newSettingsCmd(&configPath, &verbose, stdout))
	cmd.AddCommand(newCacheCmd(&configPath, &verbose, stdout))

	return cmd
}

func newViewCmd(configPath *string, verbose *bool, stdout io.Writer, view timerange.View) *cobra.Command {
	return &cobra.Command{
		Use:   string(view),
		Short: fmt.Sprintf("Show events for %s", view),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()
			return app.renderView(cmd.Context(), view)
		},
	}
}

// renderView fetches and prints one view, with the last-update footer.
func (a *app) renderView(ctx context.Context, view timerange.View) error {
	prefs, err := a.settings.Load(ctx)
	if err != nil {
		a.log.Debug("settings unavailable, using defaults: %v", err)
	}

	r := render.NewRenderer(render.Theme(prefs.Theme), a.stdout)

	list, err := a.events.GetEvents(ctx, view, events.Options{})
	if err != nil {
		// Still draw the frame so the terminal shows a usable view.
		r.RenderView(view, &calendar.EventList{}, time.Now())
		return err
	}

	r.RenderView(view, list, time.Now())
	r.RenderFooter(a.lastUpdate(ctx))
	return nil
}

// lastUpdate reads the display stamp of the most recent cache write.
func (a *app) lastUpdate(ctx context.Context) string {
	got, err := a.store.Get(ctx, []string{cache.LastUpdateKey})
	if err != nil {
		return ""
	}
	return got[cache.LastUpdateKey]
}

func newPopupCmd(configPath *string, verbose *bool, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "popup",
		Short: "Open the interactive event popup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()

			prefs, err := app.settings.Load(cmd.Context())
			if err != nil {
				app.log.Debug("settings unavailable, using defaults: %v", err)
			}

			model := tui.New(&popupSource{app: app}, &popupSession{app: app}, render.Theme(prefs.Theme))
			program := tea.NewProgram(model, tea.WithOutput(stdout))
			_, err = program.Run()
			return err
		},
	}
}

// popupSource adapts the events service and cache to the popup.
type popupSource struct {
	app *app
}

func (s *popupSource) GetEvents(ctx context.Context, view timerange.View, opts events.Options) (*calendar.EventList, error) {
	return s.app.events.GetEvents(ctx, view, opts)
}

func (s *popupSource) LastUpdate(ctx context.Context) string {
	return s.app.lastUpdate(ctx)
}

// popupSession exposes login state and logout to the popup.
type popupSession struct {
	app *app
}

func (s *popupSession) HasToken() bool {
	_, _, err := s.app.provider.Token()
	return err == nil
}

func (s *popupSession) Logout(ctx context.Context) error {
	return s.app.logout(ctx)
}

// logout revokes the token best-effort, forgets it, and clears the
// whole store. The full clear (settings included) is the intended
// reset-to-first-run behavior.
func (a *app) logout(ctx context.Context) error {
	if token, _, err := a.provider.Token(); err == nil {
		revokeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.client.Revoke(revokeCtx, token); err != nil {
			a.log.Debug("token revocation failed: %v", err)
		}
		cancel()
	}

	if err := a.provider.Forget(); err != nil {
		a.log.Warn("failed to remove stored token: %v", err)
	}
	return a.store.Clear(ctx)
}

func newLoginCmd(configPath *string, verbose *bool, stdout io.Writer) *cobra.Command {
	var tokenFlag string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a Google OAuth token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()

			token := strings.TrimSpace(tokenFlag)
			if token == "" {
				fmt.Fprint(stdout, "OAuth token: ")
				raw, err := term.ReadPassword(int(syscall.Stdin))
				fmt.Fprintln(stdout)
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = strings.TrimSpace(string(raw))
			}
			if token == "" {
				return fmt.Errorf("empty token")
			}

			if err := app.provider.Save(token); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			fmt.Fprintln(stdout, "Token stored.")
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenFlag, "token", "", "token value (read from terminal when omitted)")
	return cmd
}

func newLogoutCmd(configPath *string, verbose *bool, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the token and reset all local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath, *verbose, stdout)
			if err != nil {
				return err
			}
			defer app.close()

			if err := app.logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Logged out.")
			return nil
		},
	}
}
