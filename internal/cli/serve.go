package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zmapd/internal/app"
	"zmapd/internal/config"
	"zmapd/internal/httpapi"
	"zmapd/internal/manager"
	"zmapd/internal/store"
	"zmapd/internal/window"
)

type serveOptions struct {
	Addr        string
	ConfigDir   string
	StatePath   string
	Restore     bool
	CORSOrigins string
	MaxBody     int64
	Timeout     time.Duration
}

func newServeCmd(o *Options) *cobra.Command {
	so := &serveOptions{
		Addr:        envStr("ZMAPD_ADDR", ":8080"),
		ConfigDir:   envStr("ZMAPD_CONFIG_DIR", ""),
		StatePath:   envStr("ZMAPD_STATE", ""),
		Restore:     envBool("ZMAPD_RESTORE", true),
		CORSOrigins: envStr("ZMAPD_CORS_ORIGINS", ""),
		MaxBody:     int64(envInt("ZMAPD_MAX_BODY_BYTES", 1<<20)),
		Timeout:     time.Duration(envInt("ZMAPD_COMMAND_TIMEOUT_SECONDS", 30)) * time.Second,
	}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the view manager behind the HTTP and remote control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, o, so)
		},
	}
	f := cmd.Flags()
	f.StringVar(&so.Addr, "addr", so.Addr, "HTTP listen address, e.g. :8080")
	f.StringVar(&so.ConfigDir, "config-dir", so.ConfigDir, "Directory for daemon state (defaults to the user config dir)")
	f.StringVar(&so.StatePath, "state", so.StatePath, "Session database path (defaults to <config-dir>/sessions.db)")
	f.BoolVar(&so.Restore, "restore", so.Restore, "Reopen the ZMaps recorded by the previous run")
	f.StringVar(&so.CORSOrigins, "cors-origins", so.CORSOrigins, "Comma separated origins allowed by CORS (empty disables CORS)")
	f.Int64Var(&so.MaxBody, "max-body-bytes", so.MaxBody, "Maximum request body size")
	f.DurationVar(&so.Timeout, "command-timeout", so.Timeout, "Upper bound for one manager command")
	return cmd
}

func runServe(cmd *cobra.Command, o *Options, so *serveOptions) error {
	cfg, err := o.settings(cmd)
	if err != nil {
		return err
	}
	if cfg.Addr != "" && !cmd.Flags().Changed("addr") {
		so.Addr = cfg.Addr
	}
	if cfg.StatePath != "" && !cmd.Flags().Changed("state") {
		so.StatePath = cfg.StatePath
	}
	origins := splitCSV(so.CORSOrigins)
	if len(origins) == 0 && !cmd.Flags().Changed("cors-origins") {
		origins = cfg.CORSOrigins
	}

	logger := app.NewLogger(os.Stderr, cfg.LogLevel)
	a, err := app.New(logger, so.ConfigDir)
	if err != nil {
		return err
	}
	if so.StatePath == "" {
		so.StatePath = a.Path("sessions.db")
	}
	st, err := store.Open(so.StatePath)
	if err != nil {
		return err
	}
	defer st.Close()
	pub, err := manager.NewMetricsPublisher(prometheus.DefaultRegisterer, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.SetCallbacks(app.Callbacks{
		ZMapDeleted: func(id string) {
			logger.Debug().Str("event", "zmap_deleted").Str("zmap", id).Msg("zmap gone")
		},
		Exit: cancel,
	}); err != nil {
		return err
	}
	defer a.Teardown()

	m := manager.NewWithConfig(manager.ManagerConfig{
		App:           a,
		Sources:       cfg.Sources,
		PollInterval:  cfg.PollInterval(),
		WindowFactory: window.Factory(logger),
		Store:         st,
		Publisher:     pub,
		DNA:           cfg.DNA,
		Samtools:      cfg.Samtools,
	})
	var runErr error
	stopped := make(chan struct{})
	go func() { runErr = m.Run(runCtx); close(stopped) }()
	defer func() { cancel(); <-stopped }()
	if err := waitReady(runCtx, m); err != nil {
		return err
	}
	if so.Restore {
		n, err := m.Restore(runCtx)
		if err != nil {
			logger.Warn().Str("event", "restore_failed").Err(err).Msg("could not restore sessions")
		} else if n > 0 {
			logger.Info().Str("event", "restored").Int("zmaps", n).Msg("sessions restored")
		}
	}
	if o.ConfigPath != "" {
		watchConfig(runCtx, o.ConfigPath, m, logger)
	}

	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(runCtx)
	httpapi.SetMaxBodyBytes(so.MaxBody)
	httpapi.SetCommandTimeout(so.Timeout)
	if len(origins) > 0 {
		httpapi.SetCORSOptions(true, origins, []string{"GET", "POST", "DELETE", "OPTIONS"}, []string{"Content-Type", "X-Log-Level"})
	}
	srv := &http.Server{Addr: so.Addr, Handler: httpapi.NewMux(m), ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("event", "listen").Str("addr", so.Addr).Int("sources", len(cfg.Sources)).Msg("zmapd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-runCtx.Done():
	case err = <-serveErr:
		cancel()
	}
	// Graceful shutdown (Ctrl+C / SIGTERM / remote shutdown)
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if serr := srv.Shutdown(sctx); serr != nil {
		logger.Warn().Str("event", "http_shutdown").Err(serr).Msg("graceful shutdown error")
	}
	<-stopped
	if err == nil {
		err = runErr
	}
	return err
}

// watchConfig swaps the source list whenever the config file changes.
func watchConfig(ctx context.Context, path string, m *manager.Manager, logger zerolog.Logger) {
	err := config.Watch(ctx, path, func(cfg config.Config, err error) {
		if err != nil {
			logger.Warn().Str("event", "config_reload_failed").Err(err).Msg("keeping previous sources")
			return
		}
		sources, err := collectSources(cfg)
		if err != nil {
			logger.Warn().Str("event", "config_reload_failed").Err(err).Msg("keeping previous sources")
			return
		}
		m.SetServers(sources)
	})
	if err != nil {
		logger.Warn().Str("event", "config_watch_failed").Err(err).Msg("config changes will need a restart")
	}
}
