package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-arlaunch"
	"github.com/goliatone/go-arlaunch/internal/rulewatch"
	"github.com/goliatone/go-arlaunch/internal/server"
	"github.com/goliatone/go-arlaunch/pkg/activity"
	"github.com/goliatone/go-arlaunch/pkg/activity/sqlitesink"
	"github.com/goliatone/go-arlaunch/pkg/activity/usersink"
	"github.com/goliatone/go-arlaunch/pkg/cms"
	"github.com/goliatone/go-arlaunch/pkg/composer"
	"github.com/goliatone/go-arlaunch/pkg/zaplog"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve capability probes and launch redirects over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "", "HTTP listen address")
	flags.String("api-url", "", "CMS and composition API base URL")
	flags.String("cdn", "", "CDN base URL for model files")
	flags.String("fallback-url", "", "page Scene Viewer falls back to")
	flags.String("rules", "", "capability rules file (toml, yaml or json)")
	flags.Bool("watch", false, "reload the rules file when it changes")
	_ = a.v.BindPFlag("listen", flags.Lookup("listen"))
	_ = a.v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = a.v.BindPFlag("cdn_url", flags.Lookup("cdn"))
	_ = a.v.BindPFlag("fallback_url", flags.Lookup("fallback-url"))
	_ = a.v.BindPFlag("rules.file", flags.Lookup("rules"))
	_ = a.v.BindPFlag("rules.watch", flags.Lookup("watch"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	detector, err := a.detector()
	if err != nil {
		return err
	}

	hooks, closeHooks, err := a.activityHooks(ctx)
	if err != nil {
		return err
	}
	defer closeHooks()

	opts := []arlaunch.Option{
		arlaunch.WithSettings(a.cfg.LauncherSettings()),
		arlaunch.WithLaunchLogger(zaplog.LaunchLogger(a.logger)),
		arlaunch.WithActivityHooks(hooks...),
	}
	if a.cfg.APIURL != "" {
		opts = append(opts,
			arlaunch.WithResolver(cms.NewClient(a.cfg.APIURL)),
			arlaunch.WithComposer(composer.NewClient(a.cfg.APIURL)),
		)
	} else {
		a.logger.Warn("no api_url configured; only raw launches can resolve")
	}

	handler := server.New(arlaunch.NewFactory(opts...),
		server.WithDetector(detector),
		server.WithLogger(a.logger.Named("http")),
	).Routes()

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var watcher *rulewatch.Watcher
	if a.cfg.Rules.Watch {
		watcher, err = rulewatch.New(a.cfg.Rules.File, detector,
			rulewatch.WithEngine(a.cfg.Rules.Engine),
			rulewatch.WithLogger(a.logger),
		)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	return g.Wait()
}

// activityHooks wires the configured analytics sinks. The returned func
// closes any opened database.
func (a *app) activityHooks(ctx context.Context) ([]activity.ActivityHook, func(), error) {
	if !a.cfg.Analytics.Enabled {
		return nil, func() {}, nil
	}
	hooks := []activity.ActivityHook{usersink.Hook{Sink: zaplog.ActivitySink(a.logger)}}
	if a.cfg.Analytics.SQLitePath == "" {
		return hooks, func() {}, nil
	}
	sink, err := sqlitesink.Open(ctx, a.cfg.Analytics.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	hooks = append(hooks, sink)
	return hooks, func() {
		if err := sink.Close(); err != nil {
			a.logger.Warn("close analytics database", zap.Error(err))
		}
	}, nil
}
