package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/compile"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/livereload"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/watch"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Dir    string `short:"d" help:"Content directory (overrides content.directory)"`
	Output string `short:"o" help:"Output directory (overrides build.output)"`
	Watch  bool   `help:"Rebuild whenever the content directory changes"`
	Serve  bool   `help:"Serve the output with live reload; implies --watch"`
	Port   int    `help:"Preview server port (overrides build.port)"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root, b.Dir)
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Build.Output = b.Output
	}
	if b.Port != 0 {
		cfg.Build.Port = b.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunBuild(ctx, cfg, BuildOptions{Watch: b.Watch || b.Serve, Serve: b.Serve})
}

// BuildOptions selects the build mode.
type BuildOptions struct {
	Watch bool
	Serve bool
	// Ready, when set, is called once the watch loop is running.
	Ready func()

	// initialBuild, when set, runs after the watcher is registered and
	// before the first build.
	initialBuild func()
}

// RunBuild compiles the content directory once, or keeps rebuilding it on
// change until ctx is done or a rebuild fails.
func RunBuild(ctx context.Context, cfg *config.Config, opts BuildOptions) error {
	if fi, err := os.Stat(cfg.Content.Directory); err != nil || !fi.IsDir() {
		return ferrors.NotFoundError("content directory not found").
			WithContext("content_dir", cfg.Content.Directory).
			UserAction().
			Build()
	}

	var (
		recorder       metrics.Recorder = metrics.NoopRecorder{}
		metricsHandler http.Handler
	)
	if opts.Serve && cfg.Monitoring.Metrics.Enabled {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		metricsHandler = metrics.HTTPHandler(reg)
	}

	compiler := compile.NewContext(compile.Options{
		ContentDir:     cfg.Content.Directory,
		BuildDir:       cfg.Content.BuildDir(),
		Ignore:         cfg.Build.Ignore,
		LinkResolution: cfg.Site.LinkResolution,
	})
	loader := compile.NewLoader(compile.LoaderOptions{
		ContentDir: cfg.Content.Directory,
		OutputDir:  cfg.Build.Output,
		SiteTitle:  cfg.Site.Title,
		BaseURL:    cfg.Site.BaseURL,
		LiveReload: opts.Serve && cfg.Build.LiveReload,
	})
	sched := build.NewScheduler(compiler, loader, build.WithRecorder(recorder))
	defer func() {
		if err := sched.Close(); err != nil {
			slog.Warn("Failed to dispose loaded site", logfields.Error(err))
		}
	}()

	if !opts.Watch {
		art, err := sched.BuildOnce(ctx)
		if err != nil {
			return err
		}
		slog.Info("Build complete",
			logfields.Path(cfg.Build.Output),
			logfields.Inputs(art.Inputs),
			logfields.Size(humanize.Bytes(uint64(max(art.Bytes, 0)))))
		return nil
	}
	return watchAndRebuild(ctx, cfg, sched, opts, metricsHandler)
}

func watchAndRebuild(ctx context.Context, cfg *config.Config, sched *build.Scheduler, opts BuildOptions, metricsHandler http.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hub *livereload.Hub
	if opts.Serve && cfg.Build.LiveReload {
		hub = livereload.NewHub()
	}
	notify := func() {
		art, ok := sched.Current()
		if !ok {
			return
		}
		slog.Info("Site rebuilt", logfields.LoadID(art.LoadID), logfields.Inputs(art.Inputs))
		if hub != nil {
			hub.Broadcast(art.LoadID)
		}
	}

	// Watch before the first build so edits made while it compiles are
	// queued rather than lost.
	w, err := watch.New(cfg.Content.Directory, cfg.Build.Ignore)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "watch content directory").
			Fatal().
			WithContext("content_dir", cfg.Content.Directory).
			Build()
	}
	defer func() {
		if err := w.Close(); err != nil {
			slog.Debug("Failed to close watcher", logfields.Error(err))
		}
	}()

	if opts.initialBuild != nil {
		opts.initialBuild()
	}
	if err := sched.RequestRebuild(ctx, notify); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	if opts.Serve {
		srv := livereload.NewServer(livereload.ServerOptions{
			Addr:        fmt.Sprintf(":%d", cfg.Build.Port),
			OutputDir:   cfg.Build.Output,
			Hub:         hub,
			Metrics:     metricsHandler,
			MetricsPath: cfg.Monitoring.Metrics.Path,
		})
		go func() {
			err := srv.ListenAndServe(ctx)
			if err != nil {
				cancel()
			}
			serveErr <- err
		}()
	} else {
		close(serveErr)
	}

	slog.Info("Watching for changes", logfields.ContentDir(cfg.Content.Directory))
	if opts.Ready != nil {
		opts.Ready()
	}
	werr := w.Run(ctx, func(ctx context.Context, _ fsnotify.Event) error {
		err := sched.RequestRebuild(ctx, notify)
		if err != nil && ctx.Err() != nil {
			// Shutting down.
			return nil
		}
		return err
	})
	cancel()
	if serr := <-serveErr; serr != nil {
		werr = errors.Join(werr, serr)
	}
	return werr
}
