package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/gitsync"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// SyncCmd implements the 'sync' command.
type SyncCmd struct {
	Dir      string        `short:"d" help:"Content directory (overrides content.directory)"`
	NoCommit bool          `name:"no-commit" help:"Skip committing local changes"`
	Message  string        `short:"m" help:"Commit message (default: generated from sync.commit_prefix and the current time)"`
	NoPull   bool          `name:"no-pull" help:"Skip pulling from the remote"`
	NoPush   bool          `name:"no-push" help:"Skip pushing to the remote"`
	Remote   string        `help:"Remote to pull from and push to (overrides sync.remote)"`
	Branch   string        `help:"Branch to pull (overrides sync.branch)"`
	Every    time.Duration `help:"Repeat the sync at this interval (overrides sync.schedule)"`
	Once     bool          `help:"Run a single sync even when sync.schedule is set"`
}

func (s *SyncCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root, s.Dir)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := s.Every
	if interval == 0 && cfg.Sync.Schedule != "" && !s.Once {
		interval, _ = time.ParseDuration(cfg.Sync.Schedule) // validated on load
	}
	opts := s.options(cfg)
	if interval > 0 {
		return gitsync.RunEvery(ctx, interval, func(ctx context.Context) error {
			return RunSync(ctx, cfg, newRunner(), opts)
		})
	}
	return RunSync(ctx, cfg, newRunner(), opts)
}

func (s *SyncCmd) options(cfg *config.Config) gitsync.Options {
	opts := gitsync.Options{
		Commit:       !s.NoCommit,
		Pull:         !s.NoPull,
		Push:         !s.NoPush,
		Message:      s.Message,
		CommitPrefix: cfg.Sync.CommitPrefix,
		Locale:       cfg.Sync.Locale,
		Remote:       cfg.Sync.Remote,
		Branch:       cfg.Sync.Branch,
		Ignored:      []string{cfg.Content.CacheDir, cfg.Build.Output},
	}
	if s.Remote != "" {
		opts.Remote = s.Remote
	}
	if s.Branch != "" {
		opts.Branch = s.Branch
	}
	return opts
}

// RunSync runs one sync session from the current directory, which must be
// inside the site's git repository.
func RunSync(ctx context.Context, cfg *config.Config, runner gitsync.Runner, opts gitsync.Options) error {
	if !gitsync.IsRepository(".") {
		return ferrors.GitError("not a git repository").
			WithContext("path", ".").
			WithContext("hint", "run sitebuilder sync from the site repository").
			UserAction().
			Build()
	}
	store := newStore(cfg)
	if err := checkInterrupted(store); err != nil {
		return err
	}

	sess, err := gitsync.NewCoordinator(store, runner).Sync(ctx, opts)
	if err != nil {
		slog.Error("Sync failed",
			logfields.Phase(sess.FailedPhase.String()),
			slog.Bool("was_symlink", sess.WasSymlink))
		return err
	}
	attrs := []any{slog.Bool("committed", opts.Commit && !sess.CommitSkipped)}
	if sess.PushedBranch != "" {
		attrs = append(attrs, logfields.Remote(opts.Remote), logfields.Branch(sess.PushedBranch))
	}
	slog.Info("Sync complete", attrs...)
	return nil
}
