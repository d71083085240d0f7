package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/gitsync"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// UpdateCmd implements the 'update' command.
type UpdateCmd struct {
	Dir string `short:"d" help:"Content directory (overrides content.directory)"`
	Ref string `help:"Upstream branch to pull (overrides sync.upstream_ref)"`
}

func (u *UpdateCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root, u.Dir)
	if err != nil {
		return err
	}
	if u.Ref != "" {
		cfg.Sync.UpstreamRef = u.Ref
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunUpdate(ctx, cfg, newRunner())
}

// RunUpdate makes sure the upstream remote exists, then pulls its source
// branch with the content directory set aside.
func RunUpdate(ctx context.Context, cfg *config.Config, runner gitsync.Runner) error {
	repo, err := gitsync.OpenRepo(".")
	if err != nil {
		return err
	}
	if _, err := repo.EnsureRemote(cfg.Sync.UpstreamName, cfg.Sync.UpstreamURL); err != nil {
		return err
	}
	store := newStore(cfg)
	if err := checkInterrupted(store); err != nil {
		return err
	}

	if err := gitsync.NewCoordinator(store, runner).Update(ctx, cfg.Sync.UpstreamName, cfg.Sync.UpstreamRef); err != nil {
		return err
	}
	slog.Info("Update complete", logfields.Remote(cfg.Sync.UpstreamName), logfields.Branch(cfg.Sync.UpstreamRef))
	return nil
}
