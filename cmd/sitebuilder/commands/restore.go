package commands

import (
	"log/slog"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// RestoreCmd implements the 'restore' command.
type RestoreCmd struct {
	Dir   string `short:"d" help:"Content directory (overrides content.directory)"`
	Force bool   `help:"Replace a content directory that exists alongside the mirror"`
}

func (r *RestoreCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root, r.Dir)
	if err != nil {
		return err
	}
	return RunRestore(cfg, r.Force)
}

// RunRestore moves content left in the cache mirror back into place.
func RunRestore(cfg *config.Config, force bool) error {
	store := newStore(cfg)
	occupied, err := store.Occupied()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat cache mirror").Fatal().Build()
	}
	if !occupied {
		slog.Info("Nothing to restore", logfields.MirrorDir(store.MirrorDir))
		return nil
	}
	present, err := store.Present()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat content directory").Fatal().Build()
	}
	if present && !force {
		return ferrors.ValidationError("content directory exists; pass --force to replace it with the mirror").
			WithContext("content_dir", store.ContentDir).
			WithContext("mirror_dir", store.MirrorDir).
			UserAction().
			Build()
	}
	if err := store.Restore(); err != nil {
		return err
	}
	slog.Info("Content restored", logfields.ContentDir(store.ContentDir))
	return nil
}
