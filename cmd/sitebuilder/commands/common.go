package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/contentstore"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/gitsync"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"sitebuilder.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Compile the content directory into a static site"`
	Sync    SyncCmd    `cmd:"" help:"Commit, pull and push content with git"`
	Update  UpdateCmd  `cmd:"" help:"Pull the upstream source branch, keeping local content"`
	Create  CreateCmd  `cmd:"" help:"Initialize the content directory"`
	Restore RestoreCmd `cmd:"" help:"Restore content left in the cache mirror by an interrupted session"`
}

// AfterApply runs after flag parsing; setup logging once. The logger is
// rebuilt from the logging section once a command has loaded its config.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	slog.SetDefault(config.LoggingConfig{}.NewLogger(os.Stderr, c.Verbose))
	return nil
}

// loadConfig reads the configuration, applies the content directory
// override and installs the configured logger.
func loadConfig(root *CLI, contentDir string) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	if contentDir != "" {
		cfg.Content.Directory = contentDir
		if err := config.ValidateConfig(cfg); err != nil {
			return nil, err
		}
	}
	slog.SetDefault(cfg.Logging.NewLogger(os.Stderr, root.Verbose))
	return cfg, nil
}

func newStore(cfg *config.Config) *contentstore.Store {
	return contentstore.New(cfg.Content.Directory, cfg.Content.MirrorDir())
}

// newRunner builds the git runner used by sync and update.
var newRunner = func() gitsync.Runner {
	return &gitsync.ExecRunner{Stream: true}
}

// checkInterrupted refuses to start a session while an earlier one left
// content in the cache mirror: stashing again would overwrite it.
func checkInterrupted(store *contentstore.Store) error {
	occupied, err := store.Occupied()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat cache mirror").Fatal().Build()
	}
	if !occupied {
		return nil
	}
	slog.Warn("Cache mirror holds content from an interrupted session", logfields.MirrorDir(store.MirrorDir))
	return ferrors.FileSystemError("cache mirror is occupied by an interrupted session").
		WithContext("mirror_dir", store.MirrorDir).
		WithContext("content_dir", store.ContentDir).
		Build()
}
