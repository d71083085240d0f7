package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/contentstore"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/gitsync"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Content initialization strategies.
const (
	StrategyNew     = "new"
	StrategyCopy    = "copy"
	StrategySymlink = "symlink"
)

const indexTemplate = `---
title: %q
---

This is the landing page of your site. Edit ` + "`index.md`" + ` to get started.
`

// CreateCmd implements the 'create' command.
type CreateCmd struct {
	Dir      string `short:"d" help:"Content directory (overrides content.directory)"`
	Source   string `short:"s" help:"Existing directory to copy or link (copy and symlink strategies)"`
	Strategy string `short:"X" help:"How to initialize content: new, copy or symlink" enum:"new,copy,symlink" default:"new"`
	Links    string `short:"l" help:"Link resolution: shortest, absolute or relative (default: site.link_resolution)"`
	Force    bool   `help:"Replace an existing content directory"`
}

func (c *CreateCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root, c.Dir)
	if err != nil {
		return err
	}
	if c.Links != "" {
		lr, err := config.ParseLinkResolution(c.Links)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid --links value").
				WithContext("value", c.Links).
				Build()
		}
		cfg.Site.LinkResolution = lr
	}
	if err := RunCreate(cfg, CreateOptions{Strategy: c.Strategy, Source: c.Source, Force: c.Force}); err != nil {
		return err
	}
	if err := config.Save(root.Config, cfg); err != nil {
		return err
	}
	slog.Info("Configuration written", logfields.Path(root.Config),
		slog.String("link_resolution", string(cfg.Site.LinkResolution)))
	return nil
}

// CreateOptions selects how the content directory is initialized.
type CreateOptions struct {
	Strategy string
	Source   string
	Force    bool
}

// RunCreate initializes the content directory. Inside a repository it
// also git-ignores the cache and output directories and, with
// sync.upstream_url set, registers the upstream remote.
func RunCreate(cfg *config.Config, opts CreateOptions) error {
	dir := cfg.Content.Directory
	if err := prepareContentDir(dir, opts.Force); err != nil {
		return err
	}

	switch opts.Strategy {
	case StrategyNew, "":
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create content directory").
				Fatal().WithContext("content_dir", dir).Build()
		}
		index := filepath.Join(dir, "index.md")
		if err := os.WriteFile(index, fmt.Appendf(nil, indexTemplate, cfg.Site.Title), 0o600); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write index page").
				Fatal().WithContext("path", index).Build()
		}
	case StrategyCopy:
		src, err := sourceDir(opts.Source)
		if err != nil {
			return err
		}
		if err := contentstore.CopyTree(src, dir); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy content").
				Fatal().WithContext("source", src).Build()
		}
	case StrategySymlink:
		src, err := sourceDir(opts.Source)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create content parent").
				Fatal().WithContext("content_dir", dir).Build()
		}
		if err := os.Symlink(src, dir); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "link content").
				Fatal().WithContext("source", src).Build()
		}
	default:
		return ferrors.ValidationError(fmt.Sprintf("unknown strategy %q", opts.Strategy)).Build()
	}
	slog.Info("Content initialized", logfields.ContentDir(dir), slog.String("strategy", opts.Strategy))

	repo, err := gitsync.OpenRepo(".")
	if err != nil {
		slog.Warn("Not a git repository, skipping .gitignore and upstream remote", logfields.Error(err))
		return nil //nolint:nilerr // outside a repository there is nothing to configure
	}
	added, err := repo.EnsureIgnored(cfg.Content.CacheDir, cfg.Build.Output)
	if err != nil {
		return err
	}
	if len(added) > 0 {
		slog.Info("Updated .gitignore",
			logfields.Path(filepath.Join(repo.Root(), gitsync.GitignoreFile)),
			slog.Any("entries", added))
	}
	if cfg.Sync.UpstreamURL == "" {
		return nil
	}
	_, err = repo.EnsureRemote(cfg.Sync.UpstreamName, cfg.Sync.UpstreamURL)
	return err
}

// prepareContentDir refuses to clobber existing content unless force is set.
// An empty directory is always replaced.
func prepareContentDir(dir string, force bool) error {
	fi, err := os.Lstat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat content directory").
			Fatal().WithContext("content_dir", dir).Build()
	}
	if !force && fi.IsDir() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "read content directory").
				Fatal().WithContext("content_dir", dir).Build()
		}
		if len(entries) > 0 {
			return ferrors.ValidationError("content directory already exists and is not empty").
				WithContext("content_dir", dir).
				UserAction().
				Build()
		}
	} else if !force {
		return ferrors.ValidationError("content path already exists").
			WithContext("content_dir", dir).
			UserAction().
			Build()
	}
	if err := os.RemoveAll(dir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove content directory").
			Fatal().WithContext("content_dir", dir).Build()
	}
	return nil
}

func sourceDir(source string) (string, error) {
	if source == "" {
		return "", ferrors.ValidationError("--source is required for the copy and symlink strategies").Build()
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryValidation, "resolve source").Build()
	}
	fi, err := os.Stat(abs)
	if err != nil || !fi.IsDir() {
		return "", ferrors.NotFoundError("source directory not found").WithContext("source", source).Build()
	}
	return abs, nil
}
