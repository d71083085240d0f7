package gitsync

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Repo is a read-mostly handle on the site repository used for preflight
// checks and remote configuration. History-changing operations go through
// Runner so they behave exactly like the git CLI.
type Repo struct {
	repo *git.Repository
	root string
}

// OpenRepo opens the repository containing path, searching parent
// directories for .git.
func OpenRepo(path string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ferrors.GitError("not a git repository").
				WithCause(err).
				WithContext("path", path).
				UserAction().
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryGit, "open repository").
			Fatal().
			WithContext("path", path).
			Build()
	}
	wt, err := r.Worktree()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryGit, "repository has no worktree").
			Fatal().
			WithContext("path", path).
			Build()
	}
	return &Repo{repo: r, root: wt.Filesystem.Root()}, nil
}

// IsRepository reports whether path is inside a git worktree.
func IsRepository(path string) bool {
	_, err := OpenRepo(path)
	return err == nil
}

// Root returns the worktree root.
func (r *Repo) Root() string { return r.root }

// RemoteURL returns the first URL of the named remote.
func (r *Repo) RemoteURL(name string) (string, bool) {
	rem, err := r.repo.Remote(name)
	if err != nil {
		return "", false
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", false
	}
	return urls[0], true
}

// EnsureRemote adds the named remote pointing at url unless it already
// exists. An existing remote is left untouched even if its URL differs.
func (r *Repo) EnsureRemote(name, url string) (bool, error) {
	_, err := r.repo.Remote(name)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, git.ErrRemoteNotFound) {
		return false, ferrors.WrapError(err, ferrors.CategoryGit, fmt.Sprintf("look up remote %q", name)).
			Fatal().
			Build()
	}
	if url == "" {
		return false, ferrors.ConfigError(fmt.Sprintf("remote %q is missing and no URL is configured", name)).
			WithContext("remote", name).
			Build()
	}
	if _, err := r.repo.CreateRemote(&gitconfig.RemoteConfig{Name: name, URLs: []string{url}}); err != nil {
		return false, ferrors.WrapError(err, ferrors.CategoryGit, fmt.Sprintf("add remote %q", name)).
			Fatal().
			WithContext("url", url).
			Build()
	}
	slog.Info("Added remote", logfields.Remote(name), slog.String("url", url))
	return true, nil
}
