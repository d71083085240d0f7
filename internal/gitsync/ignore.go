package gitsync

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// GitignoreFile is the ignore file maintained at the worktree root.
const GitignoreFile = ".gitignore"

// EnsureIgnored appends root-anchored entries to the worktree .gitignore
// for every path not already excluded by the repository's ignore rules.
// Paths outside the worktree are skipped. It returns the entries added.
func (r *Repo) EnsureIgnored(paths ...string) ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryGit, "open worktree").Fatal().Build()
	}
	patterns, err := gitignore.ReadPatterns(wt.Filesystem, nil)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryGit, "read ignore rules").Fatal().Build()
	}
	matcher := gitignore.NewMatcher(patterns)

	var added []string
	for _, p := range paths {
		rel, ok := r.relative(p)
		if !ok {
			continue
		}
		if matcher.Match(strings.Split(rel, "/"), true) {
			continue
		}
		added = append(added, "/"+rel)
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := appendLines(filepath.Join(r.root, GitignoreFile), added); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "update .gitignore").
			Fatal().
			WithContext("path", filepath.Join(r.root, GitignoreFile)).
			Build()
	}
	return added, nil
}

// relative returns p relative to the worktree root in slash form.
func (r *Repo) relative(p string) (string, bool) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	roots := []string{r.root}
	if real, err := filepath.EvalSymlinks(r.root); err == nil && real != r.root {
		roots = append(roots, real)
	}
	// The path may not exist yet; resolve its closest existing parent.
	candidates := []string{abs}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		candidates = append(candidates, filepath.Join(dir, filepath.Base(abs)))
	}
	for _, root := range roots {
		for _, c := range candidates {
			rel, err := filepath.Rel(root, c)
			if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				continue
			}
			return filepath.ToSlash(rel), true
		}
	}
	return "", false
}

func appendLines(path string, lines []string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	var b strings.Builder
	b.Write(existing)
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteString("\n")
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	// #nosec G306 -- .gitignore is a tracked, world-readable file
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
