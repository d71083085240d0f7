package contentstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

const partialSuffix = ".partial"

// Store moves a content directory into and out of its cache mirror.
// It is not safe for concurrent use: only one stash/restore pair may be
// outstanding per content directory.
type Store struct {
	ContentDir string
	MirrorDir  string

	rename func(oldpath, newpath string) error
}

// New creates a Store for contentDir using mirrorDir as the cache slot.
func New(contentDir, mirrorDir string) *Store {
	return &Store{ContentDir: contentDir, MirrorDir: mirrorDir, rename: os.Rename}
}

// Stash moves the content directory into the mirror slot, discarding any
// previous mirror contents. Symlinks, modes and modification times survive.
func (s *Store) Stash() error {
	present, err := exists(s.ContentDir)
	if err != nil {
		return s.ioError("stat content directory", err)
	}
	if !present {
		occupied, _ := s.Occupied()
		if occupied {
			return ferrors.FileSystemError("content directory is absent and the cache mirror is occupied").
				WithContext("content_dir", s.ContentDir).
				WithContext("mirror_dir", s.MirrorDir).
				Build()
		}
		return ferrors.NotFoundError("content directory not found").
			WithContext("content_dir", s.ContentDir).Build()
	}

	slog.Debug("Stashing content", logfields.ContentDir(s.ContentDir), logfields.MirrorDir(s.MirrorDir))
	if err := os.RemoveAll(s.MirrorDir); err != nil {
		return s.ioError("clear cache mirror", err)
	}
	if err := s.relocate(s.ContentDir, s.MirrorDir); err != nil {
		return err
	}
	return nil
}

// Restore is the inverse of Stash: the mirror replaces the content directory
// and the slot is emptied. It refuses to touch the content directory when the
// mirror is empty.
func (s *Store) Restore() error {
	occupied, err := s.Occupied()
	if err != nil {
		return s.ioError("stat cache mirror", err)
	}
	if !occupied {
		return ferrors.FileSystemError("cache mirror is empty, nothing to restore").
			WithContext("mirror_dir", s.MirrorDir).Build()
	}

	slog.Debug("Restoring content", logfields.ContentDir(s.ContentDir), logfields.MirrorDir(s.MirrorDir))
	if err := os.RemoveAll(s.ContentDir); err != nil {
		return s.ioError("remove content directory", err)
	}
	return s.relocate(s.MirrorDir, s.ContentDir)
}

// Detach stashes the content directory for the duration of fn and restores
// it on every exit path of fn, including errors and panics. A restore failure
// is joined with fn's error.
func (s *Store) Detach(fn func() error) (err error) {
	if err := s.Stash(); err != nil {
		return err
	}
	defer func() {
		if rerr := s.Restore(); rerr != nil {
			slog.Error("Failed to restore content", logfields.ContentDir(s.ContentDir), logfields.Error(rerr))
			err = errors.Join(err, rerr)
		}
	}()
	return fn()
}

// Occupied reports whether the mirror slot currently holds content.
func (s *Store) Occupied() (bool, error) {
	return exists(s.MirrorDir)
}

// Present reports whether the content directory currently exists.
func (s *Store) Present() (bool, error) {
	return exists(s.ContentDir)
}

// relocate moves src to dst. dst must not exist. A rename is attempted first;
// across filesystems the tree is copied to dst+".partial", renamed into place
// and only then is src removed.
func (s *Store) relocate(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return s.ioError("create parent directory", err)
	}
	err := s.rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return s.ioError("move "+src, err)
	}

	slog.Debug("Cross-device relocation, copying", logfields.Path(src), slog.String("dest", dst))
	staging := dst + partialSuffix
	if err := os.RemoveAll(staging); err != nil {
		return s.ioError("clear staging directory", err)
	}
	if err := CopyTree(src, staging); err != nil {
		_ = os.RemoveAll(staging)
		return s.ioError("copy "+src, err)
	}
	if err := s.rename(staging, dst); err != nil {
		_ = os.RemoveAll(staging)
		return s.ioError("publish copy of "+src, err)
	}
	if err := os.RemoveAll(src); err != nil {
		return s.ioError("remove "+src, err)
	}
	return nil
}

func (s *Store) ioError(step string, err error) error {
	return ferrors.WrapError(err, ferrors.CategoryFileSystem, fmt.Sprintf("content relocation failed: %s", step)).
		Fatal().
		UserAction().
		WithContext("step", step).
		WithContext("content_dir", s.ContentDir).
		WithContext("mirror_dir", s.MirrorDir).
		Build()
}

// exists reports whether path exists without following a final symlink.
func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
