package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/contentstore"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// State is the position of a Session in the sync state machine.
type State int

const (
	StateIdle State = iota
	StateCommitting
	StatePulling
	StatePushing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCommitting:
		return "commit"
	case StatePulling:
		return "pull"
	case StatePushing:
		return "push"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options selects the phases of one sync and their parameters.
type Options struct {
	Commit bool
	Pull   bool
	Push   bool

	// Message overrides the generated commit message.
	Message string
	// CommitPrefix and Locale shape the generated commit message.
	CommitPrefix string
	Locale       string

	Remote string
	// Branch to pull from. Empty means the current branch.
	Branch string

	// Ignored lists paths, besides the cache mirror, that must be excluded
	// by git before anything is staged.
	Ignored []string
}

// Session records one sync run.
type Session struct {
	Options    Options
	WasSymlink bool
	State      State
	// FailedPhase is the working state that failed, valid when State is StateFailed.
	FailedPhase State
	// CommitSkipped is set when git commit exited non-zero (usually nothing to commit).
	CommitSkipped bool
	PushedBranch  string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder sets the metrics recorder for phase outcomes.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithClock overrides the clock used for generated commit messages.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator runs commit, pull and push against the repository that
// contains the store's content directory.
type Coordinator struct {
	store    *contentstore.Store
	runner   Runner
	recorder metrics.Recorder
	now      func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store *contentstore.Store, runner Runner, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		runner:   runner,
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync runs the requested phases in commit, pull, push order. The first
// failure ends the session in StateFailed; the content directory has been
// restored by then. The returned Session is never nil.
func (c *Coordinator) Sync(ctx context.Context, opts Options) (*Session, error) {
	sess := &Session{Options: opts, State: StateIdle}

	fi, err := os.Lstat(c.store.ContentDir)
	if err != nil {
		sess.State = StateFailed
		return sess, ferrors.NotFoundError("content directory not found").
			WithCause(err).
			WithContext("content_dir", c.store.ContentDir).
			Build()
	}
	sess.WasSymlink = fi.Mode()&os.ModeSymlink != 0

	phases := []struct {
		state   State
		enabled bool
		run     func(context.Context, *Session) error
	}{
		{StateCommitting, opts.Commit, c.commit},
		{StatePulling, opts.Pull, c.pull},
		{StatePushing, opts.Push, c.push},
	}
	for _, p := range phases {
		if !p.enabled {
			c.recorder.IncSyncPhase(p.state.String(), metrics.ResultSkipped)
			continue
		}
		sess.State = p.state
		if err := p.run(ctx, sess); err != nil {
			c.recorder.IncSyncPhase(p.state.String(), metrics.ResultFailed)
			sess.FailedPhase = p.state
			sess.State = StateFailed
			return sess, err
		}
		c.recorder.IncSyncPhase(p.state.String(), metrics.ResultSuccess)
	}

	sess.State = StateDone
	return sess, nil
}

func (c *Coordinator) commit(ctx context.Context, sess *Session) error {
	msg := sess.Options.Message
	if msg == "" {
		msg = CommitMessage(sess.Options.CommitPrefix, c.now(), sess.Options.Locale)
	}

	if !sess.WasSymlink {
		slog.Info("Committing changes", logfields.Phase("commit"))
		return c.stageAndCommit(ctx, sess, msg)
	}

	// Resolve before stashing: a relative link no longer resolves once moved.
	target, err := filepath.EvalSymlinks(c.store.ContentDir)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve content symlink").
			Fatal().
			WithContext("content_dir", c.store.ContentDir).
			Build()
	}
	slog.Info("Committing changes", logfields.Phase("commit"), slog.String("symlink_target", target))
	return c.store.Detach(func() error {
		if err := contentstore.CopyTree(target, c.store.ContentDir); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "dereference content symlink").
				Fatal().
				WithContext("target", target).
				Build()
		}
		return c.stageAndCommit(ctx, sess, msg)
	})
}

func (c *Coordinator) stageAndCommit(ctx context.Context, sess *Session, msg string) error {
	if err := c.checkIgnored(ctx, sess.Options.Ignored); err != nil {
		return err
	}
	if err := c.run(ctx, "commit", "add", "."); err != nil {
		return err
	}
	res, err := c.runner.Git(ctx, "commit", "-m", msg)
	if err != nil {
		return gitFailure("commit", []string{"commit"}, res, err)
	}
	if res.ExitCode != 0 {
		sess.CommitSkipped = true
		slog.Warn("git commit made no commit",
			logfields.Phase("commit"),
			slog.Int("exit_code", res.ExitCode),
			slog.String("output", strings.TrimSpace(res.Stdout+res.Stderr)))
	}
	return nil
}

// checkIgnored refuses to stage while the cache mirror or any of paths
// exists and is not ignored by git: `git add .` would commit it.
func (c *Coordinator) checkIgnored(ctx context.Context, paths []string) error {
	for _, p := range append([]string{c.store.MirrorDir}, paths...) {
		if p == "" {
			continue
		}
		if _, err := os.Lstat(p); err != nil {
			continue
		}
		args := []string{"check-ignore", "-q", p}
		res, err := c.runner.Git(ctx, args...)
		switch {
		case err != nil:
			return gitFailure("commit", args, res, err)
		case res.ExitCode == 0:
		case res.ExitCode == 1:
			return ferrors.GitError(fmt.Sprintf("refusing to commit: %s is not ignored by git", p)).
				WithContext("phase", "commit").
				WithContext("path", p).
				WithContext("hint", "add it to .gitignore").
				UserAction().
				Build()
		default:
			return gitFailure("commit", args, res, nil)
		}
	}
	return nil
}

func (c *Coordinator) pull(ctx context.Context, sess *Session) error {
	branch := sess.Options.Branch
	if branch == "" {
		b, err := c.currentBranch(ctx, "pull")
		if err != nil {
			return err
		}
		branch = b
	}
	slog.Info("Backing up content", logfields.Phase("pull"), logfields.MirrorDir(c.store.MirrorDir))
	return c.store.Detach(func() error {
		slog.Info("Pulling updates",
			logfields.Phase("pull"),
			logfields.Remote(sess.Options.Remote),
			logfields.Branch(branch))
		return c.run(ctx, "pull", PullArgs(sess.Options.Remote, branch)...)
	})
}

func (c *Coordinator) push(ctx context.Context, sess *Session) error {
	branch, err := c.currentBranch(ctx, "push")
	if err != nil {
		return err
	}
	slog.Info("Pushing changes",
		logfields.Phase("push"),
		logfields.Remote(sess.Options.Remote),
		logfields.Branch(branch))
	if err := c.run(ctx, "push", PushArgs(sess.Options.Remote, branch)...); err != nil {
		return err
	}
	sess.PushedBranch = branch
	return nil
}

// Update pulls ref from the upstream remote with the content directory
// detached. The content directory is restored whether or not the pull
// succeeds.
func (c *Coordinator) Update(ctx context.Context, upstream, ref string) error {
	if _, err := os.Lstat(c.store.ContentDir); err != nil {
		return ferrors.NotFoundError("content directory not found").
			WithCause(err).
			WithContext("content_dir", c.store.ContentDir).
			Build()
	}
	slog.Info("Backing up content", logfields.Phase("update"), logfields.MirrorDir(c.store.MirrorDir))
	err := c.store.Detach(func() error {
		slog.Info("Pulling upstream",
			logfields.Phase("update"),
			logfields.Remote(upstream),
			logfields.Branch(ref))
		return c.run(ctx, "update", PullArgs(upstream, ref)...)
	})
	if err != nil {
		c.recorder.IncSyncPhase("update", metrics.ResultFailed)
		return err
	}
	c.recorder.IncSyncPhase("update", metrics.ResultSuccess)
	return nil
}

func (c *Coordinator) currentBranch(ctx context.Context, phase string) (string, error) {
	args := []string{"rev-parse", "--abbrev-ref", "HEAD"}
	res, err := c.runner.Git(ctx, args...)
	if err != nil || res.ExitCode != 0 {
		return "", gitFailure(phase, args, res, err)
	}
	branch := strings.TrimSpace(res.Stdout)
	if branch == "" || branch == "HEAD" {
		return "", ferrors.GitError("cannot determine current branch (detached HEAD?)").
			WithContext("phase", phase).
			Build()
	}
	return branch, nil
}

// run executes one git command whose non-zero exit is fatal.
func (c *Coordinator) run(ctx context.Context, phase string, args ...string) error {
	res, err := c.runner.Git(ctx, args...)
	if err != nil || res.ExitCode != 0 {
		return gitFailure(phase, args, res, err)
	}
	return nil
}

// PullArgs is the non-interactive merge pull used by sync and update:
// merge rather than rebase, autostash tracked changes, prefer our side on
// conflicts, never open an editor.
func PullArgs(remote, branch string) []string {
	return []string{
		"pull",
		"--no-rebase",
		"--autostash",
		"-s", "recursive",
		"-X", "ours",
		"--no-edit",
		remote, branch,
	}
}

// PushArgs force-pushes branch to remote with upstream tracking.
func PushArgs(remote, branch string) []string {
	return []string{"push", "-u", "-f", remote, branch}
}

func gitFailure(phase string, args []string, res Result, err error) error {
	sub := "git"
	if len(args) > 0 {
		sub = "git " + args[0]
	}
	msg := fmt.Sprintf("%s exited with status %d", sub, res.ExitCode)
	cause := err
	if cause == nil {
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			cause = errors.New(lastLine(stderr))
		}
	} else {
		msg = sub + " could not be run"
	}
	return ferrors.GitError(msg).
		WithCause(cause).
		WithContext("phase", phase).
		WithContext("args", strings.Join(args, " ")).
		WithContext("exit_code", res.ExitCode).
		Build()
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
