package gitsync

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/contentstore"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/testutil"
)

type gitCall struct {
	args       []string
	present    bool // content directory existed
	symlink    bool // content directory was a symlink
	mirrorFull bool
	snapshot   map[string]string // content files at the time of the call
}

// scriptedRunner records every git invocation together with the state of
// the content directory, and answers with per-subcommand results.
type scriptedRunner struct {
	store   *contentstore.Store
	results map[string]Result
	calls   []gitCall
}

func (r *scriptedRunner) Git(_ context.Context, args ...string) (Result, error) {
	c := gitCall{args: args}
	if fi, err := os.Lstat(r.store.ContentDir); err == nil {
		c.present = true
		c.symlink = fi.Mode()&os.ModeSymlink != 0
		if !c.symlink {
			c.snapshot = testutil.ReadTree(r.store.ContentDir)
		}
	}
	if _, err := os.Lstat(r.store.MirrorDir); err == nil {
		c.mirrorFull = true
	}
	r.calls = append(r.calls, c)

	if res, ok := r.results[args[0]]; ok {
		return res, nil
	}
	if args[0] == "rev-parse" {
		return Result{Stdout: "main\n"}, nil
	}
	return Result{}, nil
}

func (r *scriptedRunner) subcommands() []string {
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.args[0])
	}
	return out
}

func (r *scriptedRunner) call(sub string) (gitCall, bool) {
	for _, c := range r.calls {
		if c.args[0] == sub {
			return c, true
		}
	}
	return gitCall{}, false
}

func newFixture(t *testing.T) (*contentstore.Store, *scriptedRunner) {
	t.Helper()
	root := t.TempDir()
	store := contentstore.New(filepath.Join(root, "content"), filepath.Join(root, ".cache", "content-cache"))
	testutil.WriteFile(t, filepath.Join(store.ContentDir, "index.md"), "# Home\n")
	testutil.WriteFile(t, filepath.Join(store.ContentDir, "notes", "a.md"), "alpha\n")
	return store, &scriptedRunner{store: store, results: map[string]Result{}}
}

func allPhases() Options {
	return Options{Commit: true, Pull: true, Push: true, Remote: "origin", Branch: "main", Message: "msg"}
}

type phaseRecorder struct {
	metrics.NoopRecorder
	mu      sync.Mutex
	results map[string]metrics.ResultLabel
}

func (p *phaseRecorder) IncSyncPhase(phase string, result metrics.ResultLabel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.results == nil {
		p.results = map[string]metrics.ResultLabel{}
	}
	p.results[phase] = result
}

func TestSyncRunsPhasesInOrder(t *testing.T) {
	store, runner := newFixture(t)
	rec := &phaseRecorder{}
	c := NewCoordinator(store, runner, WithRecorder(rec))

	sess, err := c.Sync(t.Context(), allPhases())
	require.NoError(t, err)

	assert.Equal(t, StateDone, sess.State)
	assert.False(t, sess.WasSymlink)
	assert.Equal(t, "main", sess.PushedBranch)
	assert.Equal(t, []string{"add", "commit", "pull", "rev-parse", "push"}, runner.subcommands())

	add, _ := runner.call("add")
	assert.Equal(t, []string{"add", "."}, add.args)
	assert.True(t, add.present)

	commit, _ := runner.call("commit")
	assert.Equal(t, []string{"commit", "-m", "msg"}, commit.args)

	pull, _ := runner.call("pull")
	assert.Equal(t, PullArgs("origin", "main"), pull.args)
	assert.False(t, pull.present, "content must be absent while pulling")
	assert.True(t, pull.mirrorFull)

	push, _ := runner.call("push")
	assert.Equal(t, []string{"push", "-u", "-f", "origin", "main"}, push.args)
	assert.True(t, push.present, "push is never wrapped by the store")

	assert.Equal(t, map[string]string{"index.md": "# Home\n", "notes/a.md": "alpha\n"}, testutil.ReadTree(store.ContentDir))
	occupied, err := store.Occupied()
	require.NoError(t, err)
	assert.False(t, occupied)

	assert.Equal(t, map[string]metrics.ResultLabel{
		"commit": metrics.ResultSuccess,
		"pull":   metrics.ResultSuccess,
		"push":   metrics.ResultSuccess,
	}, rec.results)
}

func TestSyncPhaseToggles(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"commit only", Options{Commit: true, Message: "m"}, []string{"add", "commit"}},
		{"pull only", Options{Pull: true, Remote: "origin", Branch: "main"}, []string{"pull"}},
		{"pull current branch", Options{Pull: true, Remote: "origin"}, []string{"rev-parse", "pull"}},
		{"push only", Options{Push: true, Remote: "origin"}, []string{"rev-parse", "push"}},
		{"commit and push", Options{Commit: true, Push: true, Remote: "origin", Message: "m"}, []string{"add", "commit", "rev-parse", "push"}},
		{"nothing", Options{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, runner := newFixture(t)
			sess, err := NewCoordinator(store, runner).Sync(t.Context(), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, StateDone, sess.State)
			assert.Equal(t, tt.want, runner.subcommands())
		})
	}
}

func TestSyncFatalPullRestoresContent(t *testing.T) {
	store, runner := newFixture(t)
	before := testutil.ReadTree(store.ContentDir)
	runner.results["pull"] = Result{ExitCode: 1, Stderr: "CONFLICT\nfatal: merge failed"}
	rec := &phaseRecorder{}

	sess, err := NewCoordinator(store, runner, WithRecorder(rec)).Sync(t.Context(), allPhases())
	require.Error(t, err)

	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGit))
	assert.Contains(t, err.Error(), "merge failed")
	assert.Equal(t, 1, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	assert.Equal(t, StateFailed, sess.State)
	assert.Equal(t, StatePulling, sess.FailedPhase)
	assert.Equal(t, []string{"add", "commit", "pull"}, runner.subcommands(), "push must not run after a failed pull")

	assert.Equal(t, before, testutil.ReadTree(store.ContentDir))
	occupied, oerr := store.Occupied()
	require.NoError(t, oerr)
	assert.False(t, occupied)
	assert.Equal(t, metrics.ResultFailed, rec.results["pull"])
}

func TestSyncFatalPushStopsSession(t *testing.T) {
	store, runner := newFixture(t)
	runner.results["push"] = Result{ExitCode: 2, Stderr: "error: failed to push some refs"}

	sess, err := NewCoordinator(store, runner).Sync(t.Context(), allPhases())
	require.Error(t, err)

	assert.Equal(t, 1, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, 2, ce.Context()["exit_code"])
	assert.Equal(t, StateFailed, sess.State)
	assert.Equal(t, StatePushing, sess.FailedPhase)
	assert.Empty(t, sess.PushedBranch)
	subs := runner.subcommands()
	assert.Equal(t, "push", subs[len(subs)-1], "nothing runs after a failed push")
	assert.DirExists(t, store.ContentDir)
}

func TestSyncCommitWithoutChangesIsWarning(t *testing.T) {
	store, runner := newFixture(t)
	runner.results["commit"] = Result{ExitCode: 1, Stdout: "nothing to commit, working tree clean"}

	sess, err := NewCoordinator(store, runner).Sync(t.Context(), allPhases())
	require.NoError(t, err)
	assert.True(t, sess.CommitSkipped)
	assert.Equal(t, StateDone, sess.State)
}

func TestSyncAddFailureIsFatal(t *testing.T) {
	store, runner := newFixture(t)
	runner.results["add"] = Result{ExitCode: 128, Stderr: "fatal: not a git repository"}

	sess, err := NewCoordinator(store, runner).Sync(t.Context(), allPhases())
	require.Error(t, err)
	assert.Equal(t, StateCommitting, sess.FailedPhase)
	assert.Equal(t, []string{"add"}, runner.subcommands())
}

func TestSyncDetachedHeadFailsPush(t *testing.T) {
	store, runner := newFixture(t)
	runner.results["rev-parse"] = Result{Stdout: "HEAD\n"}

	sess, err := NewCoordinator(store, runner).Sync(t.Context(), Options{Push: true, Remote: "origin"})
	require.Error(t, err)
	assert.Equal(t, StatePushing, sess.FailedPhase)
	assert.Equal(t, []string{"rev-parse"}, runner.subcommands())
}

func TestSyncMissingContentDirectory(t *testing.T) {
	root := t.TempDir()
	store := contentstore.New(filepath.Join(root, "content"), filepath.Join(root, "cache"))
	runner := &scriptedRunner{store: store}

	sess, err := NewCoordinator(store, runner).Sync(t.Context(), allPhases())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
	assert.Equal(t, StateFailed, sess.State)
	assert.Empty(t, runner.calls)
}

func TestSyncCommitDereferencesSymlink(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "vault")
	testutil.WriteFile(t, filepath.Join(target, "index.md"), "from vault\n")
	testutil.WriteFile(t, filepath.Join(target, "deep", "b.md"), "bee\n")

	site := filepath.Join(root, "site")
	require.NoError(t, os.MkdirAll(site, 0o750))
	contentDir := filepath.Join(site, "content")
	require.NoError(t, os.Symlink(target, contentDir))
	store := contentstore.New(contentDir, filepath.Join(site, ".cache", "content-cache"))
	runner := &scriptedRunner{store: store, results: map[string]Result{}}

	sess, err := NewCoordinator(store, runner).Sync(t.Context(), Options{Commit: true, Message: "m"})
	require.NoError(t, err)
	assert.True(t, sess.WasSymlink)

	for _, sub := range []string{"add", "commit"} {
		c, ok := runner.call(sub)
		require.True(t, ok)
		assert.True(t, c.present)
		assert.False(t, c.symlink, "%s must see a real tree", sub)
		assert.Equal(t, map[string]string{"index.md": "from vault\n", "deep/b.md": "bee\n"}, c.snapshot)
	}

	fi, err := os.Lstat(contentDir)
	require.NoError(t, err)
	require.NotZero(t, fi.Mode()&os.ModeSymlink, "content directory must be a symlink again")
	link, err := os.Readlink(contentDir)
	require.NoError(t, err)
	assert.Equal(t, target, link)
	assert.Equal(t, map[string]string{"index.md": "from vault\n", "deep/b.md": "bee\n"}, testutil.ReadTree(target))

	check, ok := runner.call("check-ignore")
	require.True(t, ok, "the stashed symlink must be checked before staging")
	assert.Equal(t, []string{"check-ignore", "-q", store.MirrorDir}, check.args)
	assert.True(t, check.mirrorFull)
}

func TestSyncRefusesToStageUnignoredMirror(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "vault")
	testutil.WriteFile(t, filepath.Join(target, "index.md"), "from vault\n")
	contentDir := filepath.Join(root, "site", "content")
	require.NoError(t, os.MkdirAll(filepath.Dir(contentDir), 0o750))
	require.NoError(t, os.Symlink(target, contentDir))
	store := contentstore.New(contentDir, filepath.Join(root, "site", ".cache", "content-cache"))
	runner := &scriptedRunner{store: store, results: map[string]Result{"check-ignore": {ExitCode: 1}}}

	sess, err := NewCoordinator(store, runner).Sync(t.Context(), allPhases())
	require.Error(t, err)

	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGit))
	assert.Contains(t, err.Error(), "not ignored")
	assert.Equal(t, StateFailed, sess.State)
	assert.Equal(t, StateCommitting, sess.FailedPhase)
	assert.Equal(t, []string{"check-ignore"}, runner.subcommands(), "nothing may be staged")

	link, err := os.Readlink(contentDir)
	require.NoError(t, err)
	assert.Equal(t, target, link)
	occupied, err := store.Occupied()
	require.NoError(t, err)
	assert.False(t, occupied)
}

func TestSyncChecksExistingIgnoredPaths(t *testing.T) {
	store, runner := newFixture(t)
	root := filepath.Dir(store.ContentDir)
	output := filepath.Join(root, "public")
	testutil.WriteFile(t, filepath.Join(output, "index.html"), "<p>home</p>")

	opts := allPhases()
	opts.Ignored = []string{output, filepath.Join(root, "never-built")}
	_, err := NewCoordinator(store, runner).Sync(t.Context(), opts)
	require.NoError(t, err)

	check, ok := runner.call("check-ignore")
	require.True(t, ok)
	assert.Equal(t, []string{"check-ignore", "-q", output}, check.args)
	assert.Equal(t, []string{"check-ignore", "add", "commit", "pull", "rev-parse", "push"}, runner.subcommands(),
		"missing paths are not checked")

	store, runner = newFixture(t)
	output = filepath.Join(filepath.Dir(store.ContentDir), "public")
	testutil.WriteFile(t, filepath.Join(output, "index.html"), "<p>home</p>")
	runner.results["check-ignore"] = Result{ExitCode: 1}
	opts.Ignored = []string{output}
	_, err = NewCoordinator(store, runner).Sync(t.Context(), opts)
	require.Error(t, err)
	assert.Equal(t, []string{"check-ignore"}, runner.subcommands())
}

func TestSyncGeneratedCommitMessage(t *testing.T) {
	store, runner := newFixture(t)
	now := time.Date(2026, time.March, 4, 15, 7, 0, 0, time.UTC)
	c := NewCoordinator(store, runner, WithClock(func() time.Time { return now }))

	_, err := c.Sync(t.Context(), Options{Commit: true, CommitPrefix: "Notes sync", Locale: "en-US"})
	require.NoError(t, err)

	commit, ok := runner.call("commit")
	require.True(t, ok)
	assert.Equal(t, "Notes sync: Mar 4, 2026, 3:07 PM", commit.args[2])
}

func TestUpdatePullsUpstreamDetached(t *testing.T) {
	store, runner := newFixture(t)
	rec := &phaseRecorder{}

	require.NoError(t, NewCoordinator(store, runner, WithRecorder(rec)).Update(t.Context(), "upstream", "v4"))

	pull, ok := runner.call("pull")
	require.True(t, ok)
	assert.Equal(t, PullArgs("upstream", "v4"), pull.args)
	assert.False(t, pull.present)
	assert.True(t, pull.mirrorFull)
	assert.Equal(t, map[string]string{"index.md": "# Home\n", "notes/a.md": "alpha\n"}, testutil.ReadTree(store.ContentDir))
	assert.Equal(t, metrics.ResultSuccess, rec.results["update"])
}

func TestUpdateFailureStillRestores(t *testing.T) {
	store, runner := newFixture(t)
	before := testutil.ReadTree(store.ContentDir)
	runner.results["pull"] = Result{ExitCode: 128, Stderr: "fatal: couldn't find remote ref v9"}

	err := NewCoordinator(store, runner).Update(t.Context(), "upstream", "v9")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGit))
	assert.Equal(t, before, testutil.ReadTree(store.ContentDir))
	occupied, oerr := store.Occupied()
	require.NoError(t, oerr)
	assert.False(t, occupied)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pull", StatePulling.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.True(t, strings.HasPrefix(State(42).String(), "state("))
}
