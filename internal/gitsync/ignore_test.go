package gitsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/testutil"
)

func TestEnsureIgnored(t *testing.T) {
	_, dir := testutil.InitRepo(t)
	repo, err := OpenRepo(dir)
	require.NoError(t, err)

	cache := filepath.Join(dir, ".sitebuilder-cache")
	output := filepath.Join(dir, "public")
	added, err := repo.EnsureIgnored(cache, output, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"/.sitebuilder-cache", "/public"}, added, "paths outside the worktree are skipped")

	data, err := os.ReadFile(filepath.Join(repo.Root(), GitignoreFile))
	require.NoError(t, err)
	assert.Equal(t, "/.sitebuilder-cache\n/public\n", string(data))

	added, err = repo.EnsureIgnored(cache, output)
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestEnsureIgnoredKeepsExistingRules(t *testing.T) {
	_, dir := testutil.InitRepo(t)
	testutil.WriteFile(t, filepath.Join(dir, GitignoreFile), "node_modules\npublic/")
	repo, err := OpenRepo(dir)
	require.NoError(t, err)

	added, err := repo.EnsureIgnored(filepath.Join(dir, ".sitebuilder-cache"), filepath.Join(dir, "public"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/.sitebuilder-cache"}, added)

	data, err := os.ReadFile(filepath.Join(dir, GitignoreFile))
	require.NoError(t, err)
	assert.Equal(t, "node_modules\npublic/\n/.sitebuilder-cache\n", string(data))
}
