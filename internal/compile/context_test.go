package compile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

var baseTime = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func writeContent(t *testing.T, root, rel, body string, mtime time.Time) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

func newTestContext(t *testing.T) (*Context, string) {
	t.Helper()
	dir := t.TempDir()
	content := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(content, 0o750))
	c := NewContext(Options{
		ContentDir: content,
		BuildDir:   filepath.Join(dir, ".cache", "build"),
		Ignore:     []string{"private/*", "*.tmp"},
	})
	return c, content
}

func readBundle(t *testing.T, path string) bundle {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var b bundle
	require.NoError(t, json.Unmarshal(data, &b))
	return b
}

func TestCompileWritesBundleAndSourceMap(t *testing.T) {
	c, content := newTestContext(t)
	writeContent(t, content, "index.md", "---\ntitle: Home\ntags: [intro]\n---\nWelcome to **the site**.\n", baseTime)
	writeContent(t, content, "notes/a.md", "# A\n\nSee [home](../index.md).\n", baseTime)
	writeContent(t, content, "img/logo.png", "png", baseTime)
	writeContent(t, content, ".obsidian/app.json", "{}", baseTime)
	writeContent(t, content, "private/secret.md", "nope", baseTime)
	writeContent(t, content, "scratch.tmp", "x", baseTime)

	out, err := c.Compile(t.Context())
	require.NoError(t, err)
	assert.Equal(t, c.BundlePath(), out.Path)
	assert.Equal(t, 3, out.Inputs)

	fi, err := os.Stat(out.Path)
	require.NoError(t, err)
	assert.Equal(t, fi.Size(), out.Bytes)

	b := readBundle(t, out.Path)
	assert.Equal(t, uint64(1), b.Generation)
	require.Len(t, b.Pages, 2)
	require.Len(t, b.Assets, 1)
	assert.Equal(t, "img/logo.png", b.Assets[0].Path)

	home := b.Pages[0]
	assert.Equal(t, "index", home.Slug)
	assert.Equal(t, "Home", home.Title)
	assert.Equal(t, "Welcome to the site.", home.Description)
	assert.Equal(t, []string{"intro"}, home.Tags)
	assert.NotEmpty(t, home.Fingerprint)
	assert.True(t, home.Dates.Created.Equal(baseTime))
	assert.Contains(t, home.HTML, "<strong>the site</strong>")

	a := b.Pages[1]
	assert.Equal(t, "notes/a", a.Slug)
	assert.Equal(t, "a", a.Title)
	assert.Contains(t, a.HTML, `href="/index"`)

	data, err := os.ReadFile(out.Path + ".map")
	require.NoError(t, err)
	var sm sourceMap
	require.NoError(t, json.Unmarshal(data, &sm))
	assert.Equal(t, BundleFile, sm.File)
	assert.Equal(t, []string{"img/logo.png", "index.md", "notes/a.md"}, sm.Sources)
	assert.Equal(t, "notes/a.md", sm.Pages["notes/a"])
}

func TestCompileIsIncremental(t *testing.T) {
	c, content := newTestContext(t)
	writeContent(t, content, "a.md", "alpha", baseTime)
	writeContent(t, content, "b.md", "beta", baseTime)

	_, err := c.Compile(t.Context())
	require.NoError(t, err)
	pageA, pageB := c.entries["a.md"].page, c.entries["b.md"].page

	_, err = c.Compile(t.Context())
	require.NoError(t, err)
	assert.Same(t, pageA, c.entries["a.md"].page, "unchanged file must not be re-rendered")
	assert.Same(t, pageB, c.entries["b.md"].page)

	writeContent(t, content, "a.md", "alpha two", baseTime.Add(time.Minute))
	out, err := c.Compile(t.Context())
	require.NoError(t, err)
	assert.NotSame(t, pageA, c.entries["a.md"].page)
	assert.Same(t, pageB, c.entries["b.md"].page)
	assert.Contains(t, c.entries["a.md"].page.HTML, "alpha two")

	require.NoError(t, os.Remove(filepath.Join(content, "b.md")))
	out, err = c.Compile(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Inputs)
	b := readBundle(t, out.Path)
	require.Len(t, b.Pages, 1)
	assert.Equal(t, "a", b.Pages[0].Slug)
	assert.Equal(t, uint64(4), b.Generation)
}

func TestCompileReportsFailingFile(t *testing.T) {
	c, content := newTestContext(t)
	writeContent(t, content, "ok.md", "fine", baseTime)
	writeContent(t, content, "notes/broken.md", "---\ntitle: [oops\n---\nbody", baseTime)

	_, err := c.Compile(t.Context())
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "notes/broken.md", ce.File)
	assert.Equal(t, "notes/broken.md", ce.Input())
	assert.Contains(t, ce.Error(), "invalid frontmatter")
}

func TestCompileSkipsDrafts(t *testing.T) {
	c, content := newTestContext(t)
	writeContent(t, content, "draft.md", "---\ndraft: true\n---\nwip", baseTime)
	writeContent(t, content, "done.md", "done", baseTime)

	out, err := c.Compile(t.Context())
	require.NoError(t, err)
	b := readBundle(t, out.Path)
	require.Len(t, b.Pages, 1)
	assert.Equal(t, "done", b.Pages[0].Slug)
}

func TestCompileRejectsDuplicateSlugs(t *testing.T) {
	c, content := newTestContext(t)
	writeContent(t, content, "My Page.md", "one", baseTime)
	writeContent(t, content, "My-Page.md", "two", baseTime)

	_, err := c.Compile(t.Context())
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Reason, `slug "My-Page"`)
}

func TestCompileFollowsSymlinkedContentRoot(t *testing.T) {
	dir := t.TempDir()
	vault := filepath.Join(dir, "vault")
	writeContent(t, vault, "index.md", "hello", baseTime)
	link := filepath.Join(dir, "content")
	require.NoError(t, os.Symlink(vault, link))

	c := NewContext(Options{ContentDir: link, BuildDir: filepath.Join(dir, "build")})
	out, err := c.Compile(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Inputs)
}

func TestLinkResolutionModes(t *testing.T) {
	tests := []struct {
		mode config.LinkResolution
		link string
		want string
	}{
		{config.LinkShortest, "[x](b.md)", `href="/deep/dir/b"`},
		{config.LinkShortest, "[x](b.md#part)", `href="/deep/dir/b#part"`},
		{config.LinkAbsolute, "[x](/deep/dir/b.md)", `href="/deep/dir/b"`},
		{config.LinkAbsolute, "[x](../deep/dir/b.md)", `href="/deep/dir/b"`},
		{config.LinkRelative, "[x](../deep/dir/b.md)", `href="../deep/dir/b"`},
		{config.LinkAbsolute, "[x](missing.md)", `href="missing.md"`},
		{config.LinkAbsolute, "[x](https://example.com/a.md)", `href="https://example.com/a.md"`},
		{config.LinkAbsolute, "[x](photo.png)", `href="photo.png"`},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode)+" "+tt.link, func(t *testing.T) {
			dir := t.TempDir()
			content := filepath.Join(dir, "content")
			writeContent(t, content, "notes/a.md", tt.link, baseTime)
			writeContent(t, content, "deep/dir/b.md", "target", baseTime)

			c := NewContext(Options{ContentDir: content, BuildDir: filepath.Join(dir, "build"), LinkResolution: tt.mode})
			_, err := c.Compile(t.Context())
			require.NoError(t, err)
			assert.Contains(t, c.entries["notes/a.md"].page.HTML, tt.want)
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Hello world. Next", describe([]byte("<h1>Hello world.</h1><pre>code()</pre><p>Next</p>")))

	long := "<p>" + strings.Repeat("word ", 60) + "</p>"
	got := describe([]byte(long))
	assert.LessOrEqual(t, len([]rune(got)), descriptionLength+3)
	assert.Contains(t, got, "...")
}
