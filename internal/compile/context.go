package compile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// BundleFile is the name of the compiled bundle inside the build directory.
const BundleFile = "bundle.json"

const bundleVersion = 1

// bundle is the on-disk compiled site.
type bundle struct {
	Version    int     `json:"version"`
	Generation uint64  `json:"generation"`
	Pages      []Page  `json:"pages"`
	Assets     []Asset `json:"assets"`
}

// sourceMap maps bundle entries back to the content files they came from.
type sourceMap struct {
	Version int               `json:"version"`
	File    string            `json:"file"`
	Sources []string          `json:"sources"`
	Pages   map[string]string `json:"pages"`
}

type entry struct {
	size    int64
	modTime time.Time
	page    *Page // nil for assets and drafts
	asset   bool
}

// Options configures a Context.
type Options struct {
	ContentDir     string
	BuildDir       string
	Ignore         []string
	LinkResolution config.LinkResolution
}

// Context is a persistent incremental compiler. It is not safe for
// concurrent use; build.Scheduler serializes calls to Compile.
type Context struct {
	opts       Options
	md         goldmark.Markdown
	entries    map[string]*entry
	generation uint64
}

var _ build.Compiler = (*Context)(nil)

// NewContext creates a compiler for opts.ContentDir.
func NewContext(opts Options) *Context {
	if opts.LinkResolution == "" {
		opts.LinkResolution = config.LinkShortest
	}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(&linkRewriter{mode: opts.LinkResolution}, 500)),
		),
	)
	return &Context{opts: opts, md: md, entries: map[string]*entry{}}
}

// BundlePath is where Compile writes the bundle.
func (c *Context) BundlePath() string {
	return filepath.Join(c.opts.BuildDir, BundleFile)
}

// Compile brings the bundle up to date with the content directory.
func (c *Context) Compile(ctx context.Context) (build.Bundle, error) {
	root, err := filepath.EvalSymlinks(c.opts.ContentDir)
	if err != nil {
		return build.Bundle{}, inputError(c.opts.ContentDir, err)
	}

	files, err := c.scan(root)
	if err != nil {
		return build.Bundle{}, err
	}

	// Link resolution depends on the full set of pages, so adding or
	// removing a markdown file re-renders every page.
	var sources []string
	full := false
	for rel := range files {
		if isMarkdown(rel) {
			sources = append(sources, rel)
			if _, ok := c.entries[rel]; !ok {
				full = true
			}
		}
	}
	for rel, e := range c.entries {
		if _, ok := files[rel]; !ok {
			delete(c.entries, rel)
			if !e.asset {
				full = true
			}
		}
	}
	idx := newSlugIndex(sources)

	rendered := 0
	for rel, fi := range files {
		if err := ctx.Err(); err != nil {
			return build.Bundle{}, err
		}
		prev, ok := c.entries[rel]
		unchanged := ok && prev.size == fi.Size() && prev.modTime.Equal(fi.ModTime())
		if !isMarkdown(rel) {
			c.entries[rel] = &entry{size: fi.Size(), modTime: fi.ModTime(), asset: true}
			continue
		}
		if unchanged && !full {
			continue
		}
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return build.Bundle{}, inputError(rel, err)
		}
		page, err := renderPage(c.md, idx, rel, content, fi.ModTime())
		if err != nil {
			return build.Bundle{}, err
		}
		c.entries[rel] = &entry{size: fi.Size(), modTime: fi.ModTime(), page: page}
		rendered++
	}

	b, sm, err := c.assemble()
	if err != nil {
		return build.Bundle{}, err
	}
	size, err := c.write(b, sm)
	if err != nil {
		return build.Bundle{}, err
	}
	slog.Debug("Compiled content",
		logfields.Inputs(len(files)),
		slog.Int("rendered", rendered),
		slog.Bool("full", full))
	return build.Bundle{Path: c.BundlePath(), Inputs: len(files), Bytes: size}, nil
}

// scan lists the compilable files under root keyed by slash-separated
// relative path.
func (c *Context) scan(root string) (map[string]fs.FileInfo, error) {
	files := map[string]fs.FileInfo{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(d.Name(), ".") || c.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		fi, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("Skipping dangling link", logfields.Path(rel))
				return nil
			}
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		files[rel] = fi
		return nil
	})
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, inputError(c.opts.ContentDir, err)
	}
	return files, nil
}

func (c *Context) ignored(rel string) bool {
	for _, pattern := range c.opts.Ignore {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

func (c *Context) assemble() (*bundle, *sourceMap, error) {
	c.generation++
	b := &bundle{Version: bundleVersion, Generation: c.generation, Pages: []Page{}, Assets: []Asset{}}
	sm := &sourceMap{Version: bundleVersion, File: BundleFile, Pages: map[string]string{}}

	rels := make([]string, 0, len(c.entries))
	for rel := range c.entries {
		rels = append(rels, rel)
	}
	slices.Sort(rels)

	for _, rel := range rels {
		e := c.entries[rel]
		switch {
		case e.asset:
			b.Assets = append(b.Assets, Asset{Path: rel, Source: rel, Size: e.size})
		case e.page != nil:
			if other, dup := sm.Pages[e.page.Slug]; dup {
				return nil, nil, &Error{File: rel, Reason: fmt.Sprintf("slug %q already used by %s", e.page.Slug, other)}
			}
			sm.Pages[e.page.Slug] = rel
			b.Pages = append(b.Pages, *e.page)
		default:
			continue
		}
		sm.Sources = append(sm.Sources, rel)
	}
	return b, sm, nil
}

// write stores the bundle and its source map, each replaced atomically.
func (c *Context) write(b *bundle, sm *sourceMap) (int64, error) {
	if err := os.MkdirAll(c.opts.BuildDir, 0o750); err != nil {
		return 0, inputError(c.opts.BuildDir, err)
	}
	data, err := json.Marshal(b)
	if err != nil {
		return 0, inputError(BundleFile, err)
	}
	mapData, err := json.Marshal(sm)
	if err != nil {
		return 0, inputError(BundleFile+".map", err)
	}
	if err := writeFileAtomic(build.SourceMapPath(c.BundlePath()), mapData); err != nil {
		return 0, inputError(BundleFile+".map", err)
	}
	if err := writeFileAtomic(c.BundlePath(), data); err != nil {
		return 0, inputError(BundleFile, err)
	}
	return int64(len(data)), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
