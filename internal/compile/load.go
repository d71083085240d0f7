package compile

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/contentstore"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

//go:embed page.html.tmpl
var pageTemplateText string

var pageTemplate = template.Must(template.New("page").Parse(pageTemplateText))

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	ContentDir string
	OutputDir  string
	SiteTitle  string
	BaseURL    string
	// LiveReload injects the live reload client into every page.
	LiveReload bool
}

// Loader writes compiled bundles into the output directory.
type Loader struct {
	opts LoaderOptions

	mu sync.Mutex
	// generation of the newest bundle written to the output directory.
	generation uint64
	written    map[string]bool
}

var _ build.Loader = (*Loader)(nil)

// NewLoader creates a Loader.
func NewLoader(opts LoaderOptions) *Loader {
	return &Loader{opts: opts, written: map[string]bool{}}
}

// Site is a loaded bundle.
type Site struct {
	LoadID     string
	Generation uint64

	mu       sync.Mutex
	pages    []Page
	disposed atomic.Bool
}

// Pages returns the pages of the site, or nil once disposed.
func (s *Site) Pages() []Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages
}

// Dispose releases the page data held by the site.
func (s *Site) Dispose() error {
	s.mu.Lock()
	s.pages = nil
	s.mu.Unlock()
	s.disposed.Store(true)
	return nil
}

// Disposed reports whether Dispose has been called.
func (s *Site) Disposed() bool { return s.disposed.Load() }

// Load reads the bundle named by ref (query suffix ignored) and writes it
// to the output directory. A bundle older than one already written is
// returned without touching the output directory.
func (l *Loader) Load(ctx context.Context, ref string) (build.Handle, error) {
	site, err := l.LoadSite(ctx, ref)
	if err != nil {
		return nil, err
	}
	return site, nil
}

// LoadSite is Load returning the concrete *Site.
func (l *Loader) LoadSite(ctx context.Context, ref string) (*Site, error) {
	data, err := os.ReadFile(build.BundlePath(ref))
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Version != bundleVersion {
		return nil, fmt.Errorf("unsupported bundle version %d", b.Version)
	}
	site := &Site{LoadID: loadID(ref), Generation: b.Generation, pages: b.Pages}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b.Generation < l.generation {
		slog.Debug("Skipping output for older bundle", slog.Uint64("generation", b.Generation))
		return site, nil
	}

	written := make(map[string]bool, len(b.Pages)+len(b.Assets))
	for _, p := range b.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel := filepath.FromSlash(p.Slug) + ".html"
		if err := l.writePage(rel, p); err != nil {
			return nil, err
		}
		written[rel] = true
	}
	for _, a := range b.Assets {
		rel := filepath.FromSlash(a.Path)
		if err := l.copyAsset(rel, a); err != nil {
			return nil, err
		}
		written[rel] = true
	}
	l.prune(written)
	l.written = written
	l.generation = b.Generation

	slog.Debug("Loaded site",
		logfields.LoadID(site.LoadID),
		logfields.Path(l.opts.OutputDir),
		slog.Int("pages", len(b.Pages)),
		slog.Int("assets", len(b.Assets)))
	return site, nil
}

func (l *Loader) writePage(rel string, p Page) error {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Page
		Content    template.HTML
		SiteTitle  string
		BaseURL    string
		LiveReload bool
	}{
		Page:       p,
		Content:    template.HTML(p.HTML), // #nosec G203 -- rendered by goldmark without raw HTML passthrough
		SiteTitle:  l.opts.SiteTitle,
		BaseURL:    strings.TrimSuffix(l.opts.BaseURL, "/"),
		LiveReload: l.opts.LiveReload,
	})
	if err != nil {
		return fmt.Errorf("render %s: %w", p.Source, err)
	}
	dst := filepath.Join(l.opts.OutputDir, rel)
	if existing, err := os.ReadFile(dst); err == nil && bytes.Equal(existing, buf.Bytes()) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	return os.WriteFile(dst, buf.Bytes(), 0o644) // #nosec G306 -- published site content
}

func (l *Loader) copyAsset(rel string, a Asset) error {
	src := filepath.Join(l.opts.ContentDir, filepath.FromSlash(a.Source))
	dst := filepath.Join(l.opts.OutputDir, rel)
	sfi, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("asset %s: %w", a.Source, err)
	}
	if dfi, err := os.Stat(dst); err == nil && dfi.Size() == sfi.Size() && dfi.ModTime().Equal(sfi.ModTime()) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	if err := contentstore.CopyFile(src, dst, sfi); err != nil {
		return fmt.Errorf("asset %s: %w", a.Source, err)
	}
	return nil
}

// prune removes files written by the previous load that the current one
// no longer produces.
func (l *Loader) prune(current map[string]bool) {
	for rel := range l.written {
		if current[rel] {
			continue
		}
		p := filepath.Join(l.opts.OutputDir, rel)
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to remove stale output", logfields.Path(p), logfields.Error(err))
			continue
		}
		removeEmptyParents(filepath.Dir(p), l.opts.OutputDir)
	}
}

func removeEmptyParents(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func loadID(ref string) string {
	if _, q, ok := strings.Cut(ref, "?update="); ok {
		return q
	}
	return ""
}
