package compile

import (
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

var (
	pageSlugKey  = parser.NewContextKey()
	slugIndexKey = parser.NewContextKey()
)

// slugIndex resolves internal markdown links to page slugs.
type slugIndex struct {
	slugs map[string]bool
	// byName maps a bare page name to its slug, or "" when ambiguous.
	byName map[string]string
}

func newSlugIndex(sources []string) *slugIndex {
	idx := &slugIndex{slugs: map[string]bool{}, byName: map[string]string{}}
	for _, src := range sources {
		slug := Slugify(src)
		idx.slugs[slug] = true
		name := path.Base(slug)
		if _, seen := idx.byName[name]; seen {
			idx.byName[name] = ""
			continue
		}
		idx.byName[name] = slug
	}
	return idx
}

// linkRewriter rewrites destinations of links to other markdown files so
// they point at the rendered pages, using the configured resolution.
type linkRewriter struct {
	mode config.LinkResolution
}

func (r *linkRewriter) Transform(doc *ast.Document, _ text.Reader, pc parser.Context) {
	from, _ := pc.Get(pageSlugKey).(string)
	idx, _ := pc.Get(slugIndexKey).(*slugIndex)
	if idx == nil {
		return
	}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := n.(*ast.Link); ok {
			if dest, ok := r.resolve(idx, from, string(link.Destination)); ok {
				link.Destination = []byte(dest)
			}
		}
		return ast.WalkContinue, nil
	})
}

func (r *linkRewriter) resolve(idx *slugIndex, from, dest string) (string, bool) {
	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	target := u.Path
	if path.Ext(target) != "" && !isMarkdown(target) {
		return "", false
	}

	var slug string
	switch {
	case strings.HasPrefix(target, "/"):
		slug = Slugify(target)
	case r.mode == config.LinkShortest && !strings.Contains(target, "/"):
		if s := idx.byName[Slugify(target)]; s != "" {
			slug = s
		} else {
			slug = Slugify(path.Join(path.Dir(from), target))
		}
	default:
		slug = Slugify(path.Join(path.Dir(from), target))
	}
	if !idx.slugs[slug] {
		return "", false
	}

	out := "/" + slug
	if r.mode == config.LinkRelative {
		out = relativeSlug(from, slug)
	}
	if u.Fragment != "" {
		out += "#" + u.Fragment
	}
	return out, true
}

// relativeSlug returns the link from page from to page to.
func relativeSlug(from, to string) string {
	fromDir := strings.Split(path.Dir(from), "/")
	if fromDir[0] == "." {
		fromDir = nil
	}
	toParts := strings.Split(to, "/")
	common := 0
	for common < len(fromDir) && common < len(toParts)-1 && fromDir[common] == toParts[common] {
		common++
	}
	parts := make([]string, 0, len(fromDir)-common+len(toParts)-common)
	for range fromDir[common:] {
		parts = append(parts, "..")
	}
	parts = append(parts, toParts[common:]...)
	rel := strings.Join(parts, "/")
	if !strings.HasPrefix(rel, "..") {
		rel = "./" + rel
	}
	return rel
}
