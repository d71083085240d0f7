package compile

import (
	"bytes"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/inful/mdfp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

const descriptionLength = 150

// Dates are the page dates shown on a rendered page.
type Dates struct {
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	Published time.Time `json:"published"`
}

// Page is one rendered markdown file.
type Page struct {
	Slug        string   `json:"slug"`
	Source      string   `json:"source"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Fingerprint string   `json:"fingerprint"`
	Dates       Dates    `json:"dates"`
	HTML        string   `json:"html"`
}

// Asset is a non-markdown file copied verbatim to the output directory.
type Asset struct {
	Path   string `json:"path"`
	Source string `json:"source"`
	Size   int64  `json:"size"`
}

// renderPage renders one markdown document. rel is the content-relative
// source path and modTime its file modification time.
func renderPage(md goldmark.Markdown, idx *slugIndex, rel string, content []byte, modTime time.Time) (*Page, error) {
	raw, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, inputError(rel, err)
	}
	fields, err := parseFields(raw)
	if err != nil {
		return nil, inputError(rel, err)
	}
	if draft, _ := fields["draft"].(bool); draft {
		return nil, nil
	}

	slug := Slugify(rel)
	if s := stringField(fields, "permalink"); s != "" {
		slug = Slugify(s)
	}

	pc := parser.NewContext()
	pc.Set(pageSlugKey, slug)
	pc.Set(slugIndexKey, idx)
	var buf bytes.Buffer
	if err := md.Convert(body, &buf, parser.WithContext(pc)); err != nil {
		return nil, inputError(rel, err)
	}

	dates, err := pageDates(fields, modTime)
	if err != nil {
		return nil, inputError(rel, err)
	}
	fp, err := fingerprint(fields, body)
	if err != nil {
		return nil, inputError(rel, err)
	}

	title := stringField(fields, "title")
	if title == "" {
		title = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	}
	desc := stringField(fields, "description")
	if desc == "" {
		desc = describe(buf.Bytes())
	}

	return &Page{
		Slug:        slug,
		Source:      rel,
		Title:       title,
		Description: desc,
		Tags:        stringsField(fields, "tags"),
		Fingerprint: fp,
		Dates:       dates,
		HTML:        buf.String(),
	}, nil
}

// pageDates reads created, modified and published from frontmatter,
// falling back to the file modification time.
func pageDates(fields map[string]any, modTime time.Time) (Dates, error) {
	d := Dates{Created: modTime, Modified: modTime}
	if t, ok, err := dateField(fields, "created", "date"); err != nil {
		return d, err
	} else if ok {
		d.Created = t
	}
	if t, ok, err := dateField(fields, "modified", "lastmod", "updated", "last-modified"); err != nil {
		return d, err
	} else if ok {
		d.Modified = t
	}
	d.Published = d.Created
	if t, ok, err := dateField(fields, "published", "publishDate"); err != nil {
		return d, err
	} else if ok {
		d.Published = t
	}
	return d, nil
}

// fingerprint hashes the frontmatter (minus volatile keys) and body.
func fingerprint(fields map[string]any, body []byte) (string, error) {
	hashed := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case mdfp.FingerprintField, "lastmod", "modified", "updated":
			continue
		}
		hashed[k] = v
	}
	fm := ""
	if len(hashed) > 0 {
		out, err := yaml.Marshal(hashed)
		if err != nil {
			return "", err
		}
		fm = strings.TrimSuffix(string(out), "\n")
	}
	return mdfp.CalculateFingerprintFromParts(fm, string(body)), nil
}

// describe extracts the leading text of rendered HTML for page metadata.
func describe(rendered []byte) string {
	doc, err := html.Parse(bytes.NewReader(rendered))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if sb.Len() > descriptionLength*4 {
			return
		}
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.Data == "pre" || n.Data == "script" || n.Data == "style"):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && (n.Data == "p" || n.Data == "li" || strings.HasPrefix(n.Data, "h")) {
			sb.WriteByte(' ')
		}
	}
	walk(doc)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if utf8.RuneCountInString(text) <= descriptionLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:descriptionLength])) + "..."
}

// WasModified reports whether the page changed after it was created.
func (d Dates) WasModified() bool { return !d.Modified.Equal(d.Created) }
