package compile

import (
	"path"
	"strings"
)

var slugReplacer = strings.NewReplacer(
	" ", "-",
	"\t", "-",
	"&", "-and-",
	"%", "-percent",
	"?", "",
	"#", "",
)

// Slugify maps a content-relative path to its page slug: the markdown
// extension is dropped and each segment is made URL safe.
func Slugify(rel string) string {
	rel = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(rel, "\\", "/")), "/")
	if ext := path.Ext(rel); strings.EqualFold(ext, ".md") {
		rel = strings.TrimSuffix(rel, ext)
	}
	segments := strings.Split(rel, "/")
	for i, s := range segments {
		segments[i] = slugReplacer.Replace(s)
	}
	return strings.TrimSuffix(strings.Join(segments, "/"), "/")
}

func isMarkdown(rel string) bool {
	return strings.EqualFold(path.Ext(rel), ".md")
}
