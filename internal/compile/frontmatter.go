package compile

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// errUnclosedFrontmatter means a document opened a YAML block it never closed.
var errUnclosedFrontmatter = errors.New("frontmatter opened with --- but never closed")

// splitFrontmatter separates a leading `---` delimited YAML block from the
// markdown body. Documents without one return nil raw frontmatter.
func splitFrontmatter(content []byte) (raw, body []byte, err error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, nil
	}
	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return []byte{}, rest[len(open):], nil
	}
	end := bytes.Index(rest, []byte(nl+"---"+nl))
	if end < 0 {
		if bytes.HasSuffix(rest, []byte(nl+"---")) {
			return rest[:len(rest)-len(nl)-3], nil, nil
		}
		return nil, nil, errUnclosedFrontmatter
	}
	return rest[:end+len(nl)], rest[end+2*len(nl)+3:], nil
}

func parseFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fields, nil
	}
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func stringField(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringsField(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// dateField returns the first key that holds a parseable date. A value that
// is present but unparseable is an error.
func dateField(fields map[string]any, keys ...string) (time.Time, bool, error) {
	for _, k := range keys {
		switch v := fields[k].(type) {
		case nil:
			continue
		case time.Time:
			return v, true, nil
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, v); err == nil {
					return t, true, nil
				}
			}
			return time.Time{}, false, fmt.Errorf("frontmatter %q: unrecognized date %q", k, v)
		default:
			return time.Time{}, false, fmt.Errorf("frontmatter %q: expected a date, got %T", k, v)
		}
	}
	return time.Time{}, false, nil
}
