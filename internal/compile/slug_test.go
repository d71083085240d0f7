package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"index.md", "index"},
		{"notes/First Post.md", "notes/First-Post"},
		{"Q&A.md", "Q-and-A"},
		{"100%.md", "100-percent"},
		{"what?#.md", "what"},
		{"dir\\sub\\page.MD", "dir/sub/page"},
		{"images/logo.png", "images/logo.png"},
		{"/abs/page.md", "abs/page"},
		{"a/../b.md", "b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestRelativeSlug(t *testing.T) {
	assert.Equal(t, "./b", relativeSlug("notes/a", "notes/b"))
	assert.Equal(t, "./notes/b", relativeSlug("index", "notes/b"))
	assert.Equal(t, "../../x", relativeSlug("a/b/c", "x"))
	assert.Equal(t, "../other/y", relativeSlug("notes/a", "other/y"))
}
