package config

import "git.home.luguber.info/inful/sitebuilder/internal/foundation/normalization"

// LinkResolution selects how wiki-style links in content are resolved.
type LinkResolution string

const (
	LinkShortest LinkResolution = "shortest"
	LinkAbsolute LinkResolution = "absolute"
	LinkRelative LinkResolution = "relative"
)

var linkResolutionNormalizer = normalization.NewNormalizer(map[string]LinkResolution{
	"shortest": LinkShortest,
	"absolute": LinkAbsolute,
	"relative": LinkRelative,
}, LinkShortest)

// ParseLinkResolution validates a user-supplied link resolution strategy.
func ParseLinkResolution(raw string) (LinkResolution, error) {
	return linkResolutionNormalizer.NormalizeWithError(raw)
}
