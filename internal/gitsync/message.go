package gitsync

import (
	"time"

	"golang.org/x/text/language"
)

// DefaultCommitPrefix starts generated commit messages.
const DefaultCommitPrefix = "Site sync"

// Timestamp layouts per supported locale, medium date and short time.
var (
	supportedLocales = []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.French,
		language.Spanish,
		language.Japanese,
	}
	localeLayouts = []string{
		"Jan 2, 2006, 3:04 PM",
		"2 Jan 2006, 15:04",
		"02.01.2006, 15:04",
		"02/01/2006 15:04",
		"2/1/2006, 15:04",
		"2006/01/02 15:04",
	}
	localeMatcher = language.NewMatcher(supportedLocales)
)

// FormatTimestamp renders t for the closest supported locale. Unknown or
// malformed locales fall back to en-US.
func FormatTimestamp(t time.Time, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return t.Format(localeLayouts[0])
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		idx = 0
	}
	return t.Format(localeLayouts[idx])
}

// CommitMessage builds "<prefix>: <localized timestamp>".
func CommitMessage(prefix string, now time.Time, locale string) string {
	if prefix == "" {
		prefix = DefaultCommitPrefix
	}
	return prefix + ": " + FormatTimestamp(now, locale)
}
