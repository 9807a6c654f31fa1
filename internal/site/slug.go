package site

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	titleCaser = cases.Title(language.English)

	// accentFolder decomposes accented letters and strips the combining
	// marks, so "Näme" folds to "Name" instead of being dropped.
	accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Slugify normalizes a page name into a URL-safe slug: accents folded to
// their base letters, lowercased, with separators collapsed to single hyphens.
func Slugify(name string) string {
	s, _, err := transform.String(accentFolder, name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(s)

	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// TitleFromName derives a human-readable page title from a file name:
// "database_migration" -> "Database Migration".
func TitleFromName(name string) string {
	s := strings.TrimSuffix(name, ".md")
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return titleCaser.String(s)
}
