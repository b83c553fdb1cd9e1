package schema

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	unsafeChars   = regexp.MustCompile(`[^\w\s-]`)
	separatorRuns = regexp.MustCompile(`[-\s]+`)
)

// asciiFold decomposes s (NFKD) and drops everything outside ASCII, so "Café"
// becomes "Cafe" and "日本" becomes "".
func asciiFold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	folded, _, err := transform.String(t, s)
	if err != nil {
		return ""
	}
	return folded
}

func slugify(s, sep string) string {
	s = asciiFold(s)
	s = strings.ToLower(strings.TrimSpace(unsafeChars.ReplaceAllString(s, "")))
	return separatorRuns.ReplaceAllString(s, sep)
}

// ColumnSlug turns a source column name into an index-safe token: lowercase
// ASCII word characters joined by underscores.
func ColumnSlug(name string) string {
	return slugify(name, "_")
}

// DatasetSlug derives a URL-safe dataset identifier from its name.
func DatasetSlug(name string) string {
	return slugify(name, "-")
}
