package pathing

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Slugify reduces a human-entered name to the folder alphabet: NFC, lower,
// ascii letters, digits and single dashes.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// FolderFromCanonicalID derives the physical folder name from a canonical
// identifier. Identifiers carry a numeric suffix after the first dash
// ("kss-7942"); the folder is the bare prefix ("kss").
func FolderFromCanonicalID(canonicalID string) string {
	slug := Slugify(canonicalID)
	if i := strings.IndexByte(slug, '-'); i > 0 {
		return slug[:i]
	}
	return slug
}

// FolderFromSlug derives the physical folder name from a display slug. Slugs
// carry no suffix; the folder is the slug itself.
func FolderFromSlug(displaySlug string) string {
	return Slugify(displaySlug)
}
