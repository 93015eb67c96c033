package pathing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"KSS", "kss"},
		{"  K S S  ", "k-s-s"},
		{"kss_7942", "kss-7942"},
		{"café", "caf"},
		{"--kss--", "kss"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), "Slugify(%q)", tc.in)
	}
}

func TestSlugifyNormalizationInsensitive(t *testing.T) {
	composed := "한글kss"
	decomposed := norm.NFD.String(composed)
	assert.Equal(t, Slugify(composed), Slugify(decomposed))
}

func TestFolderDerivation(t *testing.T) {
	assert.Equal(t, "kss", FolderFromCanonicalID("kss-7942"))
	assert.Equal(t, "kss", FolderFromCanonicalID("KSS"))
	assert.Equal(t, "kss", FolderFromSlug("kss"))
	assert.Equal(t, "l-s-y", FolderFromSlug("l-s-y"))
}
