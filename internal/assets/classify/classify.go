// Package classify derives semantic tags from human-authored filenames.
//
// Filenames arrive with inconsistent casing and mixed Unicode composition
// forms (decomposed Hangul from macOS uploads looks identical to composed
// Hangul but fails substring checks), so every comparison goes through one
// canonicalization first.
package classify

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	types "github.com/studiomoa/assetpipe/internal/domain/assets"
)

var reSequence = regexp.MustCompile(`[0-9]{2}`)

type Classifier struct {
	rules         []Rule // sorted by descending pattern rune length
	noiseSuffixes []string
	variantTokens []string
}

func New(rs RuleSet) *Classifier {
	rules := make([]Rule, len(rs.Rules))
	for i, r := range rs.Rules {
		rules[i] = Rule{
			Pattern:  Normalize(r.Pattern),
			Category: r.Category,
			Scene:    r.Scene,
		}
	}
	// Longest pattern wins regardless of table order, so a short generic
	// pattern can never shadow a compound one that contains it.
	sort.SliceStable(rules, func(i, j int) bool {
		return utf8.RuneCountInString(rules[i].Pattern) > utf8.RuneCountInString(rules[j].Pattern)
	})

	noise := make([]string, len(rs.NoiseSuffixes))
	for i, s := range rs.NoiseSuffixes {
		noise[i] = Normalize(s)
	}
	variants := make([]string, len(rs.VariantTokens))
	for i, s := range rs.VariantTokens {
		variants[i] = Normalize(s)
	}
	return &Classifier{rules: rules, noiseSuffixes: noise, variantTokens: variants}
}

// Normalize canonicalizes a string for matching: Unicode NFC, lower case,
// trimmed. Visually identical names must compare equal after this.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}

// Classify maps a filename to its semantic tag. The subject's display name
// is stripped first so a name that happens to contain a pattern token does
// not misclassify the file. The second return is false for unclassified
// files; callers surface those for manual triage, never silently drop or
// default them.
func (c *Classifier) Classify(filename, subjectDisplayName string) (types.Classification, bool) {
	stripped := c.Strip(filename, subjectDisplayName)

	for _, r := range c.rules {
		if strings.Contains(stripped, r.Pattern) {
			return types.Classification{
				Category: r.Category,
				Scene:    r.Scene,
				Variant:  c.variant(stripped),
			}, true
		}
	}
	return types.Classification{Category: types.CategoryUnclassified}, false
}

// Strip returns the normalized filename stem with the subject display name
// and known noise suffixes removed.
func (c *Classifier) Strip(filename, subjectDisplayName string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	stem = Normalize(stem)

	if name := Normalize(subjectDisplayName); name != "" {
		stem = strings.ReplaceAll(stem, name, "")
	}
	for _, suffix := range c.noiseSuffixes {
		stem = strings.TrimSuffix(stem, suffix)
	}
	return strings.Trim(stem, " -_")
}

// Sequence extracts the explicit ordinal from a filename: the first 2-digit
// run. Zero means none present; the planner assigns the next free ordinal in
// the (subject, category) bucket instead.
func (c *Classifier) Sequence(filename string) int {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	m := reSequence.FindString(Normalize(stem))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

func (c *Classifier) variant(stripped string) string {
	for _, tok := range c.variantTokens {
		if strings.Contains(stripped, tok) {
			return tok
		}
	}
	return ""
}
