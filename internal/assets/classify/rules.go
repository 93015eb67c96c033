package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	types "github.com/studiomoa/assetpipe/internal/domain/assets"
)

// Rule maps a filename substring onto a category and its studio scene.
type Rule struct {
	Pattern  string         `yaml:"pattern"`
	Category types.Category `yaml:"category"`
	Scene    int            `yaml:"scene"`
}

// RuleSet is the injected classifier configuration. It is explicit
// constructor input, never a module-level table, so rules can be varied per
// run and tested in isolation.
type RuleSet struct {
	Rules         []Rule   `yaml:"rules"`
	NoiseSuffixes []string `yaml:"noise_suffixes"`
	VariantTokens []string `yaml:"variant_tokens"`
}

// DefaultRuleSet is the studio's production table. Longer compound patterns
// may share a category with their short forms; match precedence is by
// pattern length, not table order.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Rules: []Rule{
			{Pattern: "프로필", Category: types.CategoryProfile, Scene: 1},
			{Pattern: "profile", Category: types.CategoryProfile, Scene: 1},
			{Pattern: "매장", Category: types.CategoryStore, Scene: 2},
			{Pattern: "시타영상", Category: types.CategorySwingVideo, Scene: 3},
			{Pattern: "시타", Category: types.CategorySwingVideo, Scene: 3},
			{Pattern: "스윙", Category: types.CategorySwingVideo, Scene: 3},
			{Pattern: "인터뷰", Category: types.CategoryInterview, Scene: 4},
			{Pattern: "단체", Category: types.CategoryGroup, Scene: 5},
			{Pattern: "사인", Category: types.CategorySignature, Scene: 6},
			{Pattern: "싸인", Category: types.CategorySignature, Scene: 6},
			{Pattern: "review-capture-kakao-channel", Category: types.CategoryReviewCapture, Scene: 7},
			{Pattern: "review", Category: types.CategoryReview, Scene: 7},
			{Pattern: "리뷰", Category: types.CategoryReview, Scene: 7},
			{Pattern: "레슨", Category: types.CategoryLesson, Scene: 8},
		},
		NoiseSuffixes: []string{"-ok", "_ok", " ok"},
		VariantTokens: []string{
			"black", "white", "silver", "gold", "red", "blue",
			"블랙", "화이트", "실버", "골드", "레드", "블루",
		},
	}
}

// LoadRuleSet reads a yaml rule file. Categories outside the closed set are
// rejected rather than silently defaulted.
func LoadRuleSet(path string) (RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rule file: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse rule file: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

func (rs RuleSet) Validate() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("rule set has no rules")
	}
	for i, r := range rs.Rules {
		if r.Pattern == "" {
			return fmt.Errorf("rule %d: empty pattern", i)
		}
		if _, ok := types.ParseCategory(string(r.Category)); !ok {
			return fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
	}
	return nil
}
