package assets

// Category is the closed set of semantic buckets a filename can classify
// into. Downstream code never constructs categories from free-form strings.
type Category string

const (
	CategoryProfile       Category = "profile"
	CategoryStore         Category = "store"
	CategorySwingVideo    Category = "swing-video"
	CategoryInterview     Category = "interview"
	CategoryGroup         Category = "group"
	CategorySignature     Category = "signature"
	CategoryReview        Category = "review"
	CategoryReviewCapture Category = "review-capture"
	CategoryLesson        Category = "lesson"
	CategoryUnclassified  Category = "unclassified"
)

// Classification is the semantic tag derived from an original filename.
type Classification struct {
	Category Category `json:"category"`
	// Scene is the fixed studio scene this category shoots in. It comes from
	// the rule table, not from the filename.
	Scene int `json:"scene,omitempty"`
	// Variant is an optional product variant token (color and similar).
	Variant string `json:"variant,omitempty"`
}

// Unclassified reports whether the tag is the manual-triage fallback.
func (c Classification) Unclassified() bool {
	return c.Category == CategoryUnclassified || c.Category == ""
}

// ParseCategory maps a string onto the closed category set.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryProfile, CategoryStore, CategorySwingVideo, CategoryInterview,
		CategoryGroup, CategorySignature, CategoryReview, CategoryReviewCapture,
		CategoryLesson:
		return Category(s), true
	default:
		return CategoryUnclassified, false
	}
}
