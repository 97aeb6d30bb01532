package catalog

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Category is one of the fixed filter categories a template can belong to.
type Category string

const (
	CategoryEmail     Category = "email"
	CategoryDisplayAd Category = "display-ad"
	CategoryMetaAd    Category = "meta-ad"
)

var categoryOrder = []Category{CategoryEmail, CategoryDisplayAd, CategoryMetaAd}

var categoryLabels = map[Category]string{
	CategoryEmail:     "Email",
	CategoryDisplayAd: "Display Ad",
	CategoryMetaAd:    "Meta Ad",
}

// AllCategories returns the category vocabulary in display order.
func AllCategories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// ParseCategory maps a raw value onto the vocabulary.
func ParseCategory(value string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := categoryLabels[c]; !ok {
		return "", false
	}
	return c, true
}

// Label returns the human readable name of the category.
func (c Category) Label() string {
	return categoryLabels[c]
}

// NewCategorySet builds a set from the supplied categories.
func NewCategorySet(values ...Category) mapset.Set[Category] {
	return mapset.NewThreadUnsafeSet(values...)
}

// RawRecord is one untyped row of the spreadsheet feed.
type RawRecord map[string]string

// AssetRef points at one downloadable asset of a template.
type AssetRef struct {
	Label   string
	Locator string
}

// Flags records which asset families a template ships with.
type Flags struct {
	Email     bool
	DisplayAd bool
	MetaAd    bool
}

// AssetGroups holds the assets of a template grouped by family.
type AssetGroups struct {
	Email     []AssetRef
	DisplayAd []AssetRef
	MetaAd    []AssetRef
}

// Template is a normalized row of the feed. It is not modified after Normalize returns it.
type Template struct {
	Opportunity string
	MainImage   string
	GitHub      string
	Flags       Flags
	Assets      AssetGroups
	Categories  mapset.Set[Category]
}

// HasCategory reports whether the template belongs to c.
func (t Template) HasCategory(c Category) bool {
	return t.Categories != nil && t.Categories.Contains(c)
}

// Intersects reports whether the template shares at least one category with active.
func (t Template) Intersects(active mapset.Set[Category]) bool {
	if t.Categories == nil || active == nil {
		return false
	}
	for _, c := range categoryOrder {
		if t.Categories.Contains(c) && active.Contains(c) {
			return true
		}
	}
	return false
}

// CategoryList returns the template's categories in vocabulary order.
func (t Template) CategoryList() []Category {
	out := make([]Category, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		if t.HasCategory(c) {
			out = append(out, c)
		}
	}
	return out
}
