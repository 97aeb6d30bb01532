package filters

import (
	"net/url"

	mapset "github.com/deckarep/golang-set/v2"

	"finitefield.org/templates-listing/internal/catalog"
)

// FieldName is the form field carrying the checked categories.
const FieldName = "category"

// Option is a single category checkbox.
type Option struct {
	ID      string
	Value   string
	Label   string
	Checked bool
}

// View is the checkbox set for one listing.
type View struct {
	Action  string
	Field   string
	Options []Option
}

// Defaults returns the filter state with every category selected.
func Defaults() mapset.Set[catalog.Category] {
	return catalog.NewCategorySet(catalog.AllCategories()...)
}

// Render builds the checkbox set. Submitting the form posts to action.
func Render(action string, active mapset.Set[catalog.Category]) View {
	v := View{Action: action, Field: FieldName}
	for _, c := range catalog.AllCategories() {
		v.Options = append(v.Options, Option{
			ID:      "filter-" + string(c),
			Value:   string(c),
			Label:   c.Label(),
			Checked: active != nil && active.Contains(c),
		})
	}
	return v
}

// FromForm reads the checked categories from a submitted form. Unknown values
// are ignored; no checked boxes yields an empty set.
func FromForm(form url.Values) mapset.Set[catalog.Category] {
	set := catalog.NewCategorySet()
	for _, raw := range form[FieldName] {
		if c, ok := catalog.ParseCategory(raw); ok {
			set.Add(c)
		}
	}
	return set
}
