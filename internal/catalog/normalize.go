package catalog

import mapset "github.com/deckarep/golang-set/v2"

const flagTrue = "true"

const (
	columnOpportunity = "Opportunity"
	columnMainImage   = "MainImage"
	columnGitHub      = "GitHub"
	columnEmail       = "Email"
	columnDisplayAd   = "DisplayAd"
	columnMetaAd      = "MetaAd"
)

// Asset columns per family, in the order they are presented.
var (
	EmailColumns     = [3]string{"Email1Pod", "Email2Pod", "Email3Pod"}
	DisplayAdColumns = [3]string{"DisplayAd300x600", "DisplayAd300x250", "DisplayAd970x250"}
	MetaAdColumns    = [3]string{"MetaAd1x1", "MetaAd4x5", "MetaAd9x16"}
)

// Normalize turns raw feed rows into templates. It never fails: missing or
// malformed columns produce empty groups and false flags.
func Normalize(rows []RawRecord) []Template {
	out := make([]Template, 0, len(rows))
	for _, row := range rows {
		out = append(out, normalizeRow(row))
	}
	return out
}

func normalizeRow(row RawRecord) Template {
	flags := Flags{
		Email:     row[columnEmail] == flagTrue,
		DisplayAd: row[columnDisplayAd] == flagTrue,
		MetaAd:    row[columnMetaAd] == flagTrue,
	}
	return Template{
		Opportunity: row[columnOpportunity],
		MainImage:   row[columnMainImage],
		GitHub:      row[columnGitHub],
		Flags:       flags,
		Assets: AssetGroups{
			Email:     collectAssets(row, EmailColumns),
			DisplayAd: collectAssets(row, DisplayAdColumns),
			MetaAd:    collectAssets(row, MetaAdColumns),
		},
		Categories: categoriesFromFlags(flags),
	}
}

func collectAssets(row RawRecord, columns [3]string) []AssetRef {
	var refs []AssetRef
	for _, col := range columns {
		if v := row[col]; v != "" {
			refs = append(refs, AssetRef{Label: col, Locator: v})
		}
	}
	return refs
}

func categoriesFromFlags(f Flags) mapset.Set[Category] {
	set := NewCategorySet()
	if f.Email {
		set.Add(CategoryEmail)
	}
	if f.DisplayAd {
		set.Add(CategoryDisplayAd)
	}
	if f.MetaAd {
		set.Add(CategoryMetaAd)
	}
	return set
}
