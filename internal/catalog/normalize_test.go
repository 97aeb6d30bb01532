package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDerivesCategoriesFromFlags(t *testing.T) {
	t.Parallel()

	rows := []RawRecord{
		{"Email": "true", "DisplayAd": "false", "MetaAd": "true"},
		{"Email": "false", "DisplayAd": "true"},
		{},
	}

	got := Normalize(rows)
	require.Len(t, got, 3)

	for i, tpl := range got {
		want := NewCategorySet()
		if tpl.Flags.Email {
			want.Add(CategoryEmail)
		}
		if tpl.Flags.DisplayAd {
			want.Add(CategoryDisplayAd)
		}
		if tpl.Flags.MetaAd {
			want.Add(CategoryMetaAd)
		}
		require.True(t, want.Equal(tpl.Categories), "row %d: categories must mirror flags", i)
	}

	require.Equal(t, []Category{CategoryEmail, CategoryMetaAd}, got[0].CategoryList())
	require.Equal(t, []Category{CategoryDisplayAd}, got[1].CategoryList())
	require.Empty(t, got[2].CategoryList())
}

func TestNormalizeFlagRequiresExactTrue(t *testing.T) {
	t.Parallel()

	for _, value := range []string{"True", "TRUE", "1", "yes", " true", ""} {
		got := Normalize([]RawRecord{{"Email": value}})
		require.False(t, got[0].Flags.Email, "value %q must not set the flag", value)
		require.False(t, got[0].HasCategory(CategoryEmail))
	}

	got := Normalize([]RawRecord{{"Email": "true"}})
	require.True(t, got[0].Flags.Email)
}

func TestNormalizeAssetGroupsKeepFixedOrder(t *testing.T) {
	t.Parallel()

	row := RawRecord{
		"Email1Pod":        "",
		"Email2Pod":        "x.png",
		"DisplayAd970x250": "wide.jpg",
		"DisplayAd300x600": "tall.jpg",
		"MetaAd9x16":       "story.png",
		"MetaAd1x1":        "square.png",
		"MetaAdExtra":      "ignored.png",
	}

	got := Normalize([]RawRecord{row})[0]

	require.Equal(t, []AssetRef{{Label: "Email2Pod", Locator: "x.png"}}, got.Assets.Email)
	require.Equal(t, []AssetRef{
		{Label: "DisplayAd300x600", Locator: "tall.jpg"},
		{Label: "DisplayAd970x250", Locator: "wide.jpg"},
	}, got.Assets.DisplayAd)
	require.Equal(t, []AssetRef{
		{Label: "MetaAd1x1", Locator: "square.png"},
		{Label: "MetaAd9x16", Locator: "story.png"},
	}, got.Assets.MetaAd)
}

func TestNormalizeCopiesDisplayColumns(t *testing.T) {
	t.Parallel()

	got := Normalize([]RawRecord{{
		"Opportunity": "Spring launch",
		"MainImage":   "/media/spring.png",
		"GitHub":      "https://github.com/example/spring",
	}})[0]

	require.Equal(t, "Spring launch", got.Opportunity)
	require.Equal(t, "/media/spring.png", got.MainImage)
	require.Equal(t, "https://github.com/example/spring", got.GitHub)
	require.Empty(t, got.Assets.Email)
}

func TestNormalizeEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, Normalize(nil))
}

func TestTemplateIntersects(t *testing.T) {
	t.Parallel()

	tpl := Normalize([]RawRecord{{"MetaAd": "true"}})[0]

	require.True(t, tpl.Intersects(NewCategorySet(CategoryMetaAd, CategoryEmail)))
	require.False(t, tpl.Intersects(NewCategorySet(CategoryEmail)))
	require.False(t, tpl.Intersects(NewCategorySet()))
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	c, ok := ParseCategory(" Display-Ad ")
	require.True(t, ok)
	require.Equal(t, CategoryDisplayAd, c)
	require.Equal(t, "Display Ad", c.Label())

	_, ok = ParseCategory("print")
	require.False(t, ok)
}
