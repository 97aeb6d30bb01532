package cards

import (
	"html/template"
	"strings"

	"finitefield.org/templates-listing/internal/catalog"
	"finitefield.org/templates-listing/internal/media"
)

// MainImageWidth is the width hint used for the card's front image.
const MainImageWidth = "350"

// ImageFunc renders an optimized image element.
type ImageFunc func(src, alt string, eager bool, hints []media.Breakpoint) template.HTML

// DefaultImage renders pictures through the media optimizer.
func DefaultImage(src, alt string, eager bool, hints []media.Breakpoint) template.HTML {
	return media.RenderHTML(media.Picture(src, alt, eager, hints))
}

// Chip is a clickable tag that opens the asset preview.
type Chip struct {
	Index   int
	Label   string
	Locator string
	Class   string
}

// Section groups the chips of one asset family on the back face.
type Section struct {
	Title string
	Chips []Chip
}

// Card is the renderable form of a template.
type Card struct {
	Index      int
	Title      string
	Image      template.HTML
	GitHub     string
	Categories string
	Sections   []Section
	Tags       []Chip
	Flipped    bool
}

// Chip returns the chip with the given card-local index.
func (c Card) Chip(index int) (Chip, bool) {
	for _, s := range c.Sections {
		for _, chip := range s.Chips {
			if chip.Index == index {
				return chip, true
			}
		}
	}
	for _, chip := range c.Tags {
		if chip.Index == index {
			return chip, true
		}
	}
	return Chip{}, false
}

// Build renders t as the card at position index. It is pure given its inputs.
func Build(index int, t catalog.Template, img ImageFunc) Card {
	if img == nil {
		img = DefaultImage
	}
	card := Card{
		Index:  index,
		Title:  t.Opportunity,
		Image:  img(t.MainImage, t.Opportunity, true, []media.Breakpoint{{Width: MainImageWidth}}),
		GitHub: t.GitHub,
	}

	categories := t.CategoryList()
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	card.Categories = strings.Join(names, " ")

	next := 0
	groups := []struct {
		category catalog.Category
		assets   []catalog.AssetRef
	}{
		{catalog.CategoryEmail, t.Assets.Email},
		{catalog.CategoryDisplayAd, t.Assets.DisplayAd},
		{catalog.CategoryMetaAd, t.Assets.MetaAd},
	}
	for _, g := range groups {
		if len(g.assets) == 0 {
			continue
		}
		section := Section{Title: g.category.Label()}
		for _, asset := range g.assets {
			section.Chips = append(section.Chips, Chip{
				Index:   next,
				Label:   asset.Label,
				Locator: asset.Locator,
				Class:   tagClass(g.category),
			})
			next++
		}
		card.Sections = append(card.Sections, section)
	}

	for _, c := range categories {
		card.Tags = append(card.Tags, Chip{
			Index: next,
			Label: c.Label(),
			Class: tagClass(c),
		})
		next++
	}
	return card
}

func tagClass(c catalog.Category) string {
	return "tag-" + string(c)
}
