package view

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"finitefield.org/templates-listing/internal/cards"
	"finitefield.org/templates-listing/internal/listing"
	"finitefield.org/templates-listing/internal/preview"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Template names.
const (
	PageTemplate    = "page"
	BlockTemplate   = "block"
	CardsTemplate   = "cards"
	PreviewTemplate = "preview"
)

// PageData is the model of a full page load.
type PageData struct {
	Title       string
	Description string
	Body        template.HTML
	PageID      string
	CSRFToken   string
	Blocks      []BlockData
	Preview     PreviewData
}

// BlockData is the model of one authored block.
type BlockData struct {
	ID           string
	HTML         template.HTML
	Listing      *listing.View
	PreviewURL   string
	PollInterval string
	// OOB marks the card grid for an out-of-band swap.
	OOB bool
}

// PreviewData is the model of the preview overlay.
type PreviewData struct {
	preview.Snapshot
	CloseURL string
	// OOB adds the out-of-band scroll lock swap to fragment responses.
	OOB bool
}

// ChipData is the model of one chip button.
type ChipData struct {
	Action     string
	Generation uint64
	Card       int
	Chip       cards.Chip
}

func chipData(block BlockData, card cards.Card, chip cards.Chip) ChipData {
	d := ChipData{Card: card.Index, Chip: chip}
	if block.Listing != nil {
		d.Action = block.Listing.Actions.Chip
		d.Generation = block.Listing.Generation
	}
	return d
}

// Renderer executes the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	funcs := template.FuncMap{
		"chipData": chipData,
	}
	tmpl, err := template.New("_root").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("view: parse templates: %w", err)
	}
	for _, name := range []string{PageTemplate, BlockTemplate, CardsTemplate, PreviewTemplate} {
		if tmpl.Lookup(name) == nil {
			return nil, fmt.Errorf("view: template %q not defined", name)
		}
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Component wraps the named template as a templ component.
func (r *Renderer) Component(name string, data any) templ.Component {
	return templ.FromGoHTML(r.tmpl.Lookup(name), data)
}

// Render writes the named template as the response.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	if r.tmpl.Lookup(name) == nil {
		http.Error(w, fmt.Sprintf("template %q not defined", name), http.StatusInternalServerError)
		return
	}
	templ.Handler(r.Component(name, data), templ.WithStatus(status)).ServeHTTP(w, req)
}

// RenderComponents writes parts back to back as one response.
func (r *Renderer) RenderComponents(w http.ResponseWriter, req *http.Request, status int, parts ...templ.Component) {
	joined := templ.ComponentFunc(func(ctx context.Context, out io.Writer) error {
		for _, part := range parts {
			if err := part.Render(ctx, out); err != nil {
				return err
			}
		}
		return nil
	})
	templ.Handler(joined, templ.WithStatus(status)).ServeHTTP(w, req)
}

// String renders the named template to a string.
func (r *Renderer) String(name string, data any) (string, error) {
	t := r.tmpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("view: template %q not defined", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
