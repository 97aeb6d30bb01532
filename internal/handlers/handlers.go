package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/templates-listing/internal/cards"
	"finitefield.org/templates-listing/internal/content"
	"finitefield.org/templates-listing/internal/filters"
	"finitefield.org/templates-listing/internal/listing"
	custommw "finitefield.org/templates-listing/internal/middleware"
	"finitefield.org/templates-listing/internal/observability"
	"finitefield.org/templates-listing/internal/page"
	"finitefield.org/templates-listing/internal/preview"
	"finitefield.org/templates-listing/internal/view"
)

// DefaultPollInterval is how often a loading block asks for its state.
const DefaultPollInterval = time.Second

// ContentSource loads authored pages by slug.
type ContentSource interface {
	Load(slug string) (content.Page, error)
}

// Dependencies collects the collaborators of the page and fragment handlers.
type Dependencies struct {
	Content  ContentSource
	Pages    *page.Store
	Sheet    listing.Loader
	Renderer *view.Renderer
	// ListingOptions are applied to every listing block before its per-block settings.
	ListingOptions []listing.Option
	// InitialWait bounds how long a full page load waits for its listings to settle.
	InitialWait  time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Handlers exposes the page and fragment handlers.
type Handlers struct {
	content     ContentSource
	pages       *page.Store
	sheet       listing.Loader
	renderer    *view.Renderer
	listingOpts []listing.Option
	initialWait time.Duration
	poll        time.Duration
	logger      *zap.Logger
}

// NewHandlers wires the handler set.
func NewHandlers(deps Dependencies) *Handlers {
	h := &Handlers{
		content:     deps.Content,
		pages:       deps.Pages,
		sheet:       deps.Sheet,
		renderer:    deps.Renderer,
		listingOpts: deps.ListingOptions,
		initialWait: deps.InitialWait,
		poll:        deps.PollInterval,
		logger:      deps.Logger,
	}
	if h.pages == nil {
		h.pages = page.NewStore()
	}
	if h.poll <= 0 {
		h.poll = DefaultPollInterval
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// Healthz reports liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Index renders the "index" page.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "index")
}

// Page renders the authored page named by the slug URL parameter.
func (h *Handlers) Page(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, chi.URLParam(r, "slug"))
}

func (h *Handlers) renderPage(w http.ResponseWriter, r *http.Request, slug string) {
	logger := observability.FromContext(r.Context())
	if h.content == nil {
		writeError(w, r, http.StatusNotFound, "page not found")
		return
	}
	doc, err := h.content.Load(slug)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "page not found")
			return
		}
		logger.Error("handlers: load content failed", zap.String("slug", slug), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "failed to load page")
		return
	}

	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "session unavailable")
		return
	}

	p := h.pages.Create(sess.ID, doc, h.buildListing)
	if err := p.StartAll(r.Context(), h.initialWait); err != nil {
		// The client went away; listings keep loading for the next poll.
		logger.Debug("handlers: initial wait interrupted", zap.String("page_id", p.ID), zap.Error(err))
	}

	data := view.PageData{
		Title:       doc.Title,
		Description: doc.Description,
		Body:        doc.Body,
		PageID:      p.ID,
		CSRFToken:   custommw.CSRFTokenFromContext(r.Context()),
		Preview:     view.PreviewData{CloseURL: closeURL(p.ID)},
	}
	for _, b := range p.Blocks {
		if b.Listing == nil {
			data.Blocks = append(data.Blocks, view.BlockData{ID: b.ID, HTML: b.Content.HTML})
			continue
		}
		data.Blocks = append(data.Blocks, h.blockData(p, b.Listing))
	}
	h.renderer.Render(w, r, http.StatusOK, view.PageTemplate, data)
}

func (h *Handlers) buildListing(pageID, blockID string, block content.Block) *listing.Listing {
	opts := make([]listing.Option, 0, len(h.listingOpts)+3)
	opts = append(opts, h.listingOpts...)
	opts = append(opts,
		listing.WithLogger(h.logger.With(zap.String("page_id", pageID))),
		listing.WithBasePath(blockPath(pageID, blockID)),
	)
	if block.PageSize > 0 {
		opts = append(opts, listing.WithPageSize(block.PageSize))
	}
	return listing.New(blockID, block.DataSource, h.sheet, opts...)
}

// Block renders the current state of a listing block. Loading blocks poll it.
func (h *Handlers) Block(w http.ResponseWriter, r *http.Request) {
	p, l, ok := h.lookupListing(w, r)
	if !ok {
		return
	}
	h.renderer.Render(w, r, http.StatusOK, view.BlockTemplate, h.blockData(p, l))
}

// Filters applies the submitted category checkboxes and returns to page 1.
func (h *Handlers) Filters(w http.ResponseWriter, r *http.Request) {
	p, l, ok := h.lookupListing(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid form")
		return
	}
	if err := l.SetFilters(filters.FromForm(r.PostForm)); err != nil {
		if errors.Is(err, listing.ErrNotReady) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to apply filters")
		return
	}
	h.renderer.Render(w, r, http.StatusOK, view.BlockTemplate, h.blockData(p, l))
}

// Paginate moves the listing to the submitted page.
func (h *Handlers) Paginate(w http.ResponseWriter, r *http.Request) {
	p, l, ok := h.lookupListing(w, r)
	if !ok {
		return
	}
	gen, ok := formUint(w, r, "gen")
	if !ok {
		return
	}
	target, ok := formInt(w, r, "page")
	if !ok {
		return
	}
	if err := l.GoToPage(gen, target); err != nil {
		if ignorable(err) || errors.Is(err, listing.ErrPageOutOfRange) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to change page")
		return
	}
	h.renderer.Render(w, r, http.StatusOK, view.BlockTemplate, h.blockData(p, l))
}

// Flip toggles the clicked card and re-renders the card grid.
func (h *Handlers) Flip(w http.ResponseWriter, r *http.Request) {
	p, l, ok := h.lookupListing(w, r)
	if !ok {
		return
	}
	gen, ok := formUint(w, r, "gen")
	if !ok {
		return
	}
	card, ok := formInt(w, r, "card")
	if !ok {
		return
	}
	res, cleared, err := p.Flip(l, gen, card)
	switch {
	case ignorable(err), err == nil && res.Coalesced:
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, cards.ErrUnknownCard):
		writeError(w, r, http.StatusBadRequest, "unknown card")
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "failed to flip card")
		return
	}

	parts := []templ.Component{h.renderer.Component(view.CardsTemplate, h.blockData(p, l))}
	for _, other := range cleared {
		data := h.blockData(p, other)
		data.OOB = true
		parts = append(parts, h.renderer.Component(view.CardsTemplate, data))
	}
	h.renderer.RenderComponents(w, r, http.StatusOK, parts...)
}

// Chip opens the page's preview overlay for the clicked chip.
func (h *Handlers) Chip(w http.ResponseWriter, r *http.Request) {
	p, l, ok := h.lookupListing(w, r)
	if !ok {
		return
	}
	gen, ok := formUint(w, r, "gen")
	if !ok {
		return
	}
	card, ok := formInt(w, r, "card")
	if !ok {
		return
	}
	index, ok := formInt(w, r, "chip")
	if !ok {
		return
	}
	chip, err := l.Chip(gen, card, index)
	switch {
	case ignorable(err):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, cards.ErrUnknownCard), errors.Is(err, cards.ErrUnknownChip):
		writeError(w, r, http.StatusBadRequest, "unknown chip")
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "failed to open preview")
		return
	}

	snap := p.Overlay().Open(chip.Label, chip.Locator)
	h.renderPreview(w, r, p, snap)
}

// Preview renders the overlay's current state.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	h.renderPreview(w, r, p, p.Overlay().Snapshot())
}

// PreviewClose hides the overlay. Closing a hidden overlay is a no-op.
func (h *Handlers) PreviewClose(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}
	reason := preview.ParseCloseReason(r.PostFormValue("reason"))
	snap, changed := p.Overlay().Close(reason)
	if !changed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.renderPreview(w, r, p, snap)
}

func (h *Handlers) renderPreview(w http.ResponseWriter, r *http.Request, p *page.Page, snap preview.Snapshot) {
	h.renderer.Render(w, r, http.StatusOK, view.PreviewTemplate, view.PreviewData{
		Snapshot: snap,
		CloseURL: closeURL(p.ID),
		OOB:      true,
	})
}

func (h *Handlers) blockData(p *page.Page, l *listing.Listing) view.BlockData {
	v := l.View()
	return view.BlockData{
		ID:           l.ID(),
		Listing:      &v,
		PreviewURL:   previewURL(p.ID),
		PollInterval: h.poll.String(),
	}
}

func (h *Handlers) lookupPage(w http.ResponseWriter, r *http.Request) (*page.Page, bool) {
	sess, ok := custommw.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusNotFound, "page not found")
		return nil, false
	}
	p, err := h.pages.Get(chi.URLParam(r, "pageID"), sess.ID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "page not found")
		return nil, false
	}
	return p, true
}

func (h *Handlers) lookupListing(w http.ResponseWriter, r *http.Request) (*page.Page, *listing.Listing, bool) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return nil, nil, false
	}
	l, ok := p.Listing(chi.URLParam(r, "blockID"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "block not found")
		return nil, nil, false
	}
	return p, l, true
}

// ignorable reports errors raised by events from a render that is no longer shown.
func ignorable(err error) bool {
	return errors.Is(err, listing.ErrStale) || errors.Is(err, listing.ErrNotReady)
}

func formUint(w http.ResponseWriter, r *http.Request, key string) (uint64, bool) {
	v, err := strconv.ParseUint(r.PostFormValue(key), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return v, true
}

func formInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	v, err := strconv.Atoi(r.PostFormValue(key))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return v, true
}
