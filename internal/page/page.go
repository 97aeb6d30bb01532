package page

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finitefield.org/templates-listing/internal/cards"
	"finitefield.org/templates-listing/internal/content"
	"finitefield.org/templates-listing/internal/listing"
	"finitefield.org/templates-listing/internal/preview"
)

// Block is one rendered block of a page. Listing is nil for non-listing blocks.
type Block struct {
	ID      string
	Content content.Block
	Listing *listing.Listing
}

// Page is one full page load. It owns the preview overlay shared by all of
// its listing blocks.
type Page struct {
	ID        string
	SessionID string
	Slug      string
	Content   content.Page
	Blocks    []Block

	overlayOnce sync.Once
	overlay     *preview.Overlay
	overlayOpts []preview.Option

	// flipMu serialises flips so at most one card on the page is flipped.
	flipMu sync.Mutex

	seq       uint64
	expiresAt time.Time
}

// Overlay returns the page's preview overlay, creating it on first use. The
// same instance is returned for the lifetime of the page.
func (p *Page) Overlay() *preview.Overlay {
	p.overlayOnce.Do(func() {
		p.overlay = preview.New(p.overlayOpts...)
	})
	return p.overlay
}

// Flip flips card of render gen in l. When a card ends up flipped, every other
// listing on the page drops its flipped card; those listings are returned so
// their grids can be redrawn.
func (p *Page) Flip(l *listing.Listing, gen uint64, card int) (cards.FlipResult, []*listing.Listing, error) {
	p.flipMu.Lock()
	defer p.flipMu.Unlock()

	res, err := l.Flip(gen, card)
	if err != nil || res.Coalesced || res.Flipped < 0 {
		return res, nil, err
	}
	var cleared []*listing.Listing
	for _, other := range p.Listings() {
		if other != l && other.Unflip() {
			cleared = append(cleared, other)
		}
	}
	return res, cleared, nil
}

// Listing returns the listing of block id.
func (p *Page) Listing(id string) (*listing.Listing, bool) {
	for _, b := range p.Blocks {
		if b.ID == id && b.Listing != nil {
			return b.Listing, true
		}
	}
	return nil, false
}

// Listings returns every listing on the page in block order.
func (p *Page) Listings() []*listing.Listing {
	var out []*listing.Listing
	for _, b := range p.Blocks {
		if b.Listing != nil {
			out = append(out, b.Listing)
		}
	}
	return out
}

// StartAll starts every listing and waits up to wait for them to settle.
// Listings still loading when wait elapses keep loading in the background.
func (p *Page) StartAll(ctx context.Context, wait time.Duration) error {
	listings := p.Listings()
	for _, l := range listings {
		l.Start(ctx)
	}
	if wait <= 0 || len(listings) == 0 {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	g, gctx := errgroup.WithContext(waitCtx)
	for _, l := range listings {
		l := l
		g.Go(func() error {
			err := l.Await(gctx)
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
