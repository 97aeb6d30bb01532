package cards

import (
	"errors"
	"sync"
	"time"
)

// DefaultDebounce is the window in which repeated clicks on one card count once.
const DefaultDebounce = 100 * time.Millisecond

var (
	ErrUnknownCard = errors.New("cards: unknown card")
	ErrUnknownChip = errors.New("cards: unknown chip")
)

// FlipResult reports what a card click did.
type FlipResult struct {
	// Flipped is the index of the flipped card, or -1 when none is.
	Flipped int
	// Coalesced is true when the click fell inside the debounce window.
	Coalesced bool
}

// Deck holds the flip state of one rendered card set. At most one card is
// flipped at any time.
type Deck struct {
	mu       sync.Mutex
	cards    []Card
	flipped  int
	lastSeen []time.Time
	window   time.Duration
	now      func() time.Time
}

// DeckOption customises a Deck.
type DeckOption func(*Deck)

// WithDebounce sets the click coalescing window. Zero disables it.
func WithDebounce(d time.Duration) DeckOption {
	return func(dk *Deck) {
		if d >= 0 {
			dk.window = d
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) DeckOption {
	return func(dk *Deck) {
		if now != nil {
			dk.now = now
		}
	}
}

// NewDeck wraps cards with no card flipped.
func NewDeck(cards []Card, opts ...DeckOption) *Deck {
	d := &Deck{
		cards:    cards,
		flipped:  -1,
		lastSeen: make([]time.Time, len(cards)),
		window:   DefaultDebounce,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Len returns the number of cards.
func (d *Deck) Len() int {
	return len(d.cards)
}

// Flip handles a click on the card body: it unflips any other card and
// toggles this one. Clicks within the debounce window of the previous click
// on the same card are coalesced.
func (d *Deck) Flip(index int) (FlipResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if index < 0 || index >= len(d.cards) {
		return FlipResult{Flipped: d.flipped}, ErrUnknownCard
	}

	now := d.now()
	last := d.lastSeen[index]
	d.lastSeen[index] = now
	if d.window > 0 && !last.IsZero() && now.Sub(last) < d.window {
		return FlipResult{Flipped: d.flipped, Coalesced: true}, nil
	}

	if d.flipped == index {
		d.flipped = -1
	} else {
		d.flipped = index
	}
	return FlipResult{Flipped: d.flipped}, nil
}

// Unflip turns the flipped card face up again. It reports whether a card was
// flipped.
func (d *Deck) Unflip() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.flipped < 0 {
		return false
	}
	d.flipped = -1
	return true
}

// Chip resolves a chip click. It never changes flip state.
func (d *Deck) Chip(card, chip int) (Chip, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if card < 0 || card >= len(d.cards) {
		return Chip{}, ErrUnknownCard
	}
	c, ok := d.cards[card].Chip(chip)
	if !ok {
		return Chip{}, ErrUnknownChip
	}
	return c, nil
}

// Flipped returns the index of the flipped card, or -1.
func (d *Deck) Flipped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flipped
}

// Cards returns a copy of the cards with their current flip state.
func (d *Deck) Cards() []Card {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	for i := range out {
		out[i].Flipped = i == d.flipped
	}
	return out
}
