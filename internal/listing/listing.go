package listing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"finitefield.org/templates-listing/internal/cards"
	"finitefield.org/templates-listing/internal/catalog"
	"finitefield.org/templates-listing/internal/filters"
	"finitefield.org/templates-listing/internal/pager"
	"finitefield.org/templates-listing/internal/sheet"
)

const metricNamespace = "finitefield.org/templates-listing/listing"

const (
	// FailureMessage is shown when the data source could not be loaded.
	FailureMessage = "Failed to load templates."
	// EmptyMessage is shown when no template matches the active filters.
	EmptyMessage = "No templates found matching your criteria."
)

var (
	// ErrStale is returned for events raised from a render that has since been replaced.
	ErrStale = errors.New("listing: stale render")
	// ErrNotReady is returned for events received outside the Ready state.
	ErrNotReady = errors.New("listing: not ready")
	// ErrPageOutOfRange is returned when a page change targets a page that does not exist.
	ErrPageOutOfRange = errors.New("listing: page out of range")
)

// State is the lifecycle state of a listing block.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Loader fetches the raw rows behind a data-source reference.
type Loader interface {
	Load(ctx context.Context, source string) ([]catalog.RawRecord, error)
}

// Listing drives one templates block: fetch, normalize, then rebuild the
// visible page whenever the filters or the page change. It is the only writer
// of its filter and page state.
type Listing struct {
	id       string
	source   string
	loader   Loader
	logger   *zap.Logger
	size     int
	debounce time.Duration
	now      func() time.Time
	image    cards.ImageFunc
	base     string
	loads    metric.Int64Counter
	flips    metric.Int64Counter

	mu        sync.Mutex
	state     State
	err       error
	started   bool
	done      chan struct{}
	templates []catalog.Template
	active    mapset.Set[catalog.Category]
	page      int
	gen       uint64
	visible   int
	hasMore   bool
	deck      *cards.Deck
}

// Option customises a Listing.
type Option func(*Listing)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Listing) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPageSize sets the number of cards per page.
func WithPageSize(size int) Option {
	return func(l *Listing) {
		if size > 0 {
			l.size = size
		}
	}
}

// WithDebounce sets the flip coalescing window for every rebuilt deck.
func WithDebounce(d time.Duration) Option {
	return func(l *Listing) {
		if d >= 0 {
			l.debounce = d
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(l *Listing) {
		if now != nil {
			l.now = now
		}
	}
}

// WithImage overrides how card images are rendered.
func WithImage(fn cards.ImageFunc) Option {
	return func(l *Listing) {
		if fn != nil {
			l.image = fn
		}
	}
}

// WithBasePath sets the URL prefix that block actions are posted to.
func WithBasePath(base string) Option {
	return func(l *Listing) {
		l.base = strings.TrimRight(base, "/")
	}
}

// WithMeter registers the load and flip counters on m instead of the global provider.
func WithMeter(m metric.Meter) Option {
	return func(l *Listing) {
		l.registerMetrics(m)
	}
}

// New constructs an idle listing for the data source reference source.
func New(id, source string, loader Loader, opts ...Option) *Listing {
	l := &Listing{
		id:       id,
		source:   strings.TrimSpace(source),
		loader:   loader,
		logger:   zap.NewNop(),
		size:     pager.DefaultSize,
		debounce: cards.DefaultDebounce,
		now:      time.Now,
		image:    cards.DefaultImage,
		done:     make(chan struct{}),
		active:   filters.Defaults(),
		page:     1,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.loads == nil {
		l.registerMetrics(otel.GetMeterProvider().Meter(metricNamespace))
	}
	l.logger = l.logger.With(zap.String("listing", id))
	return l
}

func (l *Listing) registerMetrics(m metric.Meter) {
	if m == nil {
		return
	}
	loads, err := m.Int64Counter("templates.listing.loads", metric.WithDescription("Listing loads by outcome"))
	if err == nil {
		l.loads = loads
	}
	flips, err := m.Int64Counter("templates.cards.flips", metric.WithDescription("Accepted card flips"))
	if err == nil {
		l.flips = flips
	}
}

// ID returns the block identifier.
func (l *Listing) ID() string {
	return l.id
}

// Source returns the data source reference.
func (l *Listing) Source() string {
	return l.source
}

// Start moves the listing from Idle to Loading and fetches in the background.
// Without a data source the listing stays Idle. Only the first call has an
// effect. The fetch outlives ctx and is never cancelled.
func (l *Listing) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	if l.source == "" || l.loader == nil {
		l.err = sheet.ErrMissingDataSource
		l.mu.Unlock()
		close(l.done)
		l.logger.Debug("listing: no data source, staying idle")
		return
	}
	l.state = Loading
	l.mu.Unlock()

	go l.fetch(context.WithoutCancel(ctx))
}

func (l *Listing) fetch(ctx context.Context) {
	defer close(l.done)

	rows, err := l.loader.Load(ctx, l.source)
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case errors.Is(err, sheet.ErrMissingDataSource):
		l.state = Idle
		l.err = err
		l.logger.Debug("listing: no data source, staying idle")
	case err != nil:
		l.state = Failed
		l.err = err
		l.logger.Warn("listing: load failed", zap.String("source", l.source), zap.Error(err))
	default:
		l.templates = catalog.Normalize(rows)
		l.state = Ready
		l.rebuild()
		l.logger.Info("listing: ready", zap.Int("templates", len(l.templates)))
	}
	if l.loads != nil {
		l.loads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", l.state.String())))
	}
}

// Done is closed once the listing has left the Loading state.
func (l *Listing) Done() <-chan struct{} {
	return l.done
}

// Await blocks until the listing settles or ctx ends.
func (l *Listing) Await(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (l *Listing) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the error that left the listing Failed or Idle, if any.
func (l *Listing) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Generation returns the identifier of the current render.
func (l *Listing) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// SetFilters replaces the active categories and returns to page 1.
func (l *Listing) SetFilters(active mapset.Set[catalog.Category]) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Ready {
		return ErrNotReady
	}
	next := catalog.NewCategorySet()
	if active != nil {
		next = active.Clone()
	}
	l.active = next
	l.page = 1
	l.rebuild()
	return nil
}

// GoToPage moves to page, keeping the active filters. gen must name the
// current render.
func (l *Listing) GoToPage(gen uint64, page int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Ready {
		return ErrNotReady
	}
	if gen != l.gen {
		return ErrStale
	}
	if page < 1 || page > max(1, pager.TotalPages(l.visible, l.size)) {
		return ErrPageOutOfRange
	}
	l.page = page
	l.rebuild()
	return nil
}

// Flip handles a click on a card of render gen.
func (l *Listing) Flip(gen uint64, card int) (cards.FlipResult, error) {
	deck, err := l.currentDeck(gen)
	if err != nil {
		return cards.FlipResult{Flipped: -1}, err
	}
	res, err := deck.Flip(card)
	if err == nil && !res.Coalesced && l.flips != nil {
		l.flips.Add(context.Background(), 1)
	}
	return res, err
}

// Unflip clears the flipped card of the current render, if any. It reports
// whether anything changed.
func (l *Listing) Unflip() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Ready || l.deck == nil {
		return false
	}
	return l.deck.Unflip()
}

// Chip resolves a chip click on a card of render gen.
func (l *Listing) Chip(gen uint64, card, chip int) (cards.Chip, error) {
	deck, err := l.currentDeck(gen)
	if err != nil {
		return cards.Chip{}, err
	}
	return deck.Chip(card, chip)
}

func (l *Listing) currentDeck(gen uint64) (*cards.Deck, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Ready || l.deck == nil {
		return nil, ErrNotReady
	}
	if gen != l.gen {
		return nil, ErrStale
	}
	return l.deck, nil
}

// rebuild recomputes the visible set from the model and replaces the deck.
// Callers hold l.mu.
func (l *Listing) rebuild() {
	visible := make([]catalog.Template, 0, len(l.templates))
	for _, t := range l.templates {
		if t.Intersects(l.active) {
			visible = append(visible, t)
		}
	}

	start := min((l.page-1)*l.size, len(visible))
	end := min(start+l.size, len(visible))
	built := make([]cards.Card, 0, end-start)
	for i, t := range visible[start:end] {
		built = append(built, cards.Build(i, t, l.image))
	}

	l.visible = len(visible)
	l.hasMore = end < len(visible)
	l.deck = cards.NewDeck(built, cards.WithDebounce(l.debounce), cards.WithClock(l.now))
	l.gen++
	l.logger.Debug("listing: rebuilt",
		zap.Uint64("generation", l.gen),
		zap.Int("page", l.page),
		zap.Int("visible", l.visible),
	)
}
