package page

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finitefield.org/templates-listing/internal/content"
	"finitefield.org/templates-listing/internal/listing"
	"finitefield.org/templates-listing/internal/preview"
)

// DefaultTTL is how long an idle page is kept.
const DefaultTTL = 30 * time.Minute

// Default caps on live pages. Creating a page past a cap evicts the oldest one.
const (
	DefaultMaxPages           = 10000
	DefaultMaxPagesPerSession = 32
)

// ErrNotFound is returned for unknown, expired or foreign pages.
var ErrNotFound = errors.New("page: not found")

// ListingFactory builds the listing for a templates block.
type ListingFactory func(pageID, blockID string, block content.Block) *listing.Listing

// Store keeps live pages in memory.
type Store struct {
	mu          sync.Mutex
	pages       map[string]*Page
	seq         uint64
	maxPages    int
	maxPerSess  int
	ttl         time.Duration
	now         func() time.Time
	logger      *zap.Logger
	overlayOpts []preview.Option
}

// Option customises a Store.
type Option func(*Store)

// WithTTL sets the sliding expiry of idle pages.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxPages caps the number of live pages across all sessions.
func WithMaxPages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithMaxPagesPerSession caps the number of live pages one session may hold.
func WithMaxPagesPerSession(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPerSess = n
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOverlayOptions configures the overlays created for new pages.
func WithOverlayOptions(opts ...preview.Option) Option {
	return func(s *Store) {
		s.overlayOpts = append(s.overlayOpts, opts...)
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		pages:      make(map[string]*Page),
		maxPages:   DefaultMaxPages,
		maxPerSess: DefaultMaxPagesPerSession,
		ttl:        DefaultTTL,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a page for doc owned by sessionID. build is called for
// every templates block.
func (s *Store) Create(sessionID string, doc content.Page, build ListingFactory) *Page {
	p := &Page{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Slug:        doc.Slug,
		Content:     doc,
		overlayOpts: s.overlayOpts,
	}
	for i, b := range doc.Blocks {
		block := Block{ID: "block-" + strconv.Itoa(i), Content: b}
		if b.IsListing() && build != nil {
			block.Listing = build(p.ID, block.ID, b)
		}
		p.Blocks = append(p.Blocks, block)
	}

	s.mu.Lock()
	now := s.now()
	evicted := s.makeRoomLocked(sessionID, now)
	s.seq++
	p.seq = s.seq
	p.expiresAt = now.Add(s.ttl)
	s.pages[p.ID] = p
	s.mu.Unlock()

	for _, id := range evicted {
		s.logger.Debug("page: evicted", zap.String("page_id", id))
	}
	s.logger.Debug("page: created", zap.String("page_id", p.ID), zap.String("slug", p.Slug), zap.Int("blocks", len(p.Blocks)))
	return p
}

// makeRoomLocked drops expired pages, then the oldest pages of sessionID and
// finally the oldest pages overall until one more page fits both caps.
func (s *Store) makeRoomLocked(sessionID string, now time.Time) []string {
	var evicted []string
	owned := 0
	for id, p := range s.pages {
		if !now.Before(p.expiresAt) {
			delete(s.pages, id)
			continue
		}
		if p.SessionID == sessionID {
			owned++
		}
	}
	for ; owned >= s.maxPerSess; owned-- {
		evicted = append(evicted, s.evictOldestLocked(func(p *Page) bool { return p.SessionID == sessionID }))
	}
	for len(s.pages) >= s.maxPages {
		evicted = append(evicted, s.evictOldestLocked(func(*Page) bool { return true }))
	}
	return evicted
}

func (s *Store) evictOldestLocked(match func(*Page) bool) string {
	var oldest *Page
	for _, p := range s.pages {
		if match(p) && (oldest == nil || p.seq < oldest.seq) {
			oldest = p
		}
	}
	if oldest == nil {
		return ""
	}
	delete(s.pages, oldest.ID)
	return oldest.ID
}

// Get returns page id if it is live and owned by sessionID, extending its expiry.
func (s *Store) Get(id, sessionID string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	if !now.Before(p.expiresAt) {
		delete(s.pages, id)
		return nil, ErrNotFound
	}
	if p.SessionID != sessionID {
		return nil, ErrNotFound
	}
	p.expiresAt = now.Add(s.ttl)
	return p, nil
}

// Len returns the number of pages held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// CleanupExpired removes pages whose expiry has passed and returns how many were removed.
func (s *Store) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, p := range s.pages {
		if now.Before(p.expiresAt) {
			continue
		}
		delete(s.pages, id)
		removed++
	}
	return removed
}

// Run removes expired pages every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CleanupExpired(s.now()); n > 0 {
				s.logger.Debug("page: cleaned up expired pages", zap.Int("removed", n))
			}
		}
	}
}
