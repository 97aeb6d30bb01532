package testutil

import (
	"context"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"finitefield.org/templates-listing/internal/catalog"
	"finitefield.org/templates-listing/internal/content"
	"finitefield.org/templates-listing/internal/httpserver"
	"finitefield.org/templates-listing/internal/listing"
	"finitefield.org/templates-listing/internal/media"
)

// DefaultDataSource is the data-source link of the default index page.
const DefaultDataSource = "https://sheets.example.com/templates.json"

// DefaultIndex is the default authored index page: a text block followed by a
// templates block.
const DefaultIndex = `---
title: Templates
blocks:
  - type: text
    content: Pick a template.
  - type: templates
    content: "[Templates](` + DefaultDataSource + `)"
---
`

// StaticLoader returns fixed rows or a fixed error, optionally blocking until
// Release is called.
type StaticLoader struct {
	Rows []catalog.RawRecord
	Err  error

	mu      sync.Mutex
	calls   int
	gate    chan struct{}
	sources []string
}

// Block makes Load wait until Release.
func (s *StaticLoader) Block() *StaticLoader {
	s.mu.Lock()
	s.gate = make(chan struct{})
	s.mu.Unlock()
	return s
}

// Release unblocks pending and future loads.
func (s *StaticLoader) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// Calls returns how many loads were started.
func (s *StaticLoader) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Sources returns the data sources requested so far.
func (s *StaticLoader) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sources...)
}

// Load implements listing.Loader.
func (s *StaticLoader) Load(ctx context.Context, source string) ([]catalog.RawRecord, error) {
	s.mu.Lock()
	s.calls++
	s.sources = append(s.sources, source)
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return s.Rows, s.Err
}

// Rows builds n templates of category, titled "<prefix> N".
func Rows(n int, prefix string, category catalog.Category) []catalog.RawRecord {
	flag := map[catalog.Category]string{
		catalog.CategoryEmail:     "Email",
		catalog.CategoryDisplayAd: "DisplayAd",
		catalog.CategoryMetaAd:    "MetaAd",
	}[category]
	asset := map[catalog.Category]string{
		catalog.CategoryEmail:     "Email1Pod",
		catalog.CategoryDisplayAd: "DisplayAd300x250",
		catalog.CategoryMetaAd:    "MetaAd1x1",
	}[category]

	rows := make([]catalog.RawRecord, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, catalog.RawRecord{
			"Opportunity": prefix + " " + strconv.Itoa(i),
			"MainImage":   "https://cdn.example.com/" + string(category) + "-" + strconv.Itoa(i) + ".png",
			"GitHub":      "https://github.com/example/" + string(category) + "-" + strconv.Itoa(i),
			flag:          "true",
			asset:         "https://cdn.example.com/" + string(category) + "-" + strconv.Itoa(i) + "-asset.png",
		})
	}
	return rows
}

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithLoader overrides the data source loader.
func WithLoader(loader listing.Loader) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Sheet = loader
	}
}

// WithPages replaces the authored pages. Keys are slugs.
func WithPages(pages map[string]string) ServerOption {
	return func(cfg *httpserver.Config) {
		fsys := fstest.MapFS{}
		for slug, body := range pages {
			fsys[slug+".md"] = &fstest.MapFile{Data: []byte(body)}
		}
		cfg.Content = content.NewLoader(fsys)
	}
}

// WithInitialWait sets how long full page loads wait for listings.
func WithInitialWait(d time.Duration) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.InitialWait = d
	}
}

// WithListingOptions appends options applied to every listing.
func WithListingOptions(opts ...listing.Option) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.ListingOptions = append(cfg.ListingOptions, opts...)
	}
}

// WithMedia mounts an image optimizer.
func WithMedia(h *media.Optimizer) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Media = h
	}
}

// NewServer constructs an httptest server running the full HTTP stack with
// sensible defaults: the default index page, twenty email templates and no flip
// debounce.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	cfg := httpserver.Config{
		Address:           ":0",
		Content:           content.NewLoader(fstest.MapFS{"index.md": &fstest.MapFile{Data: []byte(DefaultIndex)}}),
		Sheet:             &StaticLoader{Rows: Rows(20, "Template", catalog.CategoryEmail)},
		InitialWait:       2 * time.Second,
		SessionSigningKey: "test-signing-key",
		CSRFHeaderName:    "X-CSRF-Token",
		ListingOptions:    []listing.Option{listing.WithDebounce(0)},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	srv := httpserver.New(cfg)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}
