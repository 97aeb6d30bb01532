package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

const (
	defaultMaxBytes     = 8 << 20
	defaultCacheEntries = 128
	maxWidth            = 4000
	jpegQuality         = 75
	cacheControl        = "public, max-age=86400"
)

var (
	ErrInvalidSource = errors.New("media: invalid source")
	ErrInvalidWidth  = errors.New("media: invalid width")
	ErrTooLarge      = errors.New("media: source exceeds size limit")
	ErrForeignHost   = fmt.Errorf("%w: host not allowed", ErrInvalidSource)
)

// Optimizer fetches remote images and serves resized renditions.
type Optimizer struct {
	client   *http.Client
	baseURL  *url.URL
	allowed  mapset.Set[string]
	maxBytes int64
	logger   *zap.Logger

	mu       sync.Mutex
	cache    map[string]Rendition
	order    []string
	capacity int
}

// Rendition is an encoded, resized image.
type Rendition struct {
	ContentType string
	Body        []byte
}

// OptimizerOption customises an Optimizer.
type OptimizerOption func(*Optimizer)

// WithHTTPClient overrides the client used to fetch sources.
func WithHTTPClient(c *http.Client) OptimizerOption {
	return func(o *Optimizer) {
		if c != nil {
			o.client = c
		}
	}
}

// WithBaseURL resolves path-only sources against base.
func WithBaseURL(base string) OptimizerOption {
	return func(o *Optimizer) {
		if u, err := url.Parse(strings.TrimSpace(base)); err == nil && u.Host != "" {
			o.baseURL = u
		}
	}
}

// WithAllowedHosts permits absolute sources on the given hosts. The base URL
// host is always permitted.
func WithAllowedHosts(hosts ...string) OptimizerOption {
	return func(o *Optimizer) {
		for _, h := range hosts {
			if h = normalizeHost(h); h != "" {
				o.allowed.Add(h)
			}
		}
	}
}

// WithMaxBytes caps the size of fetched sources.
func WithMaxBytes(n int64) OptimizerOption {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxBytes = n
		}
	}
}

// WithCacheEntries bounds the number of cached renditions.
func WithCacheEntries(n int) OptimizerOption {
	return func(o *Optimizer) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithLogger sets the optimizer logger.
func WithLogger(logger *zap.Logger) OptimizerOption {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOptimizer constructs an Optimizer.
func NewOptimizer(opts ...OptimizerOption) *Optimizer {
	o := &Optimizer{
		client:   &http.Client{Timeout: 10 * time.Second},
		maxBytes: defaultMaxBytes,
		capacity: defaultCacheEntries,
		logger:   zap.NewNop(),
		allowed:  mapset.NewThreadUnsafeSet[string](),
		cache:    map[string]Rendition{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.baseURL != nil {
		o.allowed.Add(normalizeHost(o.baseURL.Host))
	}
	if o.client.CheckRedirect == nil {
		client := *o.client
		client.CheckRedirect = o.checkRedirect
		o.client = &client
	}
	return o
}

// ServeHTTP handles GET /media/optimized?src=...&width=...
func (o *Optimizer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, err := parseWidth(q.Get("width"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	src, err := o.resolve(q.Get("src"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := o.Render(r.Context(), src, width)
	if err != nil {
		o.logger.Warn("media: optimize failed", zap.String("src", src), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Cache-Control", cacheControl)
	_, _ = w.Write(out.Body)
}

// Render returns the resized rendition of src, using the cache when possible.
func (o *Optimizer) Render(ctx context.Context, src string, width int) (Rendition, error) {
	key := src + "|" + strconv.Itoa(width)
	if cached, ok := o.cached(key); ok {
		return cached, nil
	}

	raw, err := o.fetch(ctx, src)
	if err != nil {
		return Rendition{}, err
	}
	out, err := Resize(raw, width)
	if err != nil {
		return Rendition{}, err
	}
	o.store(key, out)
	return out, nil
}

// Resize decodes data and scales it down to width (0 keeps the original size).
// PNG sources stay PNG; everything else is re-encoded as JPEG.
func Resize(data []byte, width int) (Rendition, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Rendition{}, fmt.Errorf("media: decode: %w", err)
	}
	if width > 0 && img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, img); err != nil {
			return Rendition{}, fmt.Errorf("media: encode png: %w", err)
		}
		return Rendition{ContentType: "image/png", Body: buf.Bytes()}, nil
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Rendition{}, fmt.Errorf("media: encode jpeg: %w", err)
	}
	return Rendition{ContentType: "image/jpeg", Body: buf.Bytes()}, nil
}

func (o *Optimizer) resolve(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidSource
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidSource
	}
	if !u.IsAbs() {
		if o.baseURL == nil || !strings.HasPrefix(raw, "/") {
			return "", ErrInvalidSource
		}
		u = o.baseURL.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidSource
	}
	if !o.allowedHost(u) {
		return "", ErrForeignHost
	}
	return u.String(), nil
}

// allowedHost matches either host:port or the bare hostname against the
// allowlist.
func (o *Optimizer) allowedHost(u *url.URL) bool {
	if u.Host == "" {
		return false
	}
	return o.allowed.Contains(normalizeHost(u.Host)) || o.allowed.Contains(normalizeHost(u.Hostname()))
}

// checkRedirect keeps redirects on permitted hosts.
func (o *Optimizer) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return errors.New("media: too many redirects")
	}
	if !o.allowedHost(req.URL) {
		return ErrForeignHost
	}
	return nil
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

func (o *Optimizer) fetch(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("media: source status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, o.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > o.maxBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

func (o *Optimizer) cached(key string) (Rendition, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.cache[key]
	return r, ok
}

// store evicts the oldest rendition once capacity is reached.
func (o *Optimizer) store(key string, r Rendition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.cache[key]; ok {
		return
	}
	if len(o.order) >= o.capacity {
		oldest := o.order[0]
		o.order = o.order[1:]
		delete(o.cache, oldest)
	}
	o.cache[key] = r
	o.order = append(o.order, key)
}

func parseWidth(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	w, err := strconv.Atoi(raw)
	if err != nil || w <= 0 || w > maxWidth {
		return 0, ErrInvalidWidth
	}
	return w, nil
}
