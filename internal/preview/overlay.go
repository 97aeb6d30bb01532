package preview

import (
	"context"
	"regexp"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "finitefield.org/templates-listing/preview"

var imagePattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)

// CloseReason identifies which control dismissed the overlay.
type CloseReason string

const (
	CloseButton   CloseReason = "button"
	CloseBackdrop CloseReason = "backdrop"
	CloseEscape   CloseReason = "escape"
)

// ParseCloseReason maps a form value onto a CloseReason, defaulting to the close button.
func ParseCloseReason(value string) CloseReason {
	switch CloseReason(value) {
	case CloseBackdrop:
		return CloseBackdrop
	case CloseEscape:
		return CloseEscape
	default:
		return CloseButton
	}
}

// Snapshot is the renderable state of the overlay.
type Snapshot struct {
	Visible      bool
	Title        string
	Locator      string
	IsImage      bool
	ScrollLocked bool
	// Focus asks the view to move focus into the content panel.
	Focus bool
}

// Overlay is the asset preview modal shared by every listing on a page.
// The zero value is not usable; construct with New.
type Overlay struct {
	mu      sync.Mutex
	visible bool
	title   string
	locator string

	logger *zap.Logger
	opens  metric.Int64Counter
	closes metric.Int64Counter
}

// Option customises an Overlay.
type Option func(*Overlay)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Overlay) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter registers the open/close counters on m instead of the global provider.
func WithMeter(m metric.Meter) Option {
	return func(o *Overlay) {
		o.registerMetrics(m)
	}
}

// New constructs a hidden overlay.
func New(opts ...Option) *Overlay {
	o := &Overlay{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.opens == nil {
		o.registerMetrics(otel.GetMeterProvider().Meter(metricNamespace))
	}
	return o
}

func (o *Overlay) registerMetrics(m metric.Meter) {
	if m == nil {
		return
	}
	opens, err := m.Int64Counter("templates.preview.opens", metric.WithDescription("Asset previews opened"))
	if err == nil {
		o.opens = opens
	}
	closes, err := m.Int64Counter("templates.preview.closes", metric.WithDescription("Asset previews closed by reason"))
	if err == nil {
		o.closes = closes
	}
}

// IsImage reports whether the locator points at a previewable image.
func IsImage(locator string) bool {
	return imagePattern.MatchString(locator)
}

// Open replaces the overlay content and shows it. Repeated opens replace the content.
func (o *Overlay) Open(title, locator string) Snapshot {
	o.mu.Lock()
	o.visible = true
	o.title = title
	o.locator = locator
	snap := o.snapshotLocked()
	o.mu.Unlock()

	snap.Focus = true
	if o.opens != nil {
		o.opens.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("image", snap.IsImage)))
	}
	o.logger.Debug("preview opened", zap.String("title", title), zap.Bool("image", snap.IsImage))
	return snap
}

// Close hides the overlay and resets its content. It reports false, and changes
// nothing, when the overlay was not visible.
func (o *Overlay) Close(reason CloseReason) (Snapshot, bool) {
	o.mu.Lock()
	if !o.visible {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		return snap, false
	}
	o.visible = false
	o.title = ""
	o.locator = ""
	snap := o.snapshotLocked()
	o.mu.Unlock()

	if o.closes != nil {
		o.closes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	}
	o.logger.Debug("preview closed", zap.String("reason", string(reason)))
	return snap, true
}

// Snapshot returns the current state without changing it.
func (o *Overlay) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Visible reports whether the overlay is shown.
func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// ScrollLocked reports whether background scrolling is suspended.
func (o *Overlay) ScrollLocked() bool {
	return o.Visible()
}

func (o *Overlay) snapshotLocked() Snapshot {
	return Snapshot{
		Visible:      o.visible,
		Title:        o.title,
		Locator:      o.locator,
		IsImage:      o.visible && IsImage(o.locator),
		ScrollLocked: o.visible,
	}
}
