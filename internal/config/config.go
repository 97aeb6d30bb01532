package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile            = ".env"
	defaultAddr               = ":8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultContentDir         = "content"
	defaultPageSize           = 8
	defaultFlipDebounce       = 100 * time.Millisecond
	defaultInitialWait        = 2 * time.Second
	defaultPageTTL            = 30 * time.Minute
	defaultCleanupInterval    = time.Minute
	defaultMaxPages           = 10000
	defaultMaxPagesPerSession = 32
	defaultPollInterval       = time.Second
	defaultEnvironment        = "local"
	defaultMediaMaxBytes      = 8 << 20
	defaultMediaCacheEntries  = 128
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Content     ContentConfig
	Listing     ListingConfig
	Sheet       SheetConfig
	Session     SessionConfig
	Media       MediaConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ContentConfig locates authored pages.
type ContentConfig struct {
	Dir string
}

// ListingConfig tunes listing blocks and the pages holding them.
type ListingConfig struct {
	PageSize        int
	FlipDebounce    time.Duration
	InitialWait     time.Duration
	PollInterval    time.Duration
	PageTTL         time.Duration
	CleanupInterval time.Duration
	// MaxPages and MaxPagesPerSession cap live pages; the oldest is evicted.
	MaxPages           int
	MaxPagesPerSession int
}

// SheetConfig controls data source fetches. A zero Timeout leaves fetches unbounded.
type SheetConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig configures the signed session cookie.
type SessionConfig struct {
	SigningKey string
	Secure     bool
}

// MediaConfig bounds the image optimizer.
type MediaConfig struct {
	BaseURL      string
	AllowedHosts []string
	MaxBytes     int64
	CacheEntries int
}

// ValidationError is returned when configuration fields are invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.LookupEnv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, .env overrides and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	env := strings.ToLower(stringWithDefault(lookup, "TEMPLATES_ENV", defaultEnvironment))
	cfg := Config{
		Environment: env,
		Server: ServerConfig{
			Addr:         serverAddr(lookup),
			ReadTimeout:  durationWithDefault(lookup, "TEMPLATES_HTTP_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "TEMPLATES_HTTP_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "TEMPLATES_HTTP_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Content: ContentConfig{
			Dir: stringWithDefault(lookup, "TEMPLATES_CONTENT_DIR", defaultContentDir),
		},
		Listing: ListingConfig{
			PageSize:           intWithDefault(lookup, "TEMPLATES_PAGE_SIZE", defaultPageSize),
			FlipDebounce:       durationWithDefault(lookup, "TEMPLATES_FLIP_DEBOUNCE", defaultFlipDebounce),
			InitialWait:        durationWithDefault(lookup, "TEMPLATES_INITIAL_WAIT", defaultInitialWait),
			PollInterval:       durationWithDefault(lookup, "TEMPLATES_POLL_INTERVAL", defaultPollInterval),
			PageTTL:            durationWithDefault(lookup, "TEMPLATES_PAGE_TTL", defaultPageTTL),
			CleanupInterval:    durationWithDefault(lookup, "TEMPLATES_PAGE_CLEANUP_INTERVAL", defaultCleanupInterval),
			MaxPages:           intWithDefault(lookup, "TEMPLATES_PAGE_MAX", defaultMaxPages),
			MaxPagesPerSession: intWithDefault(lookup, "TEMPLATES_PAGE_MAX_PER_SESSION", defaultMaxPagesPerSession),
		},
		Sheet: SheetConfig{
			BaseURL: strings.TrimSpace(stringWithDefault(lookup, "TEMPLATES_SHEET_BASE_URL", "")),
			Timeout: durationWithDefault(lookup, "TEMPLATES_SHEET_TIMEOUT", 0),
		},
		Session: SessionConfig{
			SigningKey: stringWithDefault(lookup, "TEMPLATES_SESSION_SIGNING_KEY", ""),
			Secure:     env == "prod",
		},
		Media: MediaConfig{
			BaseURL:      strings.TrimSpace(stringWithDefault(lookup, "TEMPLATES_MEDIA_BASE_URL", "")),
			AllowedHosts: listWithDefault(lookup, "TEMPLATES_MEDIA_ALLOWED_HOSTS"),
			MaxBytes:     int64(intWithDefault(lookup, "TEMPLATES_MEDIA_MAX_BYTES", defaultMediaMaxBytes)),
			CacheEntries: intWithDefault(lookup, "TEMPLATES_MEDIA_CACHE_ENTRIES", defaultMediaCacheEntries),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// serverAddr prefers TEMPLATES_HTTP_ADDR, then Cloud Run's PORT.
func serverAddr(lookup func(string) (string, bool)) string {
	if addr := stringWithDefault(lookup, "TEMPLATES_HTTP_ADDR", ""); addr != "" {
		return addr
	}
	if port := stringWithDefault(lookup, "PORT", ""); port != "" {
		return ":" + port
	}
	return defaultAddr
}

func validateConfig(cfg Config) error {
	var invalid []string

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		invalid = append(invalid, "Server.Addr")
	}
	if strings.TrimSpace(cfg.Content.Dir) == "" {
		invalid = append(invalid, "Content.Dir")
	}
	if cfg.Listing.PageSize <= 0 {
		invalid = append(invalid, "Listing.PageSize")
	}
	if cfg.Listing.FlipDebounce < 0 {
		invalid = append(invalid, "Listing.FlipDebounce")
	}
	if cfg.Listing.InitialWait < 0 {
		invalid = append(invalid, "Listing.InitialWait")
	}
	if cfg.Listing.PollInterval <= 0 {
		invalid = append(invalid, "Listing.PollInterval")
	}
	if cfg.Listing.PageTTL <= 0 {
		invalid = append(invalid, "Listing.PageTTL")
	}
	if cfg.Listing.CleanupInterval <= 0 {
		invalid = append(invalid, "Listing.CleanupInterval")
	}
	if cfg.Listing.MaxPages <= 0 {
		invalid = append(invalid, "Listing.MaxPages")
	}
	if cfg.Listing.MaxPagesPerSession <= 0 {
		invalid = append(invalid, "Listing.MaxPagesPerSession")
	}
	if cfg.Sheet.Timeout < 0 {
		invalid = append(invalid, "Sheet.Timeout")
	}
	if cfg.Environment == "prod" && strings.TrimSpace(cfg.Session.SigningKey) == "" {
		invalid = append(invalid, "Session.SigningKey")
	}
	if cfg.Media.MaxBytes <= 0 {
		invalid = append(invalid, "Media.MaxBytes")
	}
	if cfg.Media.CacheEntries <= 0 {
		invalid = append(invalid, "Media.CacheEntries")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func listWithDefault(lookup func(string) (string, bool), key string) []string {
	var out []string
	for _, part := range strings.Split(stringWithDefault(lookup, key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
