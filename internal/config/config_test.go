package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.Server.Addr)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Content.Dir != "content" {
		t.Errorf("unexpected content dir: %s", cfg.Content.Dir)
	}
	if cfg.Listing.PageSize != 8 {
		t.Errorf("unexpected page size: %d", cfg.Listing.PageSize)
	}
	if cfg.Listing.FlipDebounce != 100*time.Millisecond {
		t.Errorf("unexpected flip debounce: %s", cfg.Listing.FlipDebounce)
	}
	if cfg.Listing.InitialWait != 2*time.Second {
		t.Errorf("unexpected initial wait: %s", cfg.Listing.InitialWait)
	}
	if cfg.Listing.PageTTL != 30*time.Minute {
		t.Errorf("unexpected page ttl: %s", cfg.Listing.PageTTL)
	}
	if cfg.Listing.MaxPages != 10000 || cfg.Listing.MaxPagesPerSession != 32 {
		t.Errorf("unexpected page caps: %d/%d", cfg.Listing.MaxPages, cfg.Listing.MaxPagesPerSession)
	}
	if cfg.Sheet.Timeout != 0 {
		t.Errorf("expected unbounded sheet fetches, got %s", cfg.Sheet.Timeout)
	}
	if cfg.Session.Secure {
		t.Errorf("expected insecure cookies outside prod")
	}
	if cfg.Media.MaxBytes != 8<<20 {
		t.Errorf("unexpected media max bytes: %d", cfg.Media.MaxBytes)
	}
	if cfg.Media.CacheEntries != 128 {
		t.Errorf("unexpected media cache entries: %d", cfg.Media.CacheEntries)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"TEMPLATES_ENV":                  "PROD",
		"TEMPLATES_HTTP_ADDR":            "127.0.0.1:9090",
		"TEMPLATES_CONTENT_DIR":          "/srv/content",
		"TEMPLATES_PAGE_SIZE":            "12",
		"TEMPLATES_FLIP_DEBOUNCE":        "250ms",
		"TEMPLATES_SHEET_BASE_URL":       " https://content.example.com ",
		"TEMPLATES_SHEET_TIMEOUT":        "10s",
		"TEMPLATES_SESSION_SIGNING_KEY":  "s3cret",
		"TEMPLATES_MEDIA_CACHE_ENTRIES":  "16",
		"TEMPLATES_MEDIA_ALLOWED_HOSTS":  " cdn.example.com, ,images.example.com:8443 ",
		"TEMPLATES_PAGE_MAX_PER_SESSION": "4",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Content.Dir != "/srv/content" {
		t.Errorf("unexpected content dir: %s", cfg.Content.Dir)
	}
	if cfg.Listing.PageSize != 12 {
		t.Errorf("unexpected page size: %d", cfg.Listing.PageSize)
	}
	if cfg.Listing.FlipDebounce != 250*time.Millisecond {
		t.Errorf("unexpected debounce: %s", cfg.Listing.FlipDebounce)
	}
	if cfg.Sheet.BaseURL != "https://content.example.com" {
		t.Errorf("unexpected sheet base url: %q", cfg.Sheet.BaseURL)
	}
	if cfg.Sheet.Timeout != 10*time.Second {
		t.Errorf("unexpected sheet timeout: %s", cfg.Sheet.Timeout)
	}
	if !cfg.Session.Secure || cfg.Session.SigningKey != "s3cret" {
		t.Errorf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Media.CacheEntries != 16 {
		t.Errorf("unexpected cache entries: %d", cfg.Media.CacheEntries)
	}
	if cfg.Listing.MaxPagesPerSession != 4 {
		t.Errorf("unexpected per-session page cap: %d", cfg.Listing.MaxPagesPerSession)
	}
	if got := strings.Join(cfg.Media.AllowedHosts, "|"); got != "cdn.example.com|images.example.com:8443" {
		t.Errorf("unexpected allowed hosts: %q", got)
	}
}

func TestLoadFallsBackToPort(t *testing.T) {
	cfg, err := Load(WithEnvMap(map[string]string{"PORT": "3000"}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Addr != ":3000" {
		t.Errorf("expected :3000, got %s", cfg.Server.Addr)
	}
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"TEMPLATES_ENV":       "prod",
		"TEMPLATES_PAGE_SIZE": "0",
		"TEMPLATES_PAGE_TTL":  "-1m",
	}

	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	want := map[string]bool{"Listing.PageSize": true, "Listing.PageTTL": true, "Session.SigningKey": true}
	fields := vErr.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields: %v", fields)
	}
	for _, f := range fields {
		if !want[f] {
			t.Errorf("unexpected invalid field %s", f)
		}
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nTEMPLATES_PAGE_SIZE=4\nexport TEMPLATES_CONTENT_DIR=\"pages\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"TEMPLATES_PAGE_SIZE": "6"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Listing.PageSize != 6 {
		t.Errorf("env map should win over .env, got %d", cfg.Listing.PageSize)
	}
	if cfg.Content.Dir != "pages" {
		t.Errorf("unexpected content dir from .env: %s", cfg.Content.Dir)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
}
