package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/templates-listing/internal/observability"
)

type contextKey string

const htmxContextKey contextKey = "htmx.info"

// HTMXInfo captures request metadata from HX-* headers.
type HTMXInfo struct {
	IsHTMX      bool
	CurrentURL  string
	Target      string
	TriggerID   string
	TriggerName string
}

// HTMX returns middleware that inspects HX-* headers and annotates the context.
// For htmx requests the context logger also gains the target and trigger, so
// it must run after the logger is injected and before request logging.
func HTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := HTMXInfo{
				IsHTMX:      strings.EqualFold(r.Header.Get("HX-Request"), "true"),
				CurrentURL:  r.Header.Get("HX-Current-URL"),
				Target:      r.Header.Get("HX-Target"),
				TriggerID:   r.Header.Get("HX-Trigger"),
				TriggerName: r.Header.Get("HX-Trigger-Name"),
			}
			ctx := context.WithValue(r.Context(), htmxContextKey, info)
			if info.IsHTMX {
				if fields := info.logFields(); len(fields) > 0 {
					ctx = observability.WithLogger(ctx, observability.FromContext(ctx).With(fields...))
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (i HTMXInfo) logFields() []zap.Field {
	var fields []zap.Field
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}
	add("hx_current_url", i.CurrentURL)
	add("hx_target", i.Target)
	add("hx_trigger", i.TriggerID)
	add("hx_trigger_name", i.TriggerName)
	return fields
}

// HTMXInfoFromContext retrieves HTMX metadata; returns zero value if absent.
func HTMXInfoFromContext(ctx context.Context) HTMXInfo {
	val, ok := ctx.Value(htmxContextKey).(HTMXInfo)
	if !ok {
		return HTMXInfo{}
	}
	return val
}

// IsHTMXRequest returns true when the current request was initiated by htmx.
func IsHTMXRequest(ctx context.Context) bool {
	return HTMXInfoFromContext(ctx).IsHTMX
}

// RequireHTMX ensures the request originated from htmx; otherwise returns 404 to
// avoid exposing fragment routes to direct navigation.
func RequireHTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsHTMXRequest(r.Context()) {
				http.NotFound(w, r)
				return
			}
			w.Header().Add("Vary", "HX-Request")
			next.ServeHTTP(w, r)
		})
	}
}

// NoStore disables caching of dynamic responses.
func NoStore() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store, max-age=0")
			w.Header().Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}
