package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
)

type csrfContextKey string

const csrfTokenContextKey csrfContextKey = "csrf.token"

const csrfTokenPurpose = "templates.csrf:"

// CSRFConfig controls how anti-forgery tokens are checked.
type CSRFConfig struct {
	HeaderName string
	// Sessions derives tokens from the visitor session. Required.
	Sessions *Sessions
}

// CSRF binds an anti-forgery token to the visitor session. Every request gets
// the token for its session on the context; unsafe methods must echo it in the
// header. It must run after Sessions.Middleware.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok || cfg.Sessions == nil {
				http.Error(w, "csrf token error", http.StatusInternalServerError)
				return
			}

			if isUnsafeMethod(r.Method) && !cfg.Sessions.VerifyCSRFToken(sess, r.Header.Get(headerName)) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), csrfTokenContextKey, cfg.Sessions.CSRFToken(sess))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFTokenFromContext returns the token issued for the current request.
func CSRFTokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(csrfTokenContextKey).(string); ok {
		return token
	}
	return ""
}

// CSRFToken derives the anti-forgery token for sess.
func (s *Sessions) CSRFToken(sess *Session) string {
	return base64.RawURLEncoding.EncodeToString(s.csrfMAC(sess.ID))
}

// VerifyCSRFToken reports whether token was issued for sess.
func (s *Sessions) VerifyCSRFToken(sess *Session, token string) bool {
	if sess == nil || sess.ID == "" || token == "" {
		return false
	}
	got, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.csrfMAC(sess.ID))
}

func (s *Sessions) csrfMAC(sessionID string) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(csrfTokenPurpose + sessionID))
	return mac.Sum(nil)
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}
