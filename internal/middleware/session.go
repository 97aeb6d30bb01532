package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionCookieName names the signed visitor cookie.
const SessionCookieName = "TEMPLATES_SESSION"

const sessionMaxAge = 30 * 24 * time.Hour

type sessionContextKey string

const requestSessionKey sessionContextKey = "templates.session"

// Session identifies a visitor. Pages are owned by the session that created them.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sessions issues and verifies HMAC-signed session cookies.
type Sessions struct {
	key    []byte
	secure bool
	now    func() time.Time
}

// NewSessions builds a cookie codec. An empty signingKey generates a
// process-ephemeral key, which is only suitable for local development.
func NewSessions(signingKey string, secure bool, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := []byte(strings.TrimSpace(signingKey))
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			logger.Error("session: failed to generate signing key", zap.Error(err))
			key = []byte("insecure-dev-key-please-set-TEMPLATES_SESSION_SIGNING_KEY")
		}
		logger.Warn("session: using ephemeral signing key; set TEMPLATES_SESSION_SIGNING_KEY outside local development")
	}
	return &Sessions{key: key, secure: secure, now: time.Now}
}

// Middleware loads or starts the visitor session and stores it on the context.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.read(r)
		if !ok {
			sess = &Session{ID: uuid.NewString(), CreatedAt: s.now().UTC()}
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    s.Encode(sess),
				Path:     "/",
				HttpOnly: true,
				Secure:   s.secure,
				SameSite: http.SameSiteLaxMode,
				Expires:  s.now().Add(sessionMaxAge),
			})
		}
		ctx := context.WithValue(r.Context(), requestSessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Encode serialises and signs sess as a cookie value.
func (s *Sessions) Encode(sess *Session) string {
	b, _ := json.Marshal(sess)
	mac := hmac.New(sha256.New, s.key)
	mac.Write(b)
	return base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *Sessions) read(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return nil, false
	}
	payloadPart, sigPart, ok := strings.Cut(c.Value, ".")
	if !ok {
		return nil, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, false
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil || sess.ID == "" {
		return nil, false
	}
	return &sess, true
}

// SessionFromContext retrieves the session attached to this request.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	sess, ok := ctx.Value(requestSessionKey).(*Session)
	return sess, ok && sess != nil
}
