package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/templates-listing/internal/observability"
)

func TestHTMXMiddleware(t *testing.T) {
	base := HTMX()

	t.Run("detects htmx", func(t *testing.T) {
		handler := base(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := HTMXInfoFromContext(r.Context())
			require.True(t, info.IsHTMX)
			require.Equal(t, "block-0", info.Target)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/p/x/blocks/block-0", nil)
		req.Header.Set("HX-Request", "true")
		req.Header.Set("HX-Target", "block-0")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("RequireHTMX blocks non-htmx", func(t *testing.T) {
		handler := base(RequireHTMX()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/p/x/preview", nil))
		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestNoStoreMiddleware(t *testing.T) {
	handler := NoStore()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "no-store, max-age=0", rr.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rr.Header().Get("Pragma"))
}

func TestSessionsIssueAndVerify(t *testing.T) {
	sessions := NewSessions("test-key", false, nil)
	var seen []string
	handler := sessions.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		seen = append(seen, sess.ID)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookieName, cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Empty(t, rr.Result().Cookies(), "a valid cookie is not reissued")
	require.Len(t, seen, 2)
	require.Equal(t, seen[0], seen[1])

	forged := httptest.NewRequest(http.MethodGet, "/", nil)
	forged.AddCookie(&http.Cookie{Name: SessionCookieName, Value: NewSessions("other-key", false, nil).Encode(&Session{ID: seen[0]})})
	handler.ServeHTTP(httptest.NewRecorder(), forged)
	require.Len(t, seen, 3)
	require.NotEqual(t, seen[0], seen[2], "a cookie signed with another key starts a new session")
}

func TestCSRFMiddleware(t *testing.T) {
	sessions := NewSessions("test-key", false, nil)
	handler := sessions.Middleware(CSRF(CSRFConfig{Sessions: sessions})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, CSRFTokenFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})))

	var aliceID string
	visit := func(t *testing.T) (*http.Cookie, string) {
		t.Helper()
		var token string
		h := sessions.Middleware(CSRF(CSRFConfig{Sessions: sessions})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token = CSRFTokenFromContext(r.Context())
			if sess, ok := SessionFromContext(r.Context()); ok && aliceID == "" {
				aliceID = sess.ID
			}
		})))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, SessionCookieName, cookies[0].Name)
		return cookies[0], token
	}

	post := func(cookie *http.Cookie, token string) int {
		req := httptest.NewRequest(http.MethodPost, "/p/x/preview/close", nil)
		req.AddCookie(cookie)
		if token != "" {
			req.Header.Set("X-CSRF-Token", token)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	alice, aliceToken := visit(t)
	bob, bobToken := visit(t)
	require.NotEqual(t, aliceToken, bobToken)

	t.Run("missing header", func(t *testing.T) {
		require.Equal(t, http.StatusForbidden, post(alice, ""))
	})

	t.Run("own token", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, post(alice, aliceToken))
		require.Equal(t, http.StatusNoContent, post(bob, bobToken))
	})

	t.Run("token from another session", func(t *testing.T) {
		require.Equal(t, http.StatusForbidden, post(alice, bobToken))
		require.Equal(t, http.StatusForbidden, post(bob, aliceToken))
	})

	t.Run("token is stable for a session", func(t *testing.T) {
		var again string
		h := sessions.Middleware(CSRF(CSRFConfig{Sessions: sessions})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			again = CSRFTokenFromContext(r.Context())
		})))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(alice)
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, aliceToken, again)
	})

	t.Run("token minted under another key", func(t *testing.T) {
		forged := NewSessions("other-key", false, nil).CSRFToken(&Session{ID: aliceID})
		require.Equal(t, http.StatusForbidden, post(alice, forged))
	})
}

func TestCSRFWithoutSessionFails(t *testing.T) {
	handler := CSRF(CSRFConfig{Sessions: NewSessions("test-key", false, nil)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHTMXAnnotatesRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := observability.InjectLoggerMiddleware(zap.New(core))(HTMX()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observability.FromContext(r.Context()).Info("handled")
	})))

	req := httptest.NewRequest(http.MethodPost, "/p/x/blocks/block-1/flip", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Target", "block-1")
	req.Header.Set("HX-Trigger", "card-3")
	req.Header.Set("HX-Trigger-Name", "card")
	req.Header.Set("HX-Current-URL", "http://localhost/")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	require.Equal(t, "block-1", fields["hx_target"])
	require.Equal(t, "card-3", fields["hx_trigger"])
	require.Equal(t, "card", fields["hx_trigger_name"])
	require.Equal(t, "http://localhost/", fields["hx_current_url"])
	require.NotContains(t, entries[1].ContextMap(), "hx_target")
}
