package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// Browser is a cookie-keeping client that behaves like htmx: fragment requests
// carry HX-Request and the CSRF header read from the last full page.
type Browser struct {
	t      testing.TB
	base   string
	client *http.Client
	csrf   string
}

// NewBrowser returns a Browser with its own cookie jar, i.e. its own session.
func NewBrowser(t testing.TB, ts *httptest.Server) *Browser {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &Browser{
		t:    t,
		base: ts.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Open loads a full page, remembers its CSRF token and returns the document.
func (b *Browser) Open(path string) (*http.Response, *goquery.Document) {
	b.t.Helper()

	resp, body := b.do(http.MethodGet, path, nil, false)
	doc := ParseHTML(b.t, body)
	if raw, ok := doc.Find("body").Attr("hx-headers"); ok {
		var headers map[string]string
		if err := json.Unmarshal([]byte(raw), &headers); err == nil {
			b.csrf = headers["X-CSRF-Token"]
		}
	}
	return resp, doc
}

// Get issues a GET, as htmx when htmx is true.
func (b *Browser) Get(path string, htmx bool) (*http.Response, []byte) {
	b.t.Helper()
	return b.do(http.MethodGet, path, nil, htmx)
}

// Post issues an htmx POST with form values and the CSRF header.
func (b *Browser) Post(path string, form url.Values) (*http.Response, []byte) {
	b.t.Helper()
	return b.do(http.MethodPost, path, form, true)
}

// PostWithoutCSRF issues an htmx POST that omits the CSRF header.
func (b *Browser) PostWithoutCSRF(path string, form url.Values) (*http.Response, []byte) {
	b.t.Helper()
	token := b.csrf
	b.csrf = ""
	defer func() { b.csrf = token }()
	return b.do(http.MethodPost, path, form, true)
}

// PostWithToken issues an htmx POST carrying token as the CSRF header.
func (b *Browser) PostWithToken(path string, form url.Values, token string) (*http.Response, []byte) {
	b.t.Helper()
	own := b.csrf
	b.csrf = token
	defer func() { b.csrf = own }()
	return b.do(http.MethodPost, path, form, true)
}

// CSRFToken returns the token read from the last full page.
func (b *Browser) CSRFToken() string {
	return b.csrf
}

func (b *Browser) do(method, path string, form url.Values, htmx bool) (*http.Response, []byte) {
	b.t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, b.base+path, body)
	if err != nil {
		b.t.Fatalf("new request: %v", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	if b.csrf != "" {
		req.Header.Set("X-CSRF-Token", b.csrf)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		b.t.Fatalf("read body: %v", err)
	}
	return resp, payload
}
