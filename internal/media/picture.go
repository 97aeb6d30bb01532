package media

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultPath is where the optimizer handler is mounted.
const DefaultPath = "/media/optimized"

// Breakpoint is a width hint for one rendition of a picture.
type Breakpoint struct {
	Media string
	Width string
}

// URLBuilder produces the address of an optimized rendition.
type URLBuilder struct {
	Path string
}

// URL returns the optimizer address for src at the given width. Sources that
// are not http(s) URLs or absolute paths are returned untouched.
func (b URLBuilder) URL(src, width string) string {
	src = strings.TrimSpace(src)
	if !optimizable(src) {
		return src
	}
	path := b.Path
	if path == "" {
		path = DefaultPath
	}
	q := url.Values{}
	q.Set("src", src)
	if width != "" {
		q.Set("width", width)
	}
	return path + "?" + q.Encode()
}

func optimizable(src string) bool {
	if strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "//") {
		return true
	}
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Picture builds a <picture> element for src. Every hint but the last becomes a
// <source>; the last one becomes the <img> fallback.
func (b URLBuilder) Picture(src, alt string, eager bool, hints []Breakpoint) *html.Node {
	if len(hints) == 0 {
		hints = []Breakpoint{{Media: "(min-width: 600px)", Width: "2000"}, {Width: "750"}}
	}
	picture := element(atom.Picture)
	for i, hint := range hints {
		if i < len(hints)-1 {
			source := element(atom.Source)
			if hint.Media != "" {
				setAttr(source, "media", hint.Media)
			}
			setAttr(source, "srcset", b.URL(src, hint.Width))
			picture.AppendChild(source)
			continue
		}
		img := element(atom.Img)
		loading := "lazy"
		if eager {
			loading = "eager"
		}
		setAttr(img, "loading", loading)
		setAttr(img, "alt", alt)
		setAttr(img, "src", b.URL(src, hint.Width))
		if hint.Width != "" {
			setAttr(img, "width", hint.Width)
		}
		picture.AppendChild(img)
	}
	return picture
}

// Picture builds a picture element using the default optimizer path.
func Picture(src, alt string, eager bool, hints []Breakpoint) *html.Node {
	return URLBuilder{}.Picture(src, alt, eager, hints)
}

// RenderHTML serialises n for inclusion in a template.
func RenderHTML(n *html.Node) template.HTML {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return template.HTML(buf.String())
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func setAttr(n *html.Node, key, value string) {
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}
