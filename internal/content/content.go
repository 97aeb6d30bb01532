package content

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// BlockTemplates is the block type rendered as a templates listing.
const BlockTemplates = "templates"

// ErrNotFound is returned when no page exists for a slug.
var ErrNotFound = errors.New("content: page not found")

// Block is one authored block of a page.
type Block struct {
	Type     string
	PageSize int
	HTML     template.HTML
	// DataSource is the first link inside the block, if any.
	DataSource string
}

// IsListing reports whether the block renders as a templates listing.
func (b Block) IsListing() bool {
	return b.Type == BlockTemplates
}

// Page is an authored page assembled from front matter and markdown.
type Page struct {
	Slug        string
	Title       string
	Description string
	Body        template.HTML
	Blocks      []Block
}

type frontMatter struct {
	Title       string             `yaml:"title"`
	Description string             `yaml:"description"`
	Blocks      []frontMatterBlock `yaml:"blocks"`
}

type frontMatterBlock struct {
	Type     string `yaml:"type"`
	Content  string `yaml:"content"`
	PageSize int    `yaml:"page_size"`
}

// Loader reads pages from <slug>.md files.
type Loader struct {
	fsys   fs.FS
	md     goldmark.Markdown
	policy *bluemonday.Policy
	logger *zap.Logger
}

// Option customises a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader returns a loader reading markdown pages from fsys.
func NewLoader(fsys fs.FS, opts ...Option) *Loader {
	l := &Loader{
		fsys:   fsys,
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: newPolicy(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span", "div")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// Load reads and renders the page for slug.
func (l *Loader) Load(slug string) (Page, error) {
	slug = sanitizeSlug(slug)
	if slug == "" {
		return Page{}, ErrNotFound
	}
	file := slug + ".md"
	data, err := fs.ReadFile(l.fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Page{}, ErrNotFound
		}
		return Page{}, fmt.Errorf("content: read %s: %w", file, err)
	}

	fm, body := splitFrontMatter(string(data))
	front := frontMatter{}
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Page{}, fmt.Errorf("content: parse front matter %s: %w", file, err)
		}
	}

	page := Page{
		Slug:        slug,
		Title:       strings.TrimSpace(front.Title),
		Description: strings.TrimSpace(front.Description),
	}
	if page.Title == "" {
		page.Title = prettifySlug(slug)
	}
	if page.Body, err = l.render(body); err != nil {
		return Page{}, fmt.Errorf("content: render %s: %w", file, err)
	}
	for i, fb := range front.Blocks {
		html, err := l.render(fb.Content)
		if err != nil {
			return Page{}, fmt.Errorf("content: render %s block %d: %w", file, i, err)
		}
		block := Block{
			Type:     strings.ToLower(strings.TrimSpace(fb.Type)),
			PageSize: fb.PageSize,
			HTML:     html,
		}
		if block.IsListing() {
			block.DataSource = DataSource(string(html))
		}
		page.Blocks = append(page.Blocks, block)
	}
	l.logger.Debug("content: loaded page", zap.String("slug", slug), zap.Int("blocks", len(page.Blocks)))
	return page, nil
}

// render converts markdown to sanitized HTML.
func (l *Loader) render(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := l.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(strings.TrimSpace(l.policy.Sanitize(buf.String()))), nil
}

// DataSource returns the href of the first link in fragment, or "" when the
// fragment carries none.
func DataSource(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	href, _ := doc.Find("a[href]").First().Attr("href")
	return strings.TrimSpace(href)
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}

func sanitizeSlug(slug string) string {
	slug = strings.TrimSpace(strings.ToLower(slug))
	slug = strings.Trim(slug, "/")
	if slug == "" || strings.Contains(slug, "..") || strings.ContainsAny(slug, `/\`) {
		return ""
	}
	if path.Clean(slug) != slug {
		return ""
	}
	return slug
}

func prettifySlug(slug string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(strings.ReplaceAll(slug, "-", " ")), " "))
}
