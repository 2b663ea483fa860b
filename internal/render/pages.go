package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// DashboardPage is the data behind / and /dashboard.
type DashboardPage struct {
	Feed     FeedView
	Selected *DetailView
	Sort     SortKey
	Order    Order
	Grouped  bool
}

// DetailPage is the data behind /detail/{id}.
type DetailPage struct {
	Detail DetailView
}

// Pages renders the HTML views. It is safe for concurrent use.
type Pages struct {
	dashboard *template.Template
	detail    *template.Template
	legal     *template.Template
	notFound  *template.Template
}

var funcs = template.FuncMap{
	"photoURL": photoURL,
}

// photoURL admits inline image data, http(s) links and static asset paths
// as img sources.
func photoURL(s string) template.URL {
	lower := strings.ToLower(s)
	if strings.HasPrefix(s, domain.StaticAssetPrefix) || strings.HasPrefix(lower, "data:image/") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return template.URL(s) //nolint:gosec
	}
	return ""
}

// NewPages parses the embedded templates.
func NewPages() (*Pages, error) {
	parse := func(page string) (*template.Template, error) {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		return t, nil
	}

	var p Pages
	var err error
	if p.dashboard, err = parse("dashboard.html"); err != nil {
		return nil, err
	}
	if p.detail, err = parse("detail.html"); err != nil {
		return nil, err
	}
	if p.legal, err = parse("legal.html"); err != nil {
		return nil, err
	}
	if p.notFound, err = parse("notfound.html"); err != nil {
		return nil, err
	}
	return &p, nil
}

// Dashboard writes the feed page.
func (p *Pages) Dashboard(w io.Writer, data DashboardPage) error {
	return execute(w, p.dashboard, data)
}

// Detail writes the full-detail page.
func (p *Pages) Detail(w io.Writer, data DetailPage) error {
	return execute(w, p.detail, data)
}

// Legal writes the legal notice page.
func (p *Pages) Legal(w io.Writer, data LegalView) error {
	return execute(w, p.legal, data)
}

// NotFound writes the missing-request page.
func (p *Pages) NotFound(w io.Writer, data NotFound) error {
	return execute(w, p.notFound, data)
}

// execute renders into a buffer first so a template error never leaves a
// half-written page.
func execute(w io.Writer, t *template.Template, data any) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return fmt.Errorf("render %s: %w", t.Name(), err)
	}
	_, err := buf.WriteTo(w)
	return err
}
