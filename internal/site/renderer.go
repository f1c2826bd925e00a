// Package site renders content documents into marketing pages and hosts
// them in the live preview.
package site

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/livefir/editpreview/internal/content"
)

//go:embed templates/*.html
var bundled embed.FS

// DefaultTemplate is used for documents whose template is unknown.
const DefaultTemplate = "zorg-modern"

// Renderer renders documents with named page templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer loads the bundled templates plus every *.html file in dir,
// if dir is set. A file in dir replaces a bundled template of the same
// name.
func NewRenderer(dir string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template)}
	if err := r.load(bundled, "templates"); err != nil {
		return nil, err
	}
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("templates directory: %w", err)
		}
		if err := r.load(os.DirFS(dir), "."); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Renderer) load(fsys fs.FS, dir string) error {
	matches, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(dir, "*.html")))
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}
	for _, m := range matches {
		src, err := fs.ReadFile(fsys, m)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", m, err)
		}
		name := strings.TrimSuffix(filepath.Base(m), ".html")
		tmpl, err := template.New(name).Funcs(funcs).Parse(string(src))
		if err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return nil
}

// Templates lists the available template IDs.
func (r *Renderer) Templates() []string {
	names := make([]string, 0, len(r.templates))
	for n := range r.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a template exists.
func (r *Renderer) Has(id string) bool {
	_, ok := r.templates[id]
	return ok
}

// Render executes the document's template.
func (r *Renderer) Render(doc *content.Document) (string, error) {
	tmpl, ok := r.templates[doc.TemplateID]
	if !ok {
		tmpl, ok = r.templates[DefaultTemplate]
		if !ok {
			return "", fmt.Errorf("no template %q", doc.TemplateID)
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", doc.ID, err)
	}
	return buf.String(), nil
}

var funcs = template.FuncMap{
	"field": field,
	"items": items,
	"value": value,
	"dark":  func(d *content.Document) bool { return d.Dark() },
}

// field returns the string at path, or def when it is missing or empty.
func field(d *content.Document, path, def string) string {
	v, ok := d.Field(path)
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return s
}

// items returns the list of objects at path.
func items(d *content.Document, path string) []map[string]any {
	v, ok := d.Field(path)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func value(m map[string]any, key string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}
