// Package content stores the structured content documents a site is
// rendered from, including the preview's edit overrides.
package content

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/livefir/editpreview/internal/overrides"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is one site's content.
type Document struct {
	ID         string         `json:"id" yaml:"id" validate:"required"`
	UserID     string         `json:"userId" yaml:"userId" validate:"required"`
	TemplateID string         `json:"templateId" yaml:"templateId" validate:"required"`
	Fields     map[string]any `json:"fields" yaml:"fields"`
	Generated  Generated      `json:"generated" yaml:"generated" validate:"-"`
	CreatedAt  time.Time      `json:"createdAt" yaml:"-"`
	UpdatedAt  time.Time      `json:"updatedAt" yaml:"-"`
}

// Generated is the metadata written alongside generated content. The
// preview's overrides live here so regenerating fields keeps them.
type Generated struct {
	Overrides overrides.Set `json:"overrides" yaml:"overrides"`
	Theme     string        `json:"theme,omitempty" yaml:"theme,omitempty"`
}

// Overrides are checked by Set.Validate below, which names the bad value.
var validate = overrides.NewValidator()

// Validate checks the required fields and every override value.
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid document: %s is %s", strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return err
	}
	if err := d.Generated.Overrides.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	return nil
}

// Field looks up a dotted path such as "hero.title" in Fields.
func (d *Document) Field(path string) (any, bool) {
	var cur any = d.Fields
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// Dark reports whether the document uses a dark theme.
func (d *Document) Dark() bool {
	return d.Generated.Theme == "dark"
}

// FoldImage records a replaced image.
func (d *Document) FoldImage(id, url string) {
	d.Generated.Overrides.SetImage(id, url)
}

// FoldText records a text change keyed by the original text.
func (d *Document) FoldText(original, updated string) {
	d.Generated.Overrides.SetText(original, updated)
}

// FoldButton records a button style; nil resets it.
func (d *Document) FoldButton(id string, style *overrides.ButtonStyle) {
	d.Generated.Overrides.SetButton(id, style)
}

// SwitchTemplate moves the document to another template. Positional
// image and button identities mean nothing on a different template, so
// the content overrides are discarded; global styles survive.
func (d *Document) SwitchTemplate(templateID string) bool {
	if templateID == "" || templateID == d.TemplateID {
		return false
	}
	d.TemplateID = templateID
	d.Generated.Overrides.DropContent()
	return true
}
