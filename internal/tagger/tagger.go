// Package tagger runs the per-render pass over a preview tree: it stamps
// identities on editable images, buttons and text, caches their original
// values and applies the saved overrides.
package tagger

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/livefir/editpreview/internal/dom"
	"github.com/livefir/editpreview/internal/overrides"
)

// Identity prefixes.
const (
	ImagePrefix      = "image"
	BackgroundPrefix = "background"
	ButtonPrefix     = "button"
	TextPrefix       = "text"
)

// RevealClass is forced onto animated elements so edits are visible
// without waiting for scroll-triggered animations.
const RevealClass = "is-visible"

// Baselines caches the pre-edit value of each element, keyed by identity.
// It lives as long as the editing session; identities are re-derived on
// every pass.
type Baselines struct {
	Images map[string]string
	Texts  map[string]string
}

// NewBaselines creates an empty cache.
func NewBaselines() *Baselines {
	return &Baselines{
		Images: make(map[string]string),
		Texts:  make(map[string]string),
	}
}

// Text returns the cached baseline text for a text identity.
func (b *Baselines) Text(id string) (string, bool) {
	v, ok := b.Texts[id]
	return v, ok
}

// Image returns the cached first-seen source for an image identity.
func (b *Baselines) Image(id string) (string, bool) {
	v, ok := b.Images[id]
	return v, ok
}

// Tagged is an element that received an identity in a pass.
type Tagged struct {
	ID   string
	Node *html.Node
}

// Result describes one pass.
type Result struct {
	Images      []Tagged
	Backgrounds []Tagged
	Buttons     []Tagged
	Texts       []Tagged
	// Hover maps a button identity to the background colour its hover
	// rule must re-assert.
	Hover map[string]string
}

// Options tune a pass.
type Options struct {
	// Editing is the text identity currently mid-edit. It is exempt from
	// forced reveal classing.
	Editing string
}

// Run tags root and applies set. Running it twice over an unchanged tree
// assigns the same identities and leaves the baselines untouched.
func Run(root *html.Node, set *overrides.Set, base *Baselines, opts Options) *Result {
	if set == nil {
		set = &overrides.Set{}
	}
	res := &Result{Hover: make(map[string]string)}

	for i, n := range dom.Query(root, dom.IsImage) {
		id := fmt.Sprintf("%s-%d", ImagePrefix, i)
		dom.SetAttr(n, dom.AttrIdentity, id)
		src, _ := dom.Attr(n, "src")
		if _, ok := base.Images[id]; !ok && src != "" {
			base.Images[id] = src
		}
		if url, ok := set.Image(id); ok {
			dom.SetAttr(n, "src", url)
			dom.RemoveAttr(n, "srcset")
		}
		res.Images = append(res.Images, Tagged{ID: id, Node: n})
	}

	for i, n := range dom.Query(root, dom.IsBackgroundImage) {
		id := fmt.Sprintf("%s-%d", BackgroundPrefix, i)
		dom.SetAttr(n, dom.AttrIdentity, id)
		if src, ok := dom.BackgroundImageURL(n); ok {
			if _, cached := base.Images[id]; !cached {
				base.Images[id] = src
			}
		}
		if url, ok := set.Image(id); ok {
			dom.SetBackgroundImage(n, url)
		}
		res.Backgrounds = append(res.Backgrounds, Tagged{ID: id, Node: n})
	}

	for i, n := range dom.Query(root, dom.IsButtonLike) {
		id := fmt.Sprintf("%s-%d", ButtonPrefix, i)
		dom.SetAttr(n, dom.AttrIdentity, id)
		if style, ok := set.Button(id); ok {
			ApplyButtonStyle(n, style)
			if style.BgColor != "" {
				res.Hover[id] = style.BgColor
			}
		}
		res.Buttons = append(res.Buttons, Tagged{ID: id, Node: n})
	}

	var editingNode *html.Node
	for i, n := range dom.Query(root, isTextCandidate) {
		id := fmt.Sprintf("%s-%d", TextPrefix, i)
		dom.SetAttr(n, dom.AttrIdentity, id)
		if id == opts.Editing {
			editingNode = n
		}
		baseline := resolveBaseline(n, id, set, base)
		if baseline != "" && !dom.HasEditableDescendant(n) {
			if repl, ok := set.TextFor(baseline); ok {
				dom.SetText(n, repl)
			}
		}
		res.Texts = append(res.Texts, Tagged{ID: id, Node: n})
	}

	for _, n := range dom.Query(root, dom.IsReveal) {
		if editingNode != nil && dom.Contains(n, editingNode) {
			continue
		}
		dom.AddClass(n, RevealClass)
	}

	return res
}

// resolveBaseline returns the baseline for a text element. A missing
// baseline is seeded from the current text. When the current text is
// neither the baseline nor any override value, the content was edited
// elsewhere and the current text becomes the new baseline, so a stale
// override cannot clobber it.
func resolveBaseline(n *html.Node, id string, set *overrides.Set, base *Baselines) string {
	current := overrides.NormalizeText(dom.Text(n))
	cached, ok := base.Texts[id]
	switch {
	case current == "":
		return ""
	case !ok:
		base.Texts[id] = current
		return current
	case current != cached && !set.IsOverrideValue(current):
		base.Texts[id] = current
		return current
	}
	return cached
}

// isTextCandidate matches text elements the pass tags. Button-like
// elements keep their button identity.
func isTextCandidate(n *html.Node) bool {
	return dom.IsTextBearing(n) && !dom.IsButtonLike(n) && !dom.IsBackgroundImage(n)
}

// ApplyButtonStyle writes the present fields of style as !important inline
// declarations so they win over the template's conditional classes.
func ApplyButtonStyle(n *html.Node, style overrides.ButtonStyle) {
	st := dom.StyleOf(n)
	if style.BgColor != "" {
		st = st.Set("background-color", style.BgColor, true)
	}
	if style.TextColor != "" {
		st = st.Set("color", style.TextColor, true)
	}
	if style.Radius != "" {
		st = st.Set("border-radius", style.Radius, true)
	}
	st.Apply(n)
}

