// Package router classifies a click inside the preview into the edit
// affordance it should open.
package router

import (
	"golang.org/x/net/html"

	"github.com/livefir/editpreview/internal/dom"
)

// Kind is the affordance a click resolves to.
type Kind int

const (
	None Kind = iota
	LinkedImage
	Image
	Text
	Button
	BackgroundImage
)

func (k Kind) String() string {
	switch k {
	case LinkedImage:
		return "linked-image"
	case Image:
		return "image"
	case Text:
		return "text"
	case Button:
		return "button"
	case BackgroundImage:
		return "background-image"
	default:
		return "none"
	}
}

// IsImage reports whether the affordance is the image replacement flow.
func (k Kind) IsImage() bool {
	return k == LinkedImage || k == Image || k == BackgroundImage
}

// Target is the classified click.
type Target struct {
	Kind     Kind
	Node     *html.Node
	Identity string
	// PreventNavigation is set for any click inside an anchor; the
	// preview is not a live site.
	PreventNavigation bool
}

// Classify resolves the clicked node against the container root. The
// first matching rule wins: image in a link, image, editable text, button,
// background image. Text is tested before buttons so that text inside a
// button-styled container stays editable on its own.
func Classify(root, clicked *html.Node) Target {
	if !dom.IsElement(clicked) || !dom.Contains(root, clicked) {
		return Target{}
	}
	t := Target{PreventNavigation: dom.Closest(clicked, root, dom.IsLink) != nil}

	if img := linkedImage(root, clicked); img != nil {
		return t.with(LinkedImage, img)
	}
	if dom.IsImage(clicked) {
		return t.with(Image, clicked)
	}
	if n := editableText(root, clicked); n != nil {
		return t.with(Text, n)
	}
	if n := dom.Closest(clicked, root, isTaggedButton); n != nil {
		return t.with(Button, n)
	}
	if n := dom.Closest(clicked, root, dom.IsBackgroundImage); n != nil && dom.Identity(n) != "" {
		return t.with(BackgroundImage, n)
	}
	return t
}

func (t Target) with(k Kind, n *html.Node) Target {
	t.Kind = k
	t.Node = n
	t.Identity = dom.Identity(n)
	return t
}

// linkedImage matches an image inside a link, or a link whose only content
// is an image.
func linkedImage(root, clicked *html.Node) *html.Node {
	if dom.IsImage(clicked) {
		if dom.Closest(clicked, root, dom.IsLink) != nil {
			return clicked
		}
		return nil
	}
	if !dom.IsLink(clicked) || dom.OwnText(clicked) != "" || dom.Text(clicked) != "" {
		return nil
	}
	imgs := dom.Query(clicked, dom.IsImage)
	if len(imgs) == 1 {
		return imgs[0]
	}
	return nil
}

// editableText walks up from the clicked node and returns the first
// editable text element. It gives up at icon glyphs and at the first
// button-like ancestor, so a button's padding opens the style popover
// rather than a parent paragraph.
func editableText(root, clicked *html.Node) *html.Node {
	for n := clicked; n != nil; n = n.Parent {
		if !dom.IsElement(n) {
			return nil
		}
		if dom.IsButtonLike(n) || dom.IsIcon(n) {
			return nil
		}
		if dom.IsEditableText(n) && dom.Identity(n) != "" {
			return n
		}
		if n == root {
			return nil
		}
	}
	return nil
}

func isTaggedButton(n *html.Node) bool {
	return dom.IsButtonLike(n) && dom.Identity(n) != ""
}
