package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attributes stamped on the rendered tree.
const (
	AttrNode     = "data-pv-node"
	AttrIdentity = "data-pv-id"
)

var textTags = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.P: true, atom.Span: true, atom.A: true, atom.Li: true, atom.Blockquote: true,
	atom.Figcaption: true, atom.Label: true, atom.Strong: true, atom.Em: true,
	atom.Small: true, atom.Button: true, atom.Td: true, atom.Th: true, atom.Dt: true, atom.Dd: true,
}

var buttonClasses = []string{"btn", "button", "cta"}

// IsElement reports whether n is an element.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// IsImage matches <img>.
func IsImage(n *html.Node) bool {
	return IsElement(n) && n.DataAtom == atom.Img
}

// IsLink matches <a>.
func IsLink(n *html.Node) bool {
	return IsElement(n) && n.DataAtom == atom.A
}

// IsIcon matches icon glyphs: svg, <i>, aria-hidden elements and icon
// font classes.
func IsIcon(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	if n.DataAtom == atom.Svg || n.DataAtom == atom.I || n.Data == "svg" {
		return true
	}
	if v, _ := Attr(n, "aria-hidden"); v == "true" {
		return true
	}
	for _, c := range Classes(n) {
		if c == "icon" || strings.HasPrefix(c, "icon-") || strings.HasPrefix(c, "fa-") || c == "material-icons" {
			return true
		}
	}
	return false
}

// IsButtonLike matches elements that look like a button: <button>,
// role=button, button-ish class names, a background colour utility class,
// or an inline background colour.
func IsButtonLike(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	if n.DataAtom == atom.Button {
		return true
	}
	if v, _ := Attr(n, "role"); v == "button" {
		return true
	}
	if n.DataAtom != atom.A && n.DataAtom != atom.Div && n.DataAtom != atom.Span {
		return false
	}
	for _, c := range Classes(n) {
		for _, bc := range buttonClasses {
			if c == bc || strings.HasPrefix(c, bc+"-") {
				return true
			}
		}
		if isBackgroundColorClass(c) {
			return true
		}
	}
	st := StyleOf(n)
	if _, ok := st.Get("background-color"); ok {
		return true
	}
	if bg, ok := st.Get("background"); ok {
		if _, isURL := parseURL(bg); !isURL {
			return true
		}
	}
	return false
}

// isBackgroundColorClass matches utility classes such as bg-blue-600 or
// bg-primary, but not bg-cover, bg-center and friends.
func isBackgroundColorClass(c string) bool {
	if !strings.HasPrefix(c, "bg-") {
		return false
	}
	switch strings.TrimPrefix(c, "bg-") {
	case "cover", "contain", "center", "fixed", "no-repeat", "repeat", "top", "bottom",
		"left", "right", "clip-text", "gradient-to-r", "gradient-to-b", "transparent", "none":
		return false
	}
	return true
}

// IsTextBearing matches the tags whose text the user may edit, excluding
// icon glyphs. Structural containers (div, section, ul, ...) never match.
func IsTextBearing(n *html.Node) bool {
	return IsElement(n) && textTags[n.DataAtom] && !IsIcon(n)
}

// IsEditableText matches a text-bearing element that is not itself
// button-like and carries its own visible text.
func IsEditableText(n *html.Node) bool {
	return IsTextBearing(n) && !IsButtonLike(n) && OwnText(n) != ""
}

// HasEditableDescendant reports whether any element below n is edited on
// its own: editable text or a button. Their text is part of n's text, so
// replacing n's text would duplicate it.
func HasEditableDescendant(n *html.Node) bool {
	found := false
	for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
		Walk(c, func(d *html.Node) bool {
			if found {
				return false
			}
			if IsEditableText(d) || IsButtonLike(d) {
				found = true
				return false
			}
			return true
		})
	}
	return found
}

// IsBackgroundImage matches an element with an inline background image.
func IsBackgroundImage(n *html.Node) bool {
	if !IsElement(n) || n.DataAtom == atom.Img {
		return false
	}
	_, ok := BackgroundImageURL(n)
	return ok
}

// IsReveal matches elements that a template animates into view.
func IsReveal(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	if _, ok := Attr(n, "data-animate"); ok {
		return true
	}
	return HasClass(n, "reveal") || HasClassPrefix(n, "animate-") || HasClassPrefix(n, "fade-")
}

// Identity returns the stamped preview identity of n.
func Identity(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	v, _ := Attr(n, AttrIdentity)
	return v
}
