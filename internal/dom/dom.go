// Package dom provides the small set of tree operations the preview needs
// on top of golang.org/x/net/html: parsing, rendering, attribute and class
// handling, text content and ancestor search.
package dom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Matcher selects nodes.
type Matcher func(n *html.Node) bool

// Parse parses a complete HTML document.
func Parse(src string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// Render serializes n and its subtree.
func Render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", fmt.Errorf("failed to render HTML: %w", err)
	}
	return buf.String(), nil
}

// RenderChildren serializes the children of n without n itself.
func RenderChildren(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("failed to render HTML: %w", err)
		}
	}
	return buf.String(), nil
}

// Find returns the first element with the given tag in document order.
func Find(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

// Walk visits elements in document order. Returning false skips the
// node's subtree.
func Walk(root *html.Node, fn func(n *html.Node) bool) {
	if root == nil {
		return
	}
	if root.Type == html.ElementNode {
		if !fn(root) {
			return
		}
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// Query returns every element under root matching m, in document order.
func Query(root *html.Node, m Matcher) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if m(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Closest returns n or the nearest ancestor matching m, stopping at stop.
func Closest(n, stop *html.Node, m Matcher) *html.Node {
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && m(c) {
			return c
		}
		if c == stop {
			return nil
		}
	}
	return nil
}

// Contains reports whether n is ancestor or itself of other.
func Contains(n, other *html.Node) bool {
	for c := other; c != nil; c = c.Parent {
		if c == n {
			return true
		}
	}
	return false
}

// Attr returns the value of an attribute.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or adds an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Classes returns the class list.
func Classes(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

// HasClass reports whether the class list contains class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range Classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

// HasClassPrefix reports whether any class starts with prefix.
func HasClassPrefix(n *html.Node, prefix string) bool {
	for _, c := range Classes(n) {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// AddClass appends class unless present.
func AddClass(n *html.Node, class string) {
	if HasClass(n, class) {
		return
	}
	SetAttr(n, "class", strings.TrimSpace(strings.Join(append(Classes(n), class), " ")))
}

// Text returns the text content of n with whitespace collapsed.
func Text(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			if c.DataAtom == atom.Script || c.DataAtom == atom.Style {
				return
			}
			for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
				collect(cc)
			}
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// OwnText returns the text of n's direct text children.
func OwnText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// SetText replaces the displayed text of n. Element children survive:
// the first non-blank direct text node receives the text and the other
// direct text nodes are emptied. An element with no text node gets one.
func SetText(n *html.Node, text string) {
	var first *html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		if first == nil && strings.TrimSpace(c.Data) != "" {
			first = c
			continue
		}
		c.Data = ""
	}
	if first == nil {
		first = &html.Node{Type: html.TextNode}
		n.AppendChild(first)
	}
	first.Data = text
}
