package dom

import (
	"strconv"

	"golang.org/x/net/html"
)

// Index numbers every element under a root in document order and stamps
// the number as data-pv-node so the client can name a click target.
type Index struct {
	root  *html.Node
	nodes []*html.Node
}

// NewIndex stamps and indexes the elements under root (root excluded).
func NewIndex(root *html.Node) *Index {
	idx := &Index{root: root}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, func(n *html.Node) bool {
			SetAttr(n, AttrNode, strconv.Itoa(len(idx.nodes)))
			idx.nodes = append(idx.nodes, n)
			return true
		})
	}
	return idx
}

// Root returns the indexed container.
func (x *Index) Root() *html.Node { return x.root }

// Len returns the number of indexed elements.
func (x *Index) Len() int { return len(x.nodes) }

// Node resolves a data-pv-node number.
func (x *Index) Node(i int) (*html.Node, bool) {
	if x == nil || i < 0 || i >= len(x.nodes) {
		return nil, false
	}
	return x.nodes[i], true
}

// NumberOf returns the data-pv-node number of n, or -1.
func (x *Index) NumberOf(n *html.Node) int {
	if !IsElement(n) {
		return -1
	}
	v, ok := Attr(n, AttrNode)
	if !ok {
		return -1
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 || i >= len(x.nodes) || x.nodes[i] != n {
		return -1
	}
	return i
}

// ByIdentity finds the element stamped with a preview identity.
func (x *Index) ByIdentity(id string) (*html.Node, bool) {
	if x == nil || id == "" {
		return nil, false
	}
	for _, n := range x.nodes {
		if Identity(n) == id {
			return n, true
		}
	}
	return nil, false
}
