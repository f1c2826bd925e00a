package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Declaration is one inline CSS declaration.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

// Style is an ordered inline style attribute.
type Style []Declaration

// ParseStyle splits an inline style attribute. Malformed declarations are
// dropped.
func ParseStyle(s string) Style {
	var out Style
	for _, part := range splitDeclarations(s) {
		prop, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(val)
		if prop == "" || val == "" {
			continue
		}
		important := false
		if i := strings.LastIndex(strings.ToLower(val), "!important"); i >= 0 {
			important = true
			val = strings.TrimSpace(val[:i])
		}
		out = append(out, Declaration{Property: prop, Value: val, Important: important})
	}
	return out
}

// splitDeclarations splits on semicolons outside parentheses and quotes
// so that url(data:...;base64,...) survives.
func splitDeclarations(s string) []string {
	var parts []string
	depth := 0
	var quote rune
	start := 0
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == ';' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// StyleOf parses the style attribute of n.
func StyleOf(n *html.Node) Style {
	v, _ := Attr(n, "style")
	return ParseStyle(v)
}

// Get returns the value of prop.
func (s Style) Get(prop string) (string, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Property == prop {
			return s[i].Value, true
		}
	}
	return "", false
}

// Set replaces prop in place or appends it.
func (s Style) Set(prop, val string, important bool) Style {
	for i := range s {
		if s[i].Property == prop {
			s[i].Value = val
			s[i].Important = important
			return s
		}
	}
	return append(s, Declaration{Property: prop, Value: val, Important: important})
}

// Remove drops every declaration of prop.
func (s Style) Remove(prop string) Style {
	kept := s[:0]
	for _, d := range s {
		if d.Property != prop {
			kept = append(kept, d)
		}
	}
	return kept
}

func (s Style) String() string {
	parts := make([]string, 0, len(s))
	for _, d := range s {
		decl := d.Property + ": " + d.Value
		if d.Important {
			decl += " !important"
		}
		parts = append(parts, decl)
	}
	return strings.Join(parts, "; ")
}

// Apply writes s back to n's style attribute, removing it when empty.
func (s Style) Apply(n *html.Node) {
	if len(s) == 0 {
		RemoveAttr(n, "style")
		return
	}
	SetAttr(n, "style", s.String())
}

// BackgroundImageURL extracts the url() of an inline background or
// background-image declaration.
func BackgroundImageURL(n *html.Node) (string, bool) {
	st := StyleOf(n)
	for _, prop := range []string{"background-image", "background"} {
		v, ok := st.Get(prop)
		if !ok {
			continue
		}
		if u, ok := parseURL(v); ok {
			return u, true
		}
	}
	return "", false
}

func parseURL(v string) (string, bool) {
	i := strings.Index(strings.ToLower(v), "url(")
	if i < 0 {
		return "", false
	}
	rest := v[i+4:]
	j := strings.LastIndex(rest, ")")
	if j < 0 {
		return "", false
	}
	u := strings.Trim(strings.TrimSpace(rest[:j]), `"'`)
	return u, u != ""
}

// SetBackgroundImage points the inline background image of n at url.
func SetBackgroundImage(n *html.Node, url string) {
	st := StyleOf(n).Remove("background-image")
	if bg, ok := st.Get("background"); ok {
		if _, hasURL := parseURL(bg); hasURL {
			st = st.Remove("background")
		}
	}
	st = st.Set("background-image", `url("`+url+`")`, false)
	st.Apply(n)
}
