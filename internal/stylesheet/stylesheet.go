// Package stylesheet builds the generated stylesheet for global style
// overrides and per-button hover rules. Each overridable slot maps to a
// fixed list of selectors and CSS properties, so the output is a typed,
// deterministic rule list rather than concatenated strings.
package stylesheet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/livefir/editpreview/internal/dom"
	"github.com/livefir/editpreview/internal/overrides"
)

// Slot is an overridable global style.
type Slot int

const (
	PrimaryColor Slot = iota
	HeadingColor
	BodyColor
	ButtonColor
	ButtonTextColor
	ButtonRadius
)

// Slots lists every slot in output order.
var Slots = []Slot{PrimaryColor, HeadingColor, BodyColor, ButtonColor, ButtonTextColor, ButtonRadius}

func (s Slot) String() string {
	switch s {
	case PrimaryColor:
		return "primaryColor"
	case HeadingColor:
		return "headingColor"
	case BodyColor:
		return "bodyColor"
	case ButtonColor:
		return "buttonColor"
	case ButtonTextColor:
		return "buttonTextColor"
	case ButtonRadius:
		return "buttonRadius"
	}
	return fmt.Sprintf("Slot(%d)", int(s))
}

// Theme carries the template facts the rules depend on.
type Theme struct {
	// Dark templates put body copy on a dark background; the body colour
	// then targets the light-on-dark copy selectors.
	Dark bool
	// Scope prefixes every selector, e.g. "#pv-root".
	Scope string
}

var buttonSelectors = []string{"button", ".btn", "[class*='btn-']", ".button", ".cta", "[role='button']"}

// target is the selectors and properties a slot writes.
type target struct {
	selectors  []string
	properties []string
}

func targetFor(s Slot, theme Theme) target {
	switch s {
	case PrimaryColor:
		return target{
			selectors:  []string{".text-primary", ".accent", "a:not(.btn):not(.button)"},
			properties: []string{"color"},
		}
	case HeadingColor:
		return target{
			selectors:  []string{"h1", "h2", "h3", "h4", "h5", "h6"},
			properties: []string{"color"},
		}
	case BodyColor:
		sel := []string{"p", "li", "blockquote", "figcaption", "small"}
		if theme.Dark {
			sel = []string{"p", "li", "blockquote", "figcaption", "small", ".text-gray-300", ".text-gray-400", ".text-white\\/80"}
		}
		return target{selectors: sel, properties: []string{"color"}}
	case ButtonColor:
		return target{selectors: buttonSelectors, properties: []string{"background-color", "border-color"}}
	case ButtonTextColor:
		return target{selectors: buttonSelectors, properties: []string{"color"}}
	case ButtonRadius:
		return target{selectors: buttonSelectors, properties: []string{"border-radius"}}
	}
	return target{}
}

func valueOf(s Slot, g overrides.GlobalStyles) string {
	switch s {
	case PrimaryColor:
		return g.PrimaryColor
	case HeadingColor:
		return g.HeadingColor
	case BodyColor:
		return g.BodyColor
	case ButtonColor:
		return g.ButtonColor
	case ButtonTextColor:
		return g.ButtonTextColor
	case ButtonRadius:
		return g.ButtonRadius
	}
	return ""
}

// Rule is one CSS rule.
type Rule struct {
	Selectors    []string
	Declarations []dom.Declaration
}

func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(r.Selectors, ", "))
	b.WriteString(" { ")
	b.WriteString(dom.Style(r.Declarations).String())
	b.WriteString(" }")
	return b.String()
}

// Sheet is an ordered list of rules.
type Sheet struct {
	Rules []Rule
}

// valid reports whether v is a value slot may write. The sheet is
// embedded in a <style> element, so anything else is dropped.
func valid(slot Slot, v string) bool {
	if slot == ButtonRadius {
		return overrides.IsLength(v)
	}
	return overrides.IsColor(v)
}

// Build turns the global style overrides into rules. Unset slots and
// values that are not a colour or length produce nothing. The result is
// the same for the same input.
func Build(g overrides.GlobalStyles, theme Theme) *Sheet {
	sheet := &Sheet{}
	for _, slot := range Slots {
		v := strings.TrimSpace(valueOf(slot, g))
		if v == "" || !valid(slot, v) {
			continue
		}
		t := targetFor(slot, theme)
		rule := Rule{Selectors: scoped(theme.Scope, t.selectors)}
		for _, p := range t.properties {
			rule.Declarations = append(rule.Declarations, dom.Declaration{Property: p, Value: v, Important: true})
		}
		sheet.Rules = append(sheet.Rules, rule)
	}
	return sheet
}

// AddHover appends hover rules re-asserting each button's background,
// ordered by identity. Without them a template's own :hover styling
// would replace the overridden colour. Invalid colours are skipped.
func (s *Sheet) AddHover(scope string, hover map[string]string) {
	ids := make([]string, 0, len(hover))
	for id, color := range hover {
		if overrides.IsColor(color) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		sel := fmt.Sprintf("[%s=%q]:hover", dom.AttrIdentity, id)
		s.Rules = append(s.Rules, Rule{
			Selectors:    scoped(scope, []string{sel}),
			Declarations: []dom.Declaration{{Property: "background-color", Value: hover[id], Important: true}},
		})
	}
}

// Len returns the number of rules.
func (s *Sheet) Len() int { return len(s.Rules) }

func (s *Sheet) String() string {
	lines := make([]string, 0, len(s.Rules))
	for _, r := range s.Rules {
		lines = append(lines, r.String())
	}
	return strings.Join(lines, "\n")
}

// Minified renders the sheet compacted.
func (s *Sheet) Minified() string {
	if len(s.Rules) == 0 {
		return ""
	}
	return dom.MinifyCSS(s.String())
}

func scoped(scope string, selectors []string) []string {
	if scope == "" {
		return append([]string(nil), selectors...)
	}
	out := make([]string, len(selectors))
	for i, sel := range selectors {
		out[i] = scope + " " + sel
	}
	return out
}
