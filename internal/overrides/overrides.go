// Package overrides holds the sparse edit overrides a user makes in the
// live preview. The set is persisted inside the site's generated-content
// metadata and is owned by the host; the preview only reads it and emits
// deltas.
package overrides

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ButtonStyle is a per-button style override. Empty fields mean "use the
// template default".
type ButtonStyle struct {
	BgColor   string `json:"bgColor,omitempty" yaml:"bgColor,omitempty" validate:"omitempty,css_color"`
	TextColor string `json:"textColor,omitempty" yaml:"textColor,omitempty" validate:"omitempty,css_color"`
	Radius    string `json:"radius,omitempty" yaml:"radius,omitempty" validate:"omitempty,css_length"`
}

// IsZero reports whether no field is set.
func (b ButtonStyle) IsZero() bool {
	return b.BgColor == "" && b.TextColor == "" && b.Radius == ""
}

// Merge returns b with every non-empty field of other applied on top.
func (b ButtonStyle) Merge(other ButtonStyle) ButtonStyle {
	if other.BgColor != "" {
		b.BgColor = other.BgColor
	}
	if other.TextColor != "" {
		b.TextColor = other.TextColor
	}
	if other.Radius != "" {
		b.Radius = other.Radius
	}
	return b
}

// GlobalStyles are named site-wide style slots.
type GlobalStyles struct {
	PrimaryColor    string `json:"primaryColor,omitempty" yaml:"primaryColor,omitempty" validate:"omitempty,css_color"`
	HeadingColor    string `json:"headingColor,omitempty" yaml:"headingColor,omitempty" validate:"omitempty,css_color"`
	BodyColor       string `json:"bodyColor,omitempty" yaml:"bodyColor,omitempty" validate:"omitempty,css_color"`
	ButtonColor     string `json:"buttonColor,omitempty" yaml:"buttonColor,omitempty" validate:"omitempty,css_color"`
	ButtonTextColor string `json:"buttonTextColor,omitempty" yaml:"buttonTextColor,omitempty" validate:"omitempty,css_color"`
	ButtonRadius    string `json:"buttonRadius,omitempty" yaml:"buttonRadius,omitempty" validate:"omitempty,css_length"`
}

// Set is the four independent override mappings.
type Set struct {
	// CustomImages maps an image identity (image-0, background-1) to a URL.
	CustomImages map[string]string `json:"customImages,omitempty" yaml:"customImages,omitempty"`
	// CustomTexts maps original text to replacement text.
	CustomTexts map[string]string `json:"customTexts,omitempty" yaml:"customTexts,omitempty"`
	// CustomButtons maps a button identity to its style override.
	CustomButtons map[string]ButtonStyle `json:"customButtons,omitempty" yaml:"customButtons,omitempty" validate:"dive"`
	CustomStyles  GlobalStyles           `json:"customStyles,omitempty" yaml:"customStyles,omitempty"`
}

// NormalizeText is the canonical form of a text key: NFC, whitespace
// collapsed, trimmed. Baselines and override keys both pass through it
// so that "Welkom  bij" and "Welkom bij" are the same key.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// SetImage records a replacement URL for an image identity.
func (s *Set) SetImage(id, url string) {
	if s.CustomImages == nil {
		s.CustomImages = make(map[string]string)
	}
	s.CustomImages[id] = url
}

// Image returns the replacement URL for id.
func (s *Set) Image(id string) (string, bool) {
	url, ok := s.CustomImages[id]
	return url, ok && url != ""
}

// SetText records a replacement for the original text. A replacement
// equal to the original removes the entry.
func (s *Set) SetText(original, updated string) {
	original = NormalizeText(original)
	updated = NormalizeText(updated)
	if original == "" {
		return
	}
	if updated == "" || updated == original {
		delete(s.CustomTexts, original)
		return
	}
	if s.CustomTexts == nil {
		s.CustomTexts = make(map[string]string)
	}
	s.CustomTexts[original] = updated
}

// TextFor returns the replacement for an original text.
func (s *Set) TextFor(original string) (string, bool) {
	v, ok := s.CustomTexts[NormalizeText(original)]
	return v, ok && v != ""
}

// IsOverrideValue reports whether text is the replacement of any entry.
func (s *Set) IsOverrideValue(text string) bool {
	text = NormalizeText(text)
	if text == "" {
		return false
	}
	for _, v := range s.CustomTexts {
		if v == text {
			return true
		}
	}
	return false
}

// SetButton stores or, when style is nil or empty, removes the override
// for a button. Reset drops the key; it never stores an empty object.
func (s *Set) SetButton(id string, style *ButtonStyle) {
	if style == nil || style.IsZero() {
		delete(s.CustomButtons, id)
		return
	}
	if s.CustomButtons == nil {
		s.CustomButtons = make(map[string]ButtonStyle)
	}
	s.CustomButtons[id] = *style
}

// Button returns the style override for id.
func (s *Set) Button(id string) (ButtonStyle, bool) {
	b, ok := s.CustomButtons[id]
	return b, ok && !b.IsZero()
}

// DropContent removes the image, text and button overrides, keeping the
// global styles. Used when the host switches templates.
func (s *Set) DropContent() {
	s.CustomImages = nil
	s.CustomTexts = nil
	s.CustomButtons = nil
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	out := Set{CustomStyles: s.CustomStyles}
	if s.CustomImages != nil {
		out.CustomImages = make(map[string]string, len(s.CustomImages))
		for k, v := range s.CustomImages {
			out.CustomImages[k] = v
		}
	}
	if s.CustomTexts != nil {
		out.CustomTexts = make(map[string]string, len(s.CustomTexts))
		for k, v := range s.CustomTexts {
			out.CustomTexts[k] = v
		}
	}
	if s.CustomButtons != nil {
		out.CustomButtons = make(map[string]ButtonStyle, len(s.CustomButtons))
		for k, v := range s.CustomButtons {
			out.CustomButtons[k] = v
		}
	}
	return out
}
