package editor

import (
	"html"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/livefir/editpreview/internal/overrides"
)

// KeyAction is what a key press does during text editing.
type KeyAction int

const (
	KeyIgnore KeyAction = iota
	// KeyCommit blurs the element, which commits the edit.
	KeyCommit
	// KeyCancel restores the baseline and blurs.
	KeyCancel
)

// Key maps a key press while editing. Shift+Enter inserts a line break
// and is left to the browser.
func Key(key string, shift bool) KeyAction {
	switch key {
	case "Enter":
		if shift {
			return KeyIgnore
		}
		return KeyCommit
	case "Escape", "Esc":
		return KeyCancel
	}
	return KeyIgnore
}

// Outcome is the result of committing an inline edit on blur.
type Outcome int

const (
	// Unchanged means the text equals the baseline; nothing is emitted.
	Unchanged Outcome = iota
	// Changed means the host must receive (baseline, text).
	Changed
	// Restored means the edit was empty and the baseline goes back in.
	Restored
)

func (o Outcome) String() string {
	switch o {
	case Changed:
		return "changed"
	case Restored:
		return "restored"
	default:
		return "unchanged"
	}
}

// Commit applies the blur rules to raw text typed by the user. It returns
// the text the element must display afterwards. An element is never left
// empty.
func Commit(baseline, raw string) (string, Outcome) {
	text := CleanText(raw)
	switch {
	case text == "":
		return baseline, Restored
	case text == overrides.NormalizeText(baseline):
		return baseline, Unchanged
	}
	return text, Changed
}

var (
	textPolicy     *bluemonday.Policy
	textPolicyOnce sync.Once
)

// CleanText strips markup the browser may have put into a contenteditable
// element and normalizes whitespace.
func CleanText(raw string) string {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return overrides.NormalizeText(html.UnescapeString(textPolicy.Sanitize(raw)))
}
