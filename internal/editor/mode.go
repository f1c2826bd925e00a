// Package editor holds the preview's editing state: one explicit mode with
// a single transition function, the inline text editor rules and the
// button style popover.
package editor

import "fmt"

// ModeKind enumerates the exclusive focus modes.
type ModeKind int

const (
	Idle ModeKind = iota
	EditingText
	EditingButton
	UploadingImage
)

func (k ModeKind) String() string {
	switch k {
	case EditingText:
		return "editing-text"
	case EditingButton:
		return "editing-button"
	case UploadingImage:
		return "uploading-image"
	default:
		return "idle"
	}
}

// Mode is the current focus mode and the identity it applies to.
type Mode struct {
	Kind   ModeKind `json:"kind"`
	Target string   `json:"target,omitempty"`
}

func (m Mode) String() string {
	if m.Kind == Idle {
		return m.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", m.Kind, m.Target)
}

// EventKind enumerates mode transitions.
type EventKind int

const (
	// BeginText enters inline text editing on Target.
	BeginText EventKind = iota
	// BeginButton opens the style popover for Target.
	BeginButton
	// BeginUpload starts the image replacement flow for Target.
	BeginUpload
	// EndText leaves text editing (commit or cancel already handled).
	EndText
	// ClosePopover closes the style popover.
	ClosePopover
	// EndUpload finishes the image flow, successfully or not.
	EndUpload
)

// Event drives the machine.
type Event struct {
	Kind   EventKind
	Target string
}

// Exit is a side effect the caller must carry out because a transition
// left a mode implicitly.
type Exit struct {
	From   ModeKind
	Target string
}

// Transition is the only place modes change. Entering any mode leaves the
// current one; the returned exits tell the caller which open affordance
// was closed on the way (a blurred text edit, a dismissed popover).
// Events that do not match the current mode are ignored.
func Transition(m Mode, ev Event) (Mode, []Exit) {
	switch ev.Kind {
	case BeginText:
		return enter(m, Mode{Kind: EditingText, Target: ev.Target})
	case BeginButton:
		return enter(m, Mode{Kind: EditingButton, Target: ev.Target})
	case BeginUpload:
		return enter(m, Mode{Kind: UploadingImage, Target: ev.Target})
	case EndText:
		return leave(m, EditingText, ev.Target)
	case ClosePopover:
		return leave(m, EditingButton, ev.Target)
	case EndUpload:
		return leave(m, UploadingImage, ev.Target)
	}
	return m, nil
}

func enter(cur, next Mode) (Mode, []Exit) {
	if cur == next {
		return cur, nil
	}
	if cur.Kind == Idle {
		return next, nil
	}
	return next, []Exit{{From: cur.Kind, Target: cur.Target}}
}

// leave returns to idle when kind matches; an empty target matches any.
func leave(cur Mode, kind ModeKind, target string) (Mode, []Exit) {
	if cur.Kind != kind || (target != "" && cur.Target != target) {
		return cur, nil
	}
	return Mode{}, nil
}
