package editpreview

import (
	"github.com/livefir/editpreview/internal/editor"
	"github.com/livefir/editpreview/internal/overrides"
)

// Instruction ops the client carries out after applying a frame.
const (
	// OpEdit makes Node contenteditable, focuses it and selects its text.
	OpEdit = "edit"
	// OpBlur ends inline editing on Node.
	OpBlur = "blur"
	// OpPopover opens the style popover for Node at Position.
	OpPopover = "popover"
	// OpClosePopover removes the popover.
	OpClosePopover = "close-popover"
	// OpPickFile opens the image file picker.
	OpPickFile = "pick-file"
	// OpAlert shows Message to the user.
	OpAlert = "alert"
	// OpBusy dims Node while an upload runs.
	OpBusy = "busy"
)

// Frame is the tagged preview content.
type Frame struct {
	// HTML replaces the preview root's children.
	HTML string `json:"html"`
	// CSS replaces the generated stylesheet.
	CSS string `json:"css"`
}

// PopoverState is what the client needs to draw the style popover.
type PopoverState struct {
	Position   editor.Point          `json:"position"`
	Style      overrides.ButtonStyle `json:"style"`
	Palette    []string              `json:"palette"`
	TextColors []editor.Choice       `json:"textColors"`
	Radii      []editor.Choice       `json:"radii"`
}

// Instruction is a client-side effect.
type Instruction struct {
	Op       string        `json:"op"`
	Node     *int          `json:"node,omitempty"`
	Identity string        `json:"identity,omitempty"`
	Message  string        `json:"message,omitempty"`
	Popover  *PopoverState `json:"popover,omitempty"`
	Accept   string        `json:"accept,omitempty"`
}

// ResponseMetadata describes the action that produced a response.
type ResponseMetadata struct {
	Success bool              `json:"success"` // true if the action raised no error
	Errors  map[string]string `json:"errors"`
	Action  string            `json:"action,omitempty"`
	Mode    editor.Mode       `json:"mode"`
	// PreventNavigation tells the client the click was inside a link.
	PreventNavigation bool `json:"preventNavigation,omitempty"`
}

// Response is sent for every handled action and pushed after uploads.
type Response struct {
	Frame        *Frame            `json:"frame,omitempty"`
	Meta         *ResponseMetadata `json:"meta"`
	Instructions []Instruction     `json:"instructions,omitempty"`
}

func nodeRef(n int) *int {
	if n < 0 {
		return nil
	}
	return &n
}
