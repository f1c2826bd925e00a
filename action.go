package editpreview

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/livefir/editpreview/internal/editor"
)

// Actions the client sends.
const (
	ActionClick        = "click"
	ActionTextKey      = "text.key"
	ActionTextBlur     = "text.blur"
	ActionButtonBg     = "button.bg"
	ActionButtonText   = "button.text"
	ActionButtonRadius = "button.radius"
	ActionButtonReset  = "button.reset"
	ActionPopoverClose = "popover.close"
)

// message is an action message from the client
type message struct {
	Action string                 `json:"action"` // one of the Action constants
	Data   map[string]interface{} `json:"data"`
}

// ActionData wraps action data with utilities for binding and validation
type ActionData struct {
	raw   map[string]interface{}
	bytes []byte // Cached JSON for efficient binding
}

// newActionData creates ActionData from a map (internal use only)
func newActionData(data map[string]interface{}) *ActionData {
	return &ActionData{raw: data}
}

// Bind unmarshals the data into a struct
func (a *ActionData) Bind(v interface{}) error {
	if a.bytes == nil {
		var err error
		a.bytes, err = json.Marshal(a.raw)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}
	return json.Unmarshal(a.bytes, v)
}

// BindAndValidate binds data to struct and validates it in one step
func (a *ActionData) BindAndValidate(v interface{}, validate *validator.Validate) error {
	if err := a.Bind(v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return ValidationToMultiError(err)
	}
	return nil
}

// GetString extracts a string value
func (a *ActionData) GetString(key string) string {
	if v, ok := a.raw[key].(string); ok {
		return v
	}
	return ""
}

// actionValidator checks bound action payloads.
var actionValidator = validator.New(validator.WithRequiredStructEnabled())

// NodeRect is the bounding box of one element on the click path.
type NodeRect struct {
	Node int         `json:"node"`
	Rect editor.Rect `json:"rect"`
}

// ClickEvent is a click inside the preview.
type ClickEvent struct {
	// Node is the data-pv-node number of the clicked element.
	Node int `json:"node" validate:"min=0"`
	// Rect is the bounding box of the node that was clicked, and
	// Container the preview root's. Both are viewport coordinates.
	Rect      editor.Rect `json:"rect"`
	Container editor.Rect `json:"container"`
	ScrollTop float64     `json:"scrollTop"`
	// Path holds the rects of the clicked element's ancestors up to the
	// root, so the popover can be placed at the button that was resolved.
	Path []NodeRect `json:"path,omitempty"`
	// InPopover is set for clicks inside the style popover.
	InPopover bool `json:"inPopover"`
	// EditingText carries the live text of the element being edited, if
	// any, so an implicit exit can commit it.
	EditingText *string `json:"editingText,omitempty"`
}

// KeyEvent is a key press in the element being edited.
type KeyEvent struct {
	Key   string `json:"key" validate:"required"`
	Shift bool   `json:"shift"`
	// Text is the element's current text.
	Text string `json:"text"`
}

// BlurEvent ends an inline edit.
type BlurEvent struct {
	Text string `json:"text"`
}

// StyleEvent is one popover choice.
type StyleEvent struct {
	Value string `json:"value" validate:"required,max=64"`
}

// axisFor maps a button action to its popover axis.
func axisFor(action string) (editor.Axis, bool) {
	switch action {
	case ActionButtonBg:
		return editor.AxisBackground, true
	case ActionButtonText:
		return editor.AxisText, true
	case ActionButtonRadius:
		return editor.AxisRadius, true
	}
	return "", false
}

// parseActionFromHTTP parses an action message from an HTTP POST body
func parseActionFromHTTP(w http.ResponseWriter, r *http.Request) (message, error) {
	var msg message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&msg); err != nil {
		return message{}, fmt.Errorf("failed to parse action: %w", err)
	}
	return normalizeMessage(msg), nil
}

// parseActionFromWebSocket parses an action message from WebSocket message bytes
func parseActionFromWebSocket(data []byte) (message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return message{}, fmt.Errorf("failed to parse action: %w", err)
	}
	return normalizeMessage(msg), nil
}

func normalizeMessage(msg message) message {
	msg.Action = strings.TrimSpace(msg.Action)
	if msg.Data == nil {
		msg.Data = make(map[string]interface{})
	}
	return msg
}

// writeWebSocket writes an encoded response to a WebSocket connection
func writeWebSocket(conn *websocket.Conn, payload []byte) error {
	return conn.WriteMessage(websocket.TextMessage, payload)
}
