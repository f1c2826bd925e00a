package editor

import (
	"fmt"
	"strings"
	"time"

	"github.com/livefir/editpreview/internal/overrides"
)

// Axis is one independently committed style property of a button.
type Axis string

const (
	AxisBackground Axis = "bg"
	AxisText       Axis = "text"
	AxisRadius     Axis = "radius"
)

// Palette is the set of background swatches offered next to the free
// colour picker.
var Palette = []string{
	"#2563eb", "#0ea5e9", "#14b8a6", "#16a34a", "#65a30d",
	"#f59e0b", "#ea580c", "#dc2626", "#db2777", "#7c3aed",
	"#1f2937", "#ffffff",
}

// TextColors are the fixed text colour choices.
var TextColors = []Choice{
	{Name: "white", Value: "#ffffff"},
	{Name: "black", Value: "#000000"},
	{Name: "dark", Value: "#1f2937"},
}

// Radii are the fixed corner radius choices.
var Radii = []Choice{
	{Name: "sharp", Value: "0px"},
	{Name: "slight", Value: "6px"},
	{Name: "round", Value: "12px"},
	{Name: "pill", Value: "9999px"},
}

// Choice is a named fixed value.
type Choice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DefaultGrace is how long after opening the popover an outside click is
// ignored, so the click that opened it does not close it.
const DefaultGrace = 150 * time.Millisecond

// Rect is a bounding box in viewport pixels, as reported by the client.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a position in the preview container's coordinate space.
type Point struct {
	Top  float64 `json:"top"`
	Left float64 `json:"left"`
}

// PopoverGap is the distance between the popover and the button.
const PopoverGap = 8

// PopoverPosition anchors the popover directly above the button, in the
// container's coordinate space. The client translates it up by its own
// height. Left is clamped to the container edge.
func PopoverPosition(button, container Rect, scrollTop float64) Point {
	p := Point{
		Top:  button.Top - container.Top + scrollTop - PopoverGap,
		Left: button.Left - container.Left,
	}
	if p.Left < 0 {
		p.Left = 0
	}
	if p.Top < 0 {
		p.Top = 0
	}
	return p
}

// Popover is the open style popover for one button.
type Popover struct {
	Target   string
	Node     int
	Position Point
	Style    overrides.ButtonStyle
	OpenedAt time.Time
}

// ShouldClose reports whether a click closes the popover: the click lands
// outside both the popover and the originating button, after the grace
// delay.
func (p *Popover) ShouldClose(now time.Time, grace time.Duration, onButton, inPopover bool) bool {
	if p == nil || onButton || inPopover {
		return false
	}
	return now.Sub(p.OpenedAt) >= grace
}

// Change applies one axis to the popover's style and returns the full
// style to persist. Values are resolved against the fixed choices, and a
// free background colour must be a valid CSS colour.
func (p *Popover) Change(axis Axis, value string) (overrides.ButtonStyle, error) {
	value = strings.TrimSpace(value)
	var delta overrides.ButtonStyle
	switch axis {
	case AxisBackground:
		if !overrides.IsColor(value) {
			return p.Style, fmt.Errorf("invalid background colour %q", value)
		}
		delta.BgColor = strings.ToLower(value)
	case AxisText:
		v, ok := resolve(TextColors, value)
		if !ok {
			return p.Style, fmt.Errorf("invalid text colour %q", value)
		}
		delta.TextColor = v
	case AxisRadius:
		v, ok := resolve(Radii, value)
		if !ok {
			return p.Style, fmt.Errorf("invalid corner radius %q", value)
		}
		delta.Radius = v
	default:
		return p.Style, fmt.Errorf("unknown style axis %q", axis)
	}
	p.Style = p.Style.Merge(delta)
	return p.Style, nil
}

// Reset clears the popover's style. The caller sends nil to the host.
func (p *Popover) Reset() {
	p.Style = overrides.ButtonStyle{}
}

// resolve accepts a choice by name or by value.
func resolve(choices []Choice, v string) (string, bool) {
	for _, c := range choices {
		if strings.EqualFold(c.Name, v) || strings.EqualFold(c.Value, v) {
			return c.Value, true
		}
	}
	return "", false
}
