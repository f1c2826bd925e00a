// Package editpreview is the live editable preview of a generated site.
//
// A Host supplies the rendered page and the saved overrides; the preview
// tags the page, makes images, text and buttons editable in place and
// reports every edit back to the host as a sparse delta. The browser runs
// a thin client (served at /editpreview.js) that forwards clicks and key
// presses; all classification, state and rendering happens here.
package editpreview

import (
	"context"
	"net/http"

	"github.com/livefir/editpreview/internal/overrides"
	"github.com/livefir/editpreview/internal/upload"
)

// Page is one render of the host's site.
type Page struct {
	// HTML is the complete rendered document.
	HTML string
	// Overrides is the host's current override set. It must reflect every
	// delta the host has accepted.
	Overrides overrides.Set
	// Dark selects the dark-theme selectors for global styles.
	Dark bool
}

// Host owns the site content and persists the preview's deltas. The
// preview never mutates the template source.
type Host interface {
	Page(ctx context.Context) (*Page, error)
	// OnImageReplace is called once per successful image upload.
	OnImageReplace(ctx context.Context, identity, url string) error
	// OnTextChange is called with the element's original text as key.
	OnTextChange(ctx context.Context, original, updated string) error
	// OnButtonChange receives the full style for a button, or nil when
	// the user resets it.
	OnButtonChange(ctx context.Context, identity string, style *overrides.ButtonStyle) error
}

// HostProvider resolves the host for a request. The returned key names
// the document; sessions are kept per browser and key.
type HostProvider interface {
	Host(r *http.Request) (host Host, key string, err error)
}

// HostProviderFunc adapts a function to HostProvider.
type HostProviderFunc func(r *http.Request) (Host, string, error)

// Host calls f(r).
func (f HostProviderFunc) Host(r *http.Request) (Host, string, error) { return f(r) }

// HostFuncs builds a Host from functions. Nil callbacks accept the delta
// and do nothing.
type HostFuncs struct {
	PageFunc         func(ctx context.Context) (*Page, error)
	ImageReplaceFunc func(ctx context.Context, identity, url string) error
	TextChangeFunc   func(ctx context.Context, original, updated string) error
	ButtonChangeFunc func(ctx context.Context, identity string, style *overrides.ButtonStyle) error
}

// Page implements Host.
func (h HostFuncs) Page(ctx context.Context) (*Page, error) {
	if h.PageFunc == nil {
		return &Page{HTML: "<!DOCTYPE html><html><body></body></html>"}, nil
	}
	return h.PageFunc(ctx)
}

// OnImageReplace implements Host.
func (h HostFuncs) OnImageReplace(ctx context.Context, identity, url string) error {
	if h.ImageReplaceFunc == nil {
		return nil
	}
	return h.ImageReplaceFunc(ctx, identity, url)
}

// OnTextChange implements Host.
func (h HostFuncs) OnTextChange(ctx context.Context, original, updated string) error {
	if h.TextChangeFunc == nil {
		return nil
	}
	return h.TextChangeFunc(ctx, original, updated)
}

// OnButtonChange implements Host.
func (h HostFuncs) OnButtonChange(ctx context.Context, identity string, style *overrides.ButtonStyle) error {
	if h.ButtonChangeFunc == nil {
		return nil
	}
	return h.ButtonChangeFunc(ctx, identity, style)
}

// Uploader stores an image for the user behind r. *upload.Service
// implements it.
type Uploader interface {
	Upload(ctx context.Context, r *http.Request, f upload.File) (*upload.Result, error)
	MaxBytes() int64
}
