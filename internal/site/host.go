package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/livefir/editpreview"
	"github.com/livefir/editpreview/internal/auth"
	"github.com/livefir/editpreview/internal/content"
	"github.com/livefir/editpreview/internal/overrides"
)

// ErrForbidden is returned when a user opens another user's document.
var ErrForbidden = fmt.Errorf("%w: document belongs to another user", editpreview.ErrForbidden)

// Host serves one document to the preview. Every delta is folded into the
// document and saved before the callback returns, so the next Page
// reflects it.
type Host struct {
	store    *content.Store
	renderer *Renderer
	docID    string
	logger   *zap.Logger

	mu sync.Mutex
}

// NewHost creates a host for a stored document.
func NewHost(store *content.Store, renderer *Renderer, docID string, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		store:    store,
		renderer: renderer,
		docID:    docID,
		logger:   logger.Named("site").With(zap.String("doc", docID)),
	}
}

// Page renders the document with its current overrides.
func (h *Host) Page(ctx context.Context) (*editpreview.Page, error) {
	doc, err := h.store.Get(ctx, h.docID)
	if err != nil {
		return nil, err
	}
	src, err := h.renderer.Render(doc)
	if err != nil {
		return nil, err
	}
	return &editpreview.Page{
		HTML:      src,
		Overrides: doc.Generated.Overrides.Clone(),
		Dark:      doc.Dark(),
	}, nil
}

// OnImageReplace stores a replaced image URL.
func (h *Host) OnImageReplace(ctx context.Context, identity, url string) error {
	return h.update(ctx, "image", func(d *content.Document) { d.FoldImage(identity, url) })
}

// OnTextChange stores a text override keyed by the original text.
func (h *Host) OnTextChange(ctx context.Context, original, updated string) error {
	return h.update(ctx, "text", func(d *content.Document) { d.FoldText(original, updated) })
}

// OnButtonChange stores or, for a nil style, clears a button override.
func (h *Host) OnButtonChange(ctx context.Context, identity string, style *overrides.ButtonStyle) error {
	return h.update(ctx, "button", func(d *content.Document) { d.FoldButton(identity, style) })
}

// SwitchTemplate moves the document to another template, discarding its
// content overrides.
func (h *Host) SwitchTemplate(ctx context.Context, templateID string) error {
	if !h.renderer.Has(templateID) {
		return fmt.Errorf("unknown template %q", templateID)
	}
	return h.update(ctx, "template", func(d *content.Document) { d.SwitchTemplate(templateID) })
}

func (h *Host) update(ctx context.Context, kind string, fold func(*content.Document)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	doc, err := h.store.Get(ctx, h.docID)
	if err != nil {
		return err
	}
	fold(doc)
	if err := h.store.Save(ctx, doc); err != nil {
		h.logger.Warn("failed to persist override", zap.String("kind", kind), zap.Error(err))
		return err
	}
	h.logger.Debug("override persisted", zap.String("kind", kind))
	return nil
}

// Provider opens hosts for preview requests. The document is named by the
// "doc" query parameter and must belong to the requesting user.
type Provider struct {
	store    *content.Store
	renderer *Renderer
	resolver auth.Resolver
	logger   *zap.Logger

	mu    sync.Mutex
	hosts map[string]*Host
}

// NewProvider creates a provider.
func NewProvider(store *content.Store, renderer *Renderer, resolver auth.Resolver, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		store:    store,
		renderer: renderer,
		resolver: resolver,
		logger:   logger,
		hosts:    make(map[string]*Host),
	}
}

// Host implements editpreview.HostProvider.
func (p *Provider) Host(r *http.Request) (editpreview.Host, string, error) {
	docID := r.URL.Query().Get("doc")
	if docID == "" {
		return nil, "", fmt.Errorf("%w: missing doc parameter", editpreview.ErrPageNotFound)
	}
	user, err := p.resolver.Resolve(r)
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			return nil, "", fmt.Errorf("%w: %v", editpreview.ErrUnauthenticated, err)
		}
		return nil, "", err
	}
	doc, err := p.store.Get(r.Context(), docID)
	if errors.Is(err, content.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: %v", editpreview.ErrPageNotFound, err)
	}
	if err != nil {
		return nil, "", err
	}
	if doc.UserID != user.ID {
		return nil, "", ErrForbidden
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.hosts[docID]
	if !ok {
		h = NewHost(p.store, p.renderer, docID, p.logger)
		p.hosts[docID] = h
	}
	return h, docID, nil
}
