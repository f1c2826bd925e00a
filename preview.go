package editpreview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/livefir/editpreview/internal/dom"
	"github.com/livefir/editpreview/internal/editor"
	"github.com/livefir/editpreview/internal/overrides"
	"github.com/livefir/editpreview/internal/router"
	"github.com/livefir/editpreview/internal/stylesheet"
	"github.com/livefir/editpreview/internal/tagger"
	"github.com/livefir/editpreview/internal/upload"
)

// Classes and attributes the preview adds to the rendered tree.
const (
	RootID        = "pv-root"
	BusyClass     = "pv-uploading"
	SelectedClass = "pv-selected"
	AttrEditing   = "data-pv-editing"
)

// saveFailedMessage is shown when the host rejects a delta.
const saveFailedMessage = "Wijziging kon niet worden opgeslagen. Probeer het opnieuw."

// Session is one browser's editing session on one document. It owns the
// baselines, the focus mode, the open popover and the armed upload slot.
// Methods are safe for concurrent use; uploads run outside the lock.
type Session struct {
	host   Host
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	base    *tagger.Baselines
	mode    editor.Mode
	popover *editor.Popover
	// uploading is the image the next upload replaces. A second image
	// click re-arms it, even while an earlier upload is in flight.
	uploading string
	busy      map[string]bool
	last      *pass

	pushMu  sync.Mutex
	pushers map[int]func(*Response) error
	nextID  int
}

// pass is one tagged render.
type pass struct {
	doc   *html.Node
	root  *html.Node
	index *dom.Index
	tags  *tagger.Result
	set   overrides.Set
	css   string
}

// NewSession creates a session for host.
func NewSession(host Host, opts ...Option) *Session {
	return newSession(host, newConfig(opts))
}

func newSession(host Host, config Config) *Session {
	return &Session{
		host:    host,
		config:  config,
		logger:  config.Logger.Named("session"),
		base:    tagger.NewBaselines(),
		busy:    make(map[string]bool),
		pushers: make(map[int]func(*Response) error),
	}
}

// Mode returns the current focus mode.
func (s *Session) Mode() editor.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Render runs a fresh pass and returns the frame.
func (s *Session) Render(ctx context.Context) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.respond(ctx, "", nil, nil, true)
}

// Document renders the complete page for the first load, with the
// generated stylesheet in the head and the client script appended to the
// body.
func (s *Session) Document(ctx context.Context, scriptSrc string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.render(ctx)
	if err != nil {
		return "", err
	}
	head := dom.Find(p.doc, atom.Head)
	body := dom.Find(p.doc, atom.Body)
	if head != nil {
		style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style,
			Attr: []html.Attribute{{Key: "id", Val: "pv-style"}}}
		style.AppendChild(&html.Node{Type: html.TextNode, Data: p.css})
		head.AppendChild(style)
	}
	if body != nil && scriptSrc != "" {
		script := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script,
			Attr: []html.Attribute{{Key: "src", Val: scriptSrc}, {Key: "defer"}}}
		body.AppendChild(script)
	}
	return dom.Render(p.doc)
}

// Click routes a click on a rendered node.
func (s *Session) Click(ctx context.Context, ev ClickEvent) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.current(ctx)
	if err != nil {
		return s.respond(ctx, ActionClick, err, nil, false)
	}
	clicked, ok := p.index.Node(ev.Node)
	if !ok {
		return s.respond(ctx, ActionClick, nil, nil, false)
	}

	var instr []Instruction
	if s.popover != nil {
		if ev.InPopover {
			return s.respond(ctx, ActionClick, nil, nil, false)
		}
		btn, _ := p.index.ByIdentity(s.popover.Target)
		onButton := btn != nil && dom.Contains(btn, clicked)
		if !s.popover.ShouldClose(s.config.Now(), s.config.Grace, onButton, false) {
			return s.respond(ctx, ActionClick, nil, nil, false)
		}
		s.mode, _ = editor.Transition(s.mode, editor.Event{Kind: editor.ClosePopover})
		s.popover = nil
		instr = append(instr, Instruction{Op: OpClosePopover})
	}

	if s.mode.Kind == editor.EditingText {
		if n, ok := p.index.ByIdentity(s.mode.Target); ok && dom.Contains(n, clicked) {
			return s.respond(ctx, ActionClick, nil, instr, false)
		}
	}

	target := router.Classify(p.root, clicked)
	var actionErr error
	switch {
	case target.Kind == router.None:
		if s.mode.Kind == editor.EditingText {
			actionErr = s.leaveText(ctx, ev.EditingText, &instr)
		}

	case target.Kind.IsImage():
		if s.config.Uploader == nil {
			actionErr = errors.New("image uploads are not enabled")
			break
		}
		actionErr = s.enter(ctx, editor.Event{Kind: editor.BeginUpload, Target: target.Identity}, ev.EditingText, &instr)
		s.uploading = target.Identity
		instr = append(instr, Instruction{Op: OpPickFile, Identity: target.Identity, Accept: "image/*"})

	case target.Kind == router.Text:
		actionErr = s.enter(ctx, editor.Event{Kind: editor.BeginText, Target: target.Identity}, ev.EditingText, &instr)
		instr = append(instr, Instruction{Op: OpEdit, Identity: target.Identity})

	case target.Kind == router.Button:
		actionErr = s.enter(ctx, editor.Event{Kind: editor.BeginButton, Target: target.Identity}, ev.EditingText, &instr)
		style, _ := p.set.Button(target.Identity)
		s.popover = &editor.Popover{
			Target:   target.Identity,
			Position: editor.PopoverPosition(rectOf(ev, p.index.NumberOf(target.Node)), ev.Container, ev.ScrollTop),
			Style:    style,
			OpenedAt: s.config.Now(),
		}
		instr = append(instr, s.popoverInstruction())
	}

	resp := s.respond(ctx, ActionClick, actionErr, instr, true)
	resp.Meta.PreventNavigation = target.PreventNavigation
	return resp
}

// Key handles a key press in the element being edited.
func (s *Session) Key(ctx context.Context, ev KeyEvent) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode.Kind != editor.EditingText {
		return s.respond(ctx, ActionTextKey, nil, nil, false)
	}

	var instr []Instruction
	var err error
	switch editor.Key(ev.Key, ev.Shift) {
	case editor.KeyCommit:
		text := ev.Text
		err = s.leaveText(ctx, &text, &instr)
	case editor.KeyCancel:
		err = s.leaveText(ctx, nil, &instr)
	default:
		return s.respond(ctx, ActionTextKey, nil, nil, false)
	}
	return s.respond(ctx, ActionTextKey, err, instr, true)
}

// Blur commits the element being edited.
func (s *Session) Blur(ctx context.Context, ev BlurEvent) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode.Kind != editor.EditingText {
		return s.respond(ctx, ActionTextBlur, nil, nil, false)
	}
	var instr []Instruction
	text := ev.Text
	err := s.leaveText(ctx, &text, &instr)
	return s.respond(ctx, ActionTextBlur, err, instr, true)
}

// ButtonStyle commits one popover axis for the open button.
func (s *Session) ButtonStyle(ctx context.Context, axis editor.Axis, value string) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	action := "button." + string(axis)
	if s.popover == nil {
		return s.respond(ctx, action, FieldError{Field: "popover", Message: "no button selected"}, nil, false)
	}
	style, err := s.popover.Change(axis, value)
	if err != nil {
		return s.respond(ctx, action, NewFieldError("value", err), nil, false)
	}

	var instr []Instruction
	if err := s.host.OnButtonChange(ctx, s.popover.Target, &style); err != nil {
		return s.respond(ctx, action, s.hostFailed(err, &instr), instr, true)
	}
	s.config.Metrics.IncrementEdit("button")
	instr = append(instr, s.popoverInstruction())
	return s.respond(ctx, action, nil, instr, true)
}

// ButtonReset clears the open button's override. The host receives nil.
func (s *Session) ButtonReset(ctx context.Context) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.popover == nil {
		return s.respond(ctx, ActionButtonReset, FieldError{Field: "popover", Message: "no button selected"}, nil, false)
	}
	s.popover.Reset()

	var instr []Instruction
	if err := s.host.OnButtonChange(ctx, s.popover.Target, nil); err != nil {
		return s.respond(ctx, ActionButtonReset, s.hostFailed(err, &instr), instr, true)
	}
	s.config.Metrics.IncrementEdit("button")
	instr = append(instr, s.popoverInstruction())
	return s.respond(ctx, ActionButtonReset, nil, instr, true)
}

// ClosePopover closes the style popover.
func (s *Session) ClosePopover(ctx context.Context) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.popover == nil {
		return s.respond(ctx, ActionPopoverClose, nil, nil, false)
	}
	s.mode, _ = editor.Transition(s.mode, editor.Event{Kind: editor.ClosePopover})
	s.popover = nil
	return s.respond(ctx, ActionPopoverClose, nil, []Instruction{{Op: OpClosePopover}}, true)
}

// Upload replaces the armed image with f. Validation happens before any
// network call; on every failure the dimmed state is reverted and no
// override is recorded. The result goes to whichever image the slot names
// when the upload returns, so a second image click retargets it.
func (s *Session) Upload(ctx context.Context, r *http.Request, f upload.File) *Response {
	s.mu.Lock()
	started := s.uploading
	uploader := s.config.Uploader
	if started == "" || uploader == nil {
		defer s.mu.Unlock()
		return s.noUploadTarget(ctx)
	}
	s.busy[started] = true
	busy := s.respond(ctx, "upload", nil, []Instruction{{Op: OpBusy, Identity: started}}, true)
	s.mu.Unlock()
	s.broadcast(busy)

	res, err := uploader.Upload(ctx, r, f)

	s.mu.Lock()
	delete(s.busy, started)
	resp := s.finishUpload(ctx, started, res, err, len(f.Data))
	s.mu.Unlock()

	s.broadcast(resp)
	return resp
}

// RejectUpload ends the armed upload with err without storing anything,
// for files refused before they could be read.
func (s *Session) RejectUpload(ctx context.Context, err error) *Response {
	s.mu.Lock()
	if s.uploading == "" {
		defer s.mu.Unlock()
		return s.noUploadTarget(ctx)
	}
	resp := s.finishUpload(ctx, s.uploading, nil, err, 0)
	s.mu.Unlock()

	s.broadcast(resp)
	return resp
}

func (s *Session) noUploadTarget(ctx context.Context) *Response {
	var instr []Instruction
	err := s.alert(ErrNoUploadTarget, "Kies eerst een afbeelding om te vervangen.", &instr)
	return s.respond(ctx, "upload", err, instr, false)
}

// finishUpload spends the slot and applies the outcome. The caller holds
// s.mu.
func (s *Session) finishUpload(ctx context.Context, started string, res *upload.Result, err error, size int) *Response {
	target := s.uploading
	if target == "" {
		target = started
	}
	s.uploading = ""
	s.mode, _ = editor.Transition(s.mode, editor.Event{Kind: editor.EndUpload})

	var instr []Instruction
	var actionErr error
	switch {
	case err != nil:
		s.config.Metrics.ObserveUpload(uploadOutcome(err), size)
		s.logger.Info("upload rejected", zap.String("target", target), zap.Error(err))
		actionErr = s.alert(err, upload.UserMessage(err), &instr)
	default:
		if herr := s.host.OnImageReplace(ctx, target, res.URL); herr != nil {
			s.config.Metrics.ObserveUpload("failed", size)
			actionErr = s.hostFailed(herr, &instr)
			break
		}
		s.config.Metrics.ObserveUpload("ok", size)
		s.config.Metrics.IncrementEdit("image")
	}
	return s.respond(ctx, "upload", actionErr, instr, true)
}

// handleAction dispatches a client message.
func (s *Session) handleAction(ctx context.Context, msg message) *Response {
	data := newActionData(msg.Data)
	switch msg.Action {
	case ActionClick:
		var ev ClickEvent
		if err := data.BindAndValidate(&ev, actionValidator); err != nil {
			return s.reject(msg.Action, err)
		}
		return s.Click(ctx, ev)
	case ActionTextKey:
		var ev KeyEvent
		if err := data.BindAndValidate(&ev, actionValidator); err != nil {
			return s.reject(msg.Action, err)
		}
		return s.Key(ctx, ev)
	case ActionTextBlur:
		return s.Blur(ctx, BlurEvent{Text: data.GetString("text")})
	case ActionButtonBg, ActionButtonText, ActionButtonRadius:
		var ev StyleEvent
		if err := data.BindAndValidate(&ev, actionValidator); err != nil {
			return s.reject(msg.Action, err)
		}
		axis, _ := axisFor(msg.Action)
		return s.ButtonStyle(ctx, axis, ev.Value)
	case ActionButtonReset:
		return s.ButtonReset(ctx)
	case ActionPopoverClose:
		return s.ClosePopover(ctx)
	}
	return s.reject(msg.Action, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action))
}

func (s *Session) reject(action string, err error) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.respond(context.Background(), action, err, nil, false)
}

// enter moves to a new mode and carries out the exits of the old one.
// blurText is the live text of a text edit that the transition closes;
// without it the edit is cancelled.
func (s *Session) enter(ctx context.Context, ev editor.Event, blurText *string, instr *[]Instruction) error {
	next, exits := editor.Transition(s.mode, ev)
	s.mode = next

	var errs []error
	for _, x := range exits {
		switch x.From {
		case editor.EditingText:
			if err := s.commitText(ctx, x.Target, blurText, instr); err != nil {
				errs = append(errs, err)
			}
		case editor.EditingButton:
			s.popover = nil
			*instr = append(*instr, Instruction{Op: OpClosePopover})
		}
	}
	return errors.Join(errs...)
}

func (s *Session) leaveText(ctx context.Context, text *string, instr *[]Instruction) error {
	id := s.mode.Target
	s.mode, _ = editor.Transition(s.mode, editor.Event{Kind: editor.EndText, Target: id})
	return s.commitText(ctx, id, text, instr)
}

// commitText applies the blur rules to a finished edit. A nil text
// cancels: the next render puts the pre-edit text back.
func (s *Session) commitText(ctx context.Context, id string, text *string, instr *[]Instruction) error {
	*instr = append(*instr, Instruction{Op: OpBlur, Identity: id})
	if text == nil {
		return nil
	}
	baseline, ok := s.base.Text(id)
	if !ok {
		return nil
	}

	display, outcome := editor.Commit(baseline, *text)
	var current overrides.Set
	if s.last != nil {
		current = s.last.set
	}
	existing, hasOverride := current.TextFor(baseline)

	switch outcome {
	case editor.Changed:
		if hasOverride && existing == display {
			return nil
		}
	case editor.Unchanged:
		// Typing the original back removes the override.
		if !hasOverride {
			return nil
		}
		display = baseline
	default:
		return nil
	}

	if err := s.host.OnTextChange(ctx, baseline, display); err != nil {
		return s.hostFailed(err, instr)
	}
	s.config.Metrics.IncrementEdit("text")
	return nil
}

func (s *Session) hostFailed(err error, instr *[]Instruction) error {
	s.logger.Warn("host rejected change", zap.Error(err))
	return s.alert(err, saveFailedMessage, instr)
}

func (s *Session) alert(err error, msg string, instr *[]Instruction) error {
	*instr = append(*instr, Instruction{Op: OpAlert, Message: msg})
	return err
}

func (s *Session) popoverInstruction() Instruction {
	return Instruction{
		Op:       OpPopover,
		Identity: s.popover.Target,
		Popover: &PopoverState{
			Position:   s.popover.Position,
			Style:      s.popover.Style,
			Palette:    editor.Palette,
			TextColors: editor.TextColors,
			Radii:      editor.Radii,
		},
	}
}

// current returns the last pass, rendering one if the session has none.
func (s *Session) current(ctx context.Context) (*pass, error) {
	if s.last != nil {
		return s.last, nil
	}
	return s.render(ctx)
}

// render runs one tag pass over a fresh render of the host page.
func (s *Session) render(ctx context.Context) (*pass, error) {
	start := time.Now()
	p, err := s.renderPass(ctx)
	s.config.Metrics.ObserveRender(time.Since(start), err)
	if err != nil {
		s.logger.Error("render failed", zap.Error(err))
		return nil, err
	}
	s.last = p
	return p, nil
}

func (s *Session) renderPass(ctx context.Context) (*pass, error) {
	page, err := s.host.Page(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}
	if page == nil {
		return nil, errors.New("host returned no page")
	}
	doc, err := dom.Parse(page.HTML)
	if err != nil {
		return nil, err
	}
	root := previewRoot(doc)
	if root == nil {
		return nil, errors.New("page has no body")
	}

	editing := ""
	if s.mode.Kind == editor.EditingText {
		editing = s.mode.Target
	}
	set := page.Overrides.Clone()
	tags := tagger.Run(root, &set, s.base, tagger.Options{Editing: editing})
	idx := dom.NewIndex(root)

	if editing != "" {
		if n, ok := idx.ByIdentity(editing); ok {
			dom.SetAttr(n, "contenteditable", "true")
			dom.SetAttr(n, AttrEditing, "")
		} else {
			s.mode, _ = editor.Transition(s.mode, editor.Event{Kind: editor.EndText})
		}
	}
	for id := range s.busy {
		if n, ok := idx.ByIdentity(id); ok {
			dom.AddClass(n, BusyClass)
		}
	}
	if s.popover != nil {
		if n, ok := idx.ByIdentity(s.popover.Target); ok {
			s.popover.Node = idx.NumberOf(n)
			dom.AddClass(n, SelectedClass)
		} else {
			s.popover = nil
			s.mode, _ = editor.Transition(s.mode, editor.Event{Kind: editor.ClosePopover})
		}
	}

	sheet := stylesheet.Build(set.CustomStyles, stylesheet.Theme{Dark: page.Dark})
	sheet.AddHover("", tags.Hover)

	return &pass{doc: doc, root: root, index: idx, tags: tags, set: set, css: sheet.Minified()}, nil
}

// respond builds the response for an action, rendering a frame when
// withFrame is set, and resolves instruction identities to node numbers
// of the frame the client will hold.
func (s *Session) respond(ctx context.Context, action string, err error, instr []Instruction, withFrame bool) *Response {
	resp := &Response{
		Meta: &ResponseMetadata{Action: action},
	}
	errs := errorMap(err)

	if withFrame {
		if p, rerr := s.render(ctx); rerr != nil {
			errs[generalErrorKey] = rerr.Error()
		} else if frame, ferr := s.frame(p); ferr != nil {
			errs[generalErrorKey] = ferr.Error()
		} else {
			resp.Frame = frame
		}
	}

	for i := range instr {
		if instr[i].Identity == "" || s.last == nil {
			continue
		}
		if n, ok := s.last.index.ByIdentity(instr[i].Identity); ok {
			instr[i].Node = nodeRef(s.last.index.NumberOf(n))
		}
	}
	resp.Instructions = instr
	resp.Meta.Errors = errs
	resp.Meta.Success = len(errs) == 0
	resp.Meta.Mode = s.mode
	return resp
}

func (s *Session) frame(p *pass) (*Frame, error) {
	out, err := dom.RenderChildren(p.root)
	if err != nil {
		return nil, err
	}
	if s.config.Minify {
		out = dom.MinifyHTML(out)
	}
	return &Frame{HTML: out, CSS: p.css}, nil
}

// attach registers a push target for server-initiated responses and
// returns the function that removes it.
func (s *Session) attach(push func(*Response) error) func() {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	id := s.nextID
	s.nextID++
	s.pushers[id] = push
	return func() {
		s.pushMu.Lock()
		defer s.pushMu.Unlock()
		delete(s.pushers, id)
	}
}

func (s *Session) broadcast(resp *Response) {
	s.pushMu.Lock()
	pushers := make([]func(*Response) error, 0, len(s.pushers))
	for _, p := range s.pushers {
		pushers = append(pushers, p)
	}
	s.pushMu.Unlock()

	for _, push := range pushers {
		if err := push(resp); err != nil {
			s.logger.Debug("push failed", zap.Error(err))
		}
	}
}

// previewRoot is the element with id pv-root, or the body.
func previewRoot(doc *html.Node) *html.Node {
	var root *html.Node
	dom.Walk(doc, func(n *html.Node) bool {
		if root != nil {
			return false
		}
		if v, _ := dom.Attr(n, "id"); v == RootID {
			root = n
			return false
		}
		return true
	})
	if root != nil {
		return root
	}
	return dom.Find(doc, atom.Body)
}

// rectOf picks the reported rect of node from the click path, falling
// back to the clicked element's.
func rectOf(ev ClickEvent, node int) editor.Rect {
	for _, nr := range ev.Path {
		if nr.Node == node {
			return nr.Rect
		}
	}
	return ev.Rect
}

func uploadOutcome(err error) string {
	var verr *upload.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, upload.ErrNotAuthenticated):
		return "unauthenticated"
	case errors.Is(err, upload.ErrRateLimited):
		return "limited"
	}
	return "failed"
}
