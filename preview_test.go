package editpreview

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/livefir/editpreview/internal/auth"
	"github.com/livefir/editpreview/internal/dom"
	"github.com/livefir/editpreview/internal/editor"
	"github.com/livefir/editpreview/internal/overrides"
	"github.com/livefir/editpreview/internal/storage"
	"github.com/livefir/editpreview/internal/upload"
)

const testPage = `<!DOCTYPE html><html><head><title>Praktijk</title></head><body>
<nav><a href="/"><img class="logo" src="/logo.png" alt="Logo"></a><a class="btn" href="#contact">Afspraak maken</a></nav>
<section class="reveal"><h1>Welkom bij onze praktijk</h1><p>Wij helpen u graag.</p></section>
<p><a href="/over">Lees meer</a></p>
<img src="/team.jpg" alt="Team">
<footer>Verder</footer>
</body></html>`

// memoryHost folds deltas into an in-memory override set.
type memoryHost struct {
	mu    sync.Mutex
	html  string
	set   overrides.Set
	calls []string
	fail  error
}

func newMemoryHost() *memoryHost {
	return &memoryHost{html: testPage}
}

func (h *memoryHost) Page(context.Context) (*Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &Page{HTML: h.html, Overrides: h.set.Clone()}, nil
}

func (h *memoryHost) OnImageReplace(_ context.Context, id, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "image "+id+" "+url)
	if h.fail != nil {
		return h.fail
	}
	h.set.SetImage(id, url)
	return nil
}

func (h *memoryHost) OnTextChange(_ context.Context, original, updated string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "text "+original+" -> "+updated)
	if h.fail != nil {
		return h.fail
	}
	h.set.SetText(original, updated)
	return nil
}

func (h *memoryHost) OnButtonChange(_ context.Context, id string, style *overrides.ButtonStyle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if style == nil {
		h.calls = append(h.calls, "button "+id+" reset")
	} else {
		h.calls = append(h.calls, "button "+id+" "+style.BgColor+" "+style.TextColor+" "+style.Radius)
	}
	if h.fail != nil {
		return h.fail
	}
	h.set.SetButton(id, style)
	return nil
}

func (h *memoryHost) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSession(t *testing.T, host Host, opts ...Option) (*Session, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 10, 9, 10, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s := NewSession(host, opts...)
	resp := s.Render(context.Background())
	require.NotNil(t, resp.Frame, "initial render failed: %v", resp.Meta.Errors)
	return s, clock
}

// node returns the number of the first element of the last frame that
// matches m.
func node(t *testing.T, s *Session, m dom.Matcher) int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	found := dom.Query(s.last.root, m)
	require.NotEmpty(t, found, "no matching element in frame")
	return s.last.index.NumberOf(found[0])
}

func tag(name string) dom.Matcher {
	return func(n *html.Node) bool { return dom.IsElement(n) && n.Data == name }
}

func withAttr(key, val string) dom.Matcher {
	return func(n *html.Node) bool {
		v, ok := dom.Attr(n, key)
		return ok && v == val
	}
}

func text(s string) *string { return &s }

func findOp(resp *Response, op string) *Instruction {
	for i := range resp.Instructions {
		if resp.Instructions[i].Op == op {
			return &resp.Instructions[i]
		}
	}
	return nil
}

func pngBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	return data
}

func newUploader(t *testing.T) *upload.Service {
	t.Helper()
	bucket, err := storage.NewFSBucket(t.TempDir(), "/media")
	require.NoError(t, err)
	return upload.NewService(bucket, auth.StaticResolver{User: auth.User{ID: "u1"}}, upload.Config{
		Now: func() time.Time { return time.UnixMilli(1760000000000) },
	}, nil)
}

func TestSession_ImageReplacement(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, _ := newTestSession(t, host, WithUploader(newUploader(t)))

	resp := s.Click(ctx, ClickEvent{Node: node(t, s, withAttr("src", "/team.jpg"))})
	pick := findOp(resp, OpPickFile)
	require.NotNil(t, pick)
	assert.Equal(t, "image-1", pick.Identity)
	assert.Equal(t, "image/*", pick.Accept)
	assert.Equal(t, editor.UploadingImage, s.Mode().Kind)

	r := httptest.NewRequest("POST", "/upload", nil)

	// Too large: rejected before any network call, no callback.
	resp = s.Upload(ctx, r, upload.File{Name: "big.png", ContentType: "image/png", Data: pngBytes(6 << 20)})
	assert.False(t, resp.Meta.Success)
	alert := findOp(resp, OpAlert)
	require.NotNil(t, alert)
	assert.Contains(t, alert.Message, "te groot")
	assert.Empty(t, host.Calls())
	assert.Equal(t, editor.Idle, s.Mode().Kind)
	assert.NotContains(t, resp.Frame.HTML, BusyClass)

	// The slot was spent; re-arm it.
	s.Click(ctx, ClickEvent{Node: node(t, s, withAttr("data-pv-id", "image-1"))})
	resp = s.Upload(ctx, r, upload.File{Name: "team.png", ContentType: "image/png", Data: pngBytes(200 << 10)})
	require.True(t, resp.Meta.Success, "errors: %v", resp.Meta.Errors)

	calls := host.Calls()
	require.Len(t, calls, 1)
	assert.Regexp(t, `^image image-1 /media/u1/1760000000000-[0-9a-f]{12}\.png$`, calls[0])
	assert.Contains(t, resp.Frame.HTML, "/media/u1/1760000000000-")
	assert.NotContains(t, resp.Frame.HTML, `src="/team.jpg"`)
}

func TestSession_UploadWithoutTarget(t *testing.T) {
	host := newMemoryHost()
	s, _ := newTestSession(t, host, WithUploader(newUploader(t)))

	resp := s.Upload(context.Background(), httptest.NewRequest("POST", "/upload", nil),
		upload.File{Name: "a.png", Data: pngBytes(1024)})
	assert.False(t, resp.Meta.Success)
	assert.NotNil(t, findOp(resp, OpAlert))
	assert.Empty(t, host.Calls())
}

func TestSession_UploadPushesBusyFrame(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, _ := newTestSession(t, host, WithUploader(newUploader(t)))

	var pushed []*Response
	detach := s.attach(func(r *Response) error {
		pushed = append(pushed, r)
		return nil
	})
	defer detach()

	s.Click(ctx, ClickEvent{Node: node(t, s, withAttr("src", "/team.jpg"))})
	s.Upload(ctx, httptest.NewRequest("POST", "/upload", nil), upload.File{Name: "a.png", Data: pngBytes(1024)})

	require.Len(t, pushed, 2)
	assert.NotNil(t, findOp(pushed[0], OpBusy))
	assert.Contains(t, pushed[0].Frame.HTML, BusyClass)
	assert.NotContains(t, pushed[1].Frame.HTML, BusyClass)
}

// gatedUploader holds every upload until release is closed.
type gatedUploader struct {
	*upload.Service
	started chan struct{}
	release chan struct{}
}

func (g *gatedUploader) Upload(ctx context.Context, r *http.Request, f upload.File) (*upload.Result, error) {
	close(g.started)
	<-g.release
	return g.Service.Upload(ctx, r, f)
}

func TestSession_ImageClickDuringUploadRetargets(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	gate := &gatedUploader{Service: newUploader(t), started: make(chan struct{}), release: make(chan struct{})}
	s, _ := newTestSession(t, host, WithUploader(gate))

	s.Click(ctx, ClickEvent{Node: node(t, s, withAttr("src", "/team.jpg"))})
	done := make(chan *Response, 1)
	go func() {
		done <- s.Upload(ctx, httptest.NewRequest("POST", "/upload", nil),
			upload.File{Name: "a.png", ContentType: "image/png", Data: pngBytes(1024)})
	}()
	<-gate.started

	resp := s.Click(ctx, ClickEvent{Node: node(t, s, withAttr("data-pv-id", "image-0"))})
	require.NotNil(t, findOp(resp, OpPickFile))
	close(gate.release)
	resp = <-done
	require.True(t, resp.Meta.Success, "errors: %v", resp.Meta.Errors)

	calls := host.Calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0], "image image-0 /media/u1/"), calls[0])
	assert.Equal(t, editor.Idle, s.Mode().Kind)

	// The slot is spent.
	resp = s.Upload(ctx, httptest.NewRequest("POST", "/upload", nil),
		upload.File{Name: "b.png", ContentType: "image/png", Data: pngBytes(1024)})
	assert.False(t, resp.Meta.Success)
	assert.Len(t, host.Calls(), 1)
}

func TestSession_RejectUpload(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, _ := newTestSession(t, host, WithUploader(newUploader(t)))

	s.Click(ctx, ClickEvent{Node: node(t, s, withAttr("src", "/team.jpg"))})
	resp := s.RejectUpload(ctx, upload.TooLarge(5<<20))
	assert.False(t, resp.Meta.Success)
	alert := findOp(resp, OpAlert)
	require.NotNil(t, alert)
	assert.Equal(t, "Afbeelding is te groot (max 5 MB).", alert.Message)
	assert.Equal(t, editor.Idle, s.Mode().Kind)
	assert.Empty(t, host.Calls())

	resp = s.RejectUpload(ctx, upload.TooLarge(5<<20))
	assert.NotNil(t, findOp(resp, OpAlert), "no armed image")
}

func TestSession_TextEditing(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, _ := newTestSession(t, host)

	resp := s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})
	edit := findOp(resp, OpEdit)
	require.NotNil(t, edit)
	require.NotNil(t, edit.Node)
	assert.Equal(t, editor.Mode{Kind: editor.EditingText, Target: edit.Identity}, s.Mode())
	assert.Contains(t, resp.Frame.HTML, `contenteditable="true"`)

	resp = s.Blur(ctx, BlurEvent{Text: "  Welkom   in de praktijk "})
	assert.True(t, resp.Meta.Success)
	assert.Equal(t, []string{"text Welkom bij onze praktijk -> Welkom in de praktijk"}, host.Calls())
	assert.Contains(t, resp.Frame.HTML, "Welkom in de praktijk")
	assert.NotContains(t, resp.Frame.HTML, "contenteditable")
	assert.Equal(t, editor.Idle, s.Mode().Kind)

	// Typing the original back removes the override.
	s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})
	resp = s.Blur(ctx, BlurEvent{Text: "Welkom bij onze praktijk"})
	assert.Len(t, host.Calls(), 2)
	assert.Equal(t, "text Welkom bij onze praktijk -> Welkom bij onze praktijk", host.Calls()[1])
	assert.Contains(t, resp.Frame.HTML, "Welkom bij onze praktijk")

	// Unchanged with no override: nothing is emitted.
	s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})
	s.Blur(ctx, BlurEvent{Text: "Welkom bij onze praktijk"})
	assert.Len(t, host.Calls(), 2)

	// Empty: the baseline goes back in, nothing is emitted.
	s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})
	resp = s.Blur(ctx, BlurEvent{Text: " \n "})
	assert.Len(t, host.Calls(), 2)
	assert.Contains(t, resp.Frame.HTML, "Welkom bij onze praktijk")
}

func TestSession_TextKeys(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, _ := newTestSession(t, host)

	s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})

	resp := s.Key(ctx, KeyEvent{Key: "Enter", Shift: true, Text: "Welkom\n"})
	assert.Nil(t, resp.Frame)
	assert.Equal(t, editor.EditingText, s.Mode().Kind)

	resp = s.Key(ctx, KeyEvent{Key: "Escape", Text: "weggooien"})
	assert.NotNil(t, findOp(resp, OpBlur))
	assert.Empty(t, host.Calls())
	assert.Equal(t, editor.Idle, s.Mode().Kind)
	assert.Contains(t, resp.Frame.HTML, "Welkom bij onze praktijk")

	s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})
	s.Key(ctx, KeyEvent{Key: "Enter", Text: "Nieuwe titel"})
	assert.Equal(t, []string{"text Welkom bij onze praktijk -> Nieuwe titel"}, host.Calls())
	assert.Equal(t, editor.Idle, s.Mode().Kind)
}

func TestSession_ClickElsewhereCommitsText(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, _ := newTestSession(t, host)

	s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})
	resp := s.Click(ctx, ClickEvent{Node: node(t, s, tag("footer")), EditingText: text("Andere titel")})

	assert.Equal(t, []string{"text Welkom bij onze praktijk -> Andere titel"}, host.Calls())
	assert.NotNil(t, findOp(resp, OpBlur))
	assert.Equal(t, editor.Idle, s.Mode().Kind)
}

func TestSession_EditingTextIsRevealed(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, newMemoryHost())

	s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})
	s.mu.Lock()
	section := dom.Query(s.last.root, tag("section"))[0]
	s.mu.Unlock()
	assert.False(t, dom.HasClass(section, "is-visible"), "section around the edited text must not be force-revealed")
}

func TestSession_ButtonPopover(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, clock := newTestSession(t, host)

	btn := node(t, s, withAttr("class", "btn"))
	resp := s.Click(ctx, ClickEvent{
		Node:      btn,
		Path:      []NodeRect{{Node: btn, Rect: editor.Rect{Top: 100, Left: 40, Width: 120, Height: 40}}},
		Container: editor.Rect{Top: 20, Left: 10},
	})
	pop := findOp(resp, OpPopover)
	require.NotNil(t, pop)
	require.NotNil(t, pop.Popover)
	assert.Equal(t, "button-0", pop.Identity)
	assert.Equal(t, editor.Point{Top: 72, Left: 30}, pop.Popover.Position)
	assert.True(t, resp.Meta.PreventNavigation)
	assert.Equal(t, editor.EditingButton, s.Mode().Kind)

	resp = s.ButtonStyle(ctx, editor.AxisBackground, "#FF0000")
	require.True(t, resp.Meta.Success, "errors: %v", resp.Meta.Errors)
	resp = s.ButtonStyle(ctx, editor.AxisRadius, "pill")
	require.True(t, resp.Meta.Success)
	assert.Equal(t, []string{
		"button button-0 #ff0000  ",
		"button button-0 #ff0000  9999px",
	}, host.Calls())
	assert.Contains(t, resp.Frame.CSS, "button-0")
	assert.Contains(t, resp.Frame.CSS, ":hover")
	assert.Contains(t, resp.Frame.HTML, "background-color: #ff0000 !important")

	resp = s.ButtonStyle(ctx, editor.AxisText, "purple")
	assert.False(t, resp.Meta.Success)
	assert.Contains(t, resp.Meta.Errors, "value")

	resp = s.ButtonReset(ctx)
	require.True(t, resp.Meta.Success)
	assert.Equal(t, "button button-0 reset", host.Calls()[2])
	assert.NotContains(t, resp.Frame.CSS, "button-0")

	// Outside click within the grace period is ignored.
	footer := node(t, s, tag("footer"))
	s.Click(ctx, ClickEvent{Node: footer})
	assert.Equal(t, editor.EditingButton, s.Mode().Kind)

	// Clicks inside the popover never close it.
	clock.Advance(time.Second)
	s.Click(ctx, ClickEvent{Node: footer, InPopover: true})
	assert.Equal(t, editor.EditingButton, s.Mode().Kind)

	resp = s.Click(ctx, ClickEvent{Node: footer})
	assert.NotNil(t, findOp(resp, OpClosePopover))
	assert.Equal(t, editor.Idle, s.Mode().Kind)
}

func TestSession_ButtonStyleWithoutPopover(t *testing.T) {
	s, _ := newTestSession(t, newMemoryHost())
	resp := s.ButtonStyle(context.Background(), editor.AxisBackground, "#ff0000")
	assert.False(t, resp.Meta.Success)
	assert.Contains(t, resp.Meta.Errors, "popover")
}

func TestSession_ModesAreExclusive(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, clock := newTestSession(t, host)

	s.Click(ctx, ClickEvent{Node: node(t, s, withAttr("class", "btn"))})
	require.Equal(t, editor.EditingButton, s.Mode().Kind)
	clock.Advance(time.Second)

	resp := s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})
	assert.NotNil(t, findOp(resp, OpClosePopover))
	assert.NotNil(t, findOp(resp, OpEdit))
	assert.Equal(t, editor.EditingText, s.Mode().Kind)

	resp = s.ClosePopover(ctx)
	assert.Nil(t, findOp(resp, OpClosePopover))
	assert.Equal(t, editor.EditingText, s.Mode().Kind)
}

func TestSession_LinkNavigationPrevented(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, _ := newTestSession(t, host)

	resp := s.Click(ctx, ClickEvent{Node: node(t, s, withAttr("href", "/over"))})
	assert.True(t, resp.Meta.PreventNavigation)
	assert.NotNil(t, findOp(resp, OpEdit))

	resp = s.Click(ctx, ClickEvent{Node: node(t, s, withAttr("class", "logo"))})
	assert.True(t, resp.Meta.PreventNavigation)
	assert.Nil(t, findOp(resp, OpPickFile), "no uploader configured")
	assert.False(t, resp.Meta.Success)
}

func TestSession_HostFailureAlerts(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	host.fail = errors.New("database is locked")
	s, _ := newTestSession(t, host)

	s.Click(ctx, ClickEvent{Node: node(t, s, tag("h1"))})
	resp := s.Blur(ctx, BlurEvent{Text: "Nieuw"})
	assert.False(t, resp.Meta.Success)
	alert := findOp(resp, OpAlert)
	require.NotNil(t, alert)
	assert.Equal(t, saveFailedMessage, alert.Message)
	assert.Contains(t, resp.Frame.HTML, "Welkom bij onze praktijk")
}

func TestSession_UnknownNodeIsIgnored(t *testing.T) {
	host := newMemoryHost()
	s, _ := newTestSession(t, host)
	resp := s.Click(context.Background(), ClickEvent{Node: 9999})
	assert.True(t, resp.Meta.Success)
	assert.Nil(t, resp.Frame)
	assert.Equal(t, editor.Idle, s.Mode().Kind)
}

func TestSession_Document(t *testing.T) {
	s, _ := newTestSession(t, newMemoryHost())
	page, err := s.Document(context.Background(), "editpreview.js")
	require.NoError(t, err)
	assert.Contains(t, page, `<style id="pv-style">`)
	assert.Contains(t, page, `<script src="editpreview.js" defer=""></script></body>`)
	assert.Contains(t, page, `data-pv-node="0"`)
	assert.Contains(t, page, `data-pv-id="image-0"`)
}

func TestSession_PreviewRoot(t *testing.T) {
	host := newMemoryHost()
	host.html = `<html><body><header><h2>Buiten</h2></header><main id="pv-root"><h2>Binnen</h2></main></body></html>`
	s, _ := newTestSession(t, host)

	resp := s.Render(context.Background())
	assert.Contains(t, resp.Frame.HTML, "Binnen")
	assert.NotContains(t, resp.Frame.HTML, "Buiten")
}

func TestHandleAction(t *testing.T) {
	ctx := context.Background()
	host := newMemoryHost()
	s, _ := newTestSession(t, host)

	resp := s.handleAction(ctx, message{Action: "nope", Data: map[string]interface{}{}})
	assert.False(t, resp.Meta.Success)
	assert.Contains(t, resp.Meta.Errors[generalErrorKey], "unknown action")

	resp = s.handleAction(ctx, message{Action: ActionTextKey, Data: map[string]interface{}{}})
	assert.Contains(t, resp.Meta.Errors, "key")

	resp = s.handleAction(ctx, message{Action: ActionClick, Data: map[string]interface{}{
		"node": float64(node(t, s, tag("h1"))),
	}})
	assert.NotNil(t, findOp(resp, OpEdit))

	resp = s.handleAction(ctx, message{Action: ActionTextBlur, Data: map[string]interface{}{"text": "Via actie"}})
	assert.True(t, resp.Meta.Success)
	assert.Equal(t, []string{"text Welkom bij onze praktijk -> Via actie"}, host.Calls())
}

func TestMemorySessionStore_Sweep(t *testing.T) {
	store := NewMemorySessionStore()
	store.Set("a", NewSession(HostFuncs{}))
	assert.Equal(t, 1, store.Len())
	assert.NotNil(t, store.Get("a"))

	assert.Equal(t, 0, store.Sweep(time.Now()))
	assert.Equal(t, 1, store.Sweep(time.Now().Add(DefaultSessionTTL+time.Minute)))
	assert.Nil(t, store.Get("a"))
}

func TestHostFuncsDefaults(t *testing.T) {
	var h HostFuncs
	page, err := h.Page(context.Background())
	require.NoError(t, err)
	assert.True(t, bytes.Contains([]byte(page.HTML), []byte("<body>")))
	assert.NoError(t, h.OnTextChange(context.Background(), "a", "b"))
	assert.True(t, strings.HasPrefix(page.HTML, "<!DOCTYPE html>"))
}
