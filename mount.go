package editpreview

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livefir/editpreview/internal/upload"
)

//go:embed client.js
var clientScript []byte

// ScriptPath is where the handler serves the client, relative to its
// mount point.
const ScriptPath = "editpreview.js"

// uploadField is the multipart field carrying the picked image.
const uploadField = "file"

// Handler serves the preview:
//
//	GET  /                the tagged page, or the WebSocket for actions
//	POST /                one action over HTTP when WebSocket is unavailable
//	POST /upload          the image for the armed upload slot
//	GET  /editpreview.js  the client
type Handler struct {
	provider HostProvider
	config   Config
	logger   *zap.Logger
	router   chi.Router

	mu sync.Mutex // serializes session creation
}

// New creates a preview handler.
func New(provider HostProvider, opts ...Option) *Handler {
	h := &Handler{
		provider: provider,
		config:   newConfig(opts),
	}
	h.logger = h.config.Logger.Named("editpreview")

	r := chi.NewRouter()
	r.Get("/", h.serveRoot)
	r.Head("/", h.serveHead)
	r.Post("/", h.serveAction)
	r.Post("/upload", h.serveUpload)
	r.Get("/"+ScriptPath, h.serveScript)
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add header to indicate WebSocket availability
	if h.config.WebSocketDisabled {
		w.Header().Set("X-Editpreview-WebSocket", "disabled")
	} else {
		w.Header().Set("X-Editpreview-WebSocket", "enabled")
	}
	h.router.ServeHTTP(w, r)
}

// session returns the session for the request's browser and document,
// creating it on first use.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, error) {
	host, key, err := h.provider.Host(r)
	if err != nil {
		return nil, err
	}
	id, isNew := sessionID(r)
	if isNew {
		setSessionCookie(w, id)
	}
	storeKey := id + "|" + key

	h.mu.Lock()
	defer h.mu.Unlock()
	if s := h.config.SessionStore.Get(storeKey); s != nil {
		return s, nil
	}
	s := newSession(host, h.config)
	h.config.SessionStore.Set(storeKey, s)
	h.config.Metrics.IncrementSessionCreated()
	h.logger.Debug("session created", zap.String("key", key))
	return s, nil
}

func (h *Handler) serveHead(w http.ResponseWriter, r *http.Request) {}

func (h *Handler) serveRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		if h.config.WebSocketDisabled {
			http.Error(w, "WebSocket is disabled on this endpoint", http.StatusBadRequest)
			return
		}
		h.handleWebSocket(w, r)
		return
	}

	s, err := h.session(w, r)
	if err != nil {
		h.refuse(w, err)
		return
	}
	page, err := s.Document(r.Context(), ScriptPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (h *Handler) serveAction(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(w, r)
	if err != nil {
		h.refuse(w, err)
		return
	}
	msg, err := parseActionFromHTTP(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.handleAction(r.Context(), msg))
}

func (h *Handler) serveUpload(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(w, r)
	if err != nil {
		h.refuse(w, err)
		return
	}

	limit := int64(upload.DefaultMaxBytes)
	if h.config.Uploader != nil {
		limit = h.config.Uploader.MaxBytes()
	}
	// Leave room for the multipart envelope; ReadFile enforces the cap.
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	file, header, err := r.FormFile(uploadField)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, s.RejectUpload(r.Context(), upload.TooLarge(limit)))
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read %q: %v", uploadField, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	f, err := upload.ReadFile(file, header.Filename, header.Header.Get("Content-Type"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Upload(r.Context(), r, f))
}

func (h *Handler) serveScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(clientScript)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(w, r)
	if err != nil {
		h.refuse(w, err)
		return
	}
	conn, err := h.config.Upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.config.Metrics.ConnectionOpened()
	defer h.config.Metrics.ConnectionClosed()
	h.logger.Debug("client connected", zap.String("remote", conn.RemoteAddr().String()))

	var writeMu sync.Mutex
	send := func(resp *Response) error {
		payload, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return writeWebSocket(conn, payload)
	}
	detach := s.attach(send)
	defer detach()

	// Send initial frame
	if err := send(s.Render(r.Context())); err != nil {
		h.logger.Debug("failed to send initial frame", zap.Error(err))
		return
	}

	// message loop
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket error", zap.Error(err))
			}
			break
		}

		msg, err := parseActionFromWebSocket(data)
		if err != nil {
			h.logger.Debug("failed to parse message", zap.Error(err))
			continue
		}

		if err := send(s.handleAction(r.Context(), msg)); err != nil {
			h.logger.Debug("WebSocket write failed", zap.Error(err))
			break
		}
	}

	h.logger.Debug("client disconnected")
}

// refuse writes the status for a provider error.
func (h *Handler) refuse(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrPageNotFound):
		status = http.StatusNotFound
	default:
		h.logger.Error("failed to open host", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
