package editpreview

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livefir/editpreview/internal/editor"
	"github.com/livefir/editpreview/internal/metrics"
)

// Config holds preview configuration options
type Config struct {
	Logger            *zap.Logger
	Upgrader          *websocket.Upgrader
	SessionStore      SessionStore
	Uploader          Uploader
	Metrics           *metrics.Collector
	WebSocketDisabled bool
	// Grace is how long the popover ignores outside clicks after opening.
	Grace time.Duration
	// Minify compacts the frame HTML.
	Minify bool
	Now    func() time.Time
}

// Option is a functional option for configuring the preview
type Option func(*Config)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithUpgrader sets a custom WebSocket upgrader
func WithUpgrader(upgrader *websocket.Upgrader) Option {
	return func(c *Config) {
		c.Upgrader = upgrader
	}
}

// WithSessionStore sets a custom session store
func WithSessionStore(store SessionStore) Option {
	return func(c *Config) {
		c.SessionStore = store
	}
}

// WithUploader enables image replacement.
func WithUploader(u Uploader) Option {
	return func(c *Config) {
		c.Uploader = u
	}
}

// WithMetrics records preview activity in c.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithWebSocketDisabled disables WebSocket support, forcing HTTP-only mode
func WithWebSocketDisabled() Option {
	return func(c *Config) {
		c.WebSocketDisabled = true
	}
}

// WithGrace sets the popover's outside-click grace delay.
func WithGrace(d time.Duration) Option {
	return func(c *Config) {
		c.Grace = d
	}
}

// WithMinify compacts frame HTML with tdewolff/minify.
func WithMinify(enabled bool) Option {
	return func(c *Config) {
		c.Minify = enabled
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

func newConfig(opts []Option) Config {
	config := Config{
		Logger:       zap.NewNop(),
		SessionStore: NewMemorySessionStore(),
		Grace:        editor.DefaultGrace,
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Upgrader == nil {
		config.Upgrader = &websocket.Upgrader{}
	}
	return config
}
