// Package upload validates and stores replacement images for the preview.
package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/livefir/editpreview/internal/auth"
	"github.com/livefir/editpreview/internal/storage"
)

// DefaultMaxBytes is the hard size cap for one image.
const DefaultMaxBytes = 5 << 20

// File is an image chosen in the file picker.
type File struct {
	Name string
	// ContentType is the type declared by the browser.
	ContentType string
	Size        int64
	Data        []byte
}

// Result is a stored image.
type Result struct {
	Path string
	URL  string
}

// Config tunes the service.
type Config struct {
	MaxBytes int64
	// Rate and Burst limit uploads per user. Zero disables the limit.
	Rate  rate.Limit
	Burst int
	Now   func() time.Time
}

// Service runs the upload flow: validate, resolve the user, store.
type Service struct {
	bucket   storage.Bucket
	resolver auth.Resolver
	config   Config
	logger   *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService creates an upload service.
func NewService(bucket storage.Bucket, resolver auth.Resolver, config Config, logger *zap.Logger) *Service {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		bucket:   bucket,
		resolver: resolver,
		config:   config,
		logger:   logger.Named("upload"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// MaxBytes returns the size cap.
func (s *Service) MaxBytes() int64 { return s.config.MaxBytes }

// Validate checks type and size. It performs no I/O.
func (s *Service) Validate(f File) (ext string, contentType string, err error) {
	size := f.Size
	if size == 0 {
		size = int64(len(f.Data))
	}
	if size == 0 {
		return "", "", &ValidationError{Err: ErrEmpty, Message: "Het bestand is leeg."}
	}
	if size > s.config.MaxBytes {
		return "", "", TooLarge(s.config.MaxBytes)
	}
	declared := strings.ToLower(strings.TrimSpace(f.ContentType))
	// Browsers send application/octet-stream for types they do not know.
	if declared != "" && declared != "application/octet-stream" && !strings.HasPrefix(declared, "image/") {
		return "", "", &ValidationError{Err: ErrNotImage, Message: "Alleen afbeeldingen zijn toegestaan."}
	}
	detected := mimetype.Detect(f.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return "", "", &ValidationError{Err: ErrNotImage, Message: "Alleen afbeeldingen zijn toegestaan."}
	}
	return objectExt(f.Name, detected), detected.String(), nil
}

// Upload validates f, resolves the user from r and stores the image under
// the user's namespace. Validation failures never reach the network.
func (s *Service) Upload(ctx context.Context, r *http.Request, f File) (*Result, error) {
	ext, contentType, err := s.Validate(f)
	if err != nil {
		return nil, err
	}

	user, err := s.resolver.Resolve(r)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	if !s.allow(user.ID) {
		return nil, ErrRateLimited
	}

	objectPath, err := ObjectPath(user.ID, s.config.Now(), ext)
	if err != nil {
		return nil, err
	}
	if err := s.bucket.Upload(ctx, objectPath, f.Data, contentType); err != nil {
		s.logger.Warn("storage upload failed", zap.String("path", objectPath), zap.Error(err))
		return nil, &TransportError{Path: objectPath, Err: err}
	}

	url := s.bucket.PublicURL(objectPath)
	s.logger.Info("image stored",
		zap.String("user", user.ID),
		zap.String("path", objectPath),
		zap.Int("bytes", len(f.Data)))
	return &Result{Path: objectPath, URL: url}, nil
}

// ReadFile reads at most max+1 bytes so an oversized body is detected
// without buffering all of it.
func ReadFile(r io.Reader, name, contentType string, max int64) (File, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return File{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return File{Name: name, ContentType: contentType, Size: int64(len(data)), Data: data}, nil
}

func (s *Service) allow(userID string) bool {
	if s.config.Rate <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[userID]
	if !ok {
		burst := s.config.Burst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(s.config.Rate, burst)
		s.limiters[userID] = l
	}
	return l.Allow()
}

// ObjectPath builds {userID}/{unixMillis}-{random}.{ext}.
func ObjectPath(userID string, now time.Time, ext string) (string, error) {
	if userID == "" || strings.ContainsAny(userID, "/\\.") {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate object name: %w", err)
	}
	suffix := strings.ReplaceAll(id.String(), "-", "")[:12]
	return fmt.Sprintf("%s/%d-%s.%s", userID, now.UnixMilli(), suffix, ext), nil
}

// objectExt prefers the picked file's own extension when it is a known
// image extension, else the sniffed type's.
func objectExt(name string, detected *mimetype.MIME) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext := strings.ToLower(name[i+1:])
		switch ext {
		case "png", "jpg", "jpeg", "gif", "webp", "svg", "avif":
			return ext
		}
	}
	return strings.TrimPrefix(detected.Extension(), ".")
}
