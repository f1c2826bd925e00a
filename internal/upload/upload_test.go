package upload

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livefir/editpreview/internal/auth"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func pngOf(size int) []byte {
	data := make([]byte, size)
	copy(data, pngHeader)
	return data
}

type recordingBucket struct {
	mu      sync.Mutex
	uploads []string
	types   []string
	err     error
}

func (b *recordingBucket) Upload(_ context.Context, path string, _ []byte, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, path)
	b.types = append(b.types, contentType)
	return b.err
}

func (b *recordingBucket) PublicURL(path string) string {
	return "https://cdn.example/storage/v1/object/public/site-images/" + path
}

func newService(b *recordingBucket, resolver auth.Resolver, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.UnixMilli(1760000000000) }
	}
	return NewService(b, resolver, cfg, nil)
}

var user1 = auth.StaticResolver{User: auth.User{ID: "u1"}}

func request() *http.Request {
	return httptest.NewRequest(http.MethodPost, "/upload", nil)
}

func TestUpload_RejectsOversizedBeforeNetwork(t *testing.T) {
	bucket := &recordingBucket{}
	svc := newService(bucket, user1, Config{})

	_, err := svc.Upload(context.Background(), request(), File{
		Name: "huge.png", ContentType: "image/png", Data: pngOf(6 * 1000 * 1000),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Empty(t, bucket.uploads, "no request may be issued for an invalid file")
	assert.Contains(t, UserMessage(err), "te groot")
}

func TestUpload_StoresUnderUserNamespace(t *testing.T) {
	bucket := &recordingBucket{}
	svc := newService(bucket, user1, Config{})

	res, err := svc.Upload(context.Background(), request(), File{
		Name: "Praktijk.PNG", ContentType: "image/png", Data: pngOf(200 * 1000),
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^u1/1760000000000-[0-9a-f]{12}\.png$`), res.Path)
	assert.Equal(t, bucket.PublicURL(res.Path), res.URL)
	assert.True(t, strings.HasPrefix(res.URL, "https://cdn.example/"))
	require.Len(t, bucket.uploads, 1)
	assert.Equal(t, "image/png", bucket.types[0])
}

func TestValidate(t *testing.T) {
	svc := newService(&recordingBucket{}, user1, Config{MaxBytes: 1024})

	tests := []struct {
		name string
		file File
		want error
	}{
		{"empty", File{Name: "a.png", ContentType: "image/png"}, ErrEmpty},
		{"declared pdf", File{Name: "a.pdf", ContentType: "application/pdf", Data: pngOf(10)}, ErrNotImage},
		{"sniffed text", File{Name: "a.png", ContentType: "image/png", Data: []byte("hello world")}, ErrNotImage},
		{"over cap", File{Name: "a.png", ContentType: "image/png", Data: pngOf(1025)}, ErrTooLarge},
		{"declared size over cap", File{Name: "a.png", ContentType: "image/png", Size: 4096, Data: pngOf(10)}, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Validate(tt.file)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	ext, ct, err := svc.Validate(File{Name: "photo", Data: pngOf(100)})
	require.NoError(t, err)
	assert.Equal(t, "png", ext)
	assert.Equal(t, "image/png", ct)
}

func TestUpload_RequiresUser(t *testing.T) {
	bucket := &recordingBucket{}
	svc := newService(bucket, auth.StaticResolver{}, Config{})

	_, err := svc.Upload(context.Background(), request(), File{Name: "a.png", ContentType: "image/png", Data: pngOf(100)})
	var aerr *AuthError
	require.True(t, errors.As(err, &aerr))
	assert.ErrorIs(t, err, auth.ErrNoSession)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, bucket.uploads)
	assert.Contains(t, UserMessage(err), "ingelogd")
}

func TestUpload_TransportError(t *testing.T) {
	bucket := &recordingBucket{err: errors.New("storage error: status 503")}
	svc := newService(bucket, user1, Config{})

	res, err := svc.Upload(context.Background(), request(), File{Name: "a.png", ContentType: "image/png", Data: pngOf(100)})
	assert.Nil(t, res)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.True(t, strings.HasPrefix(terr.Path, "u1/"))
	assert.Equal(t, "Upload mislukt. Probeer het opnieuw.", UserMessage(err))
}

func TestUpload_RateLimited(t *testing.T) {
	bucket := &recordingBucket{}
	svc := newService(bucket, user1, Config{Rate: 0.001, Burst: 1})
	f := File{Name: "a.png", ContentType: "image/png", Data: pngOf(100)}

	_, err := svc.Upload(context.Background(), request(), f)
	require.NoError(t, err)
	_, err = svc.Upload(context.Background(), request(), f)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, bucket.uploads, 1)
}

func TestReadFile(t *testing.T) {
	f, err := ReadFile(bytes.NewReader(pngOf(50)), "a.png", "image/png", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), f.Size, "reads one byte past the cap")
}

func TestObjectPath(t *testing.T) {
	_, err := ObjectPath("../u2", time.Now(), "png")
	assert.Error(t, err)
	_, err = ObjectPath("", time.Now(), "png")
	assert.Error(t, err)

	a, err := ObjectPath("u1", time.UnixMilli(5), "jpg")
	require.NoError(t, err)
	b, _ := ObjectPath("u1", time.UnixMilli(5), "jpg")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "u1/5-"))
}
