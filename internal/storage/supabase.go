package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SupabaseConfig configures a Supabase Storage bucket.
type SupabaseConfig struct {
	URL        string
	APIKey     string
	Bucket     string
	HTTPClient *http.Client
}

// SupabaseBucket talks to the Supabase Storage REST API.
type SupabaseBucket struct {
	baseURL    string
	apiKey     string
	bucket     string
	httpClient *http.Client
}

// NewSupabaseBucket creates a bucket client.
func NewSupabaseBucket(cfg SupabaseConfig) (*SupabaseBucket, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &SupabaseBucket{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		bucket:     cfg.Bucket,
		httpClient: httpClient,
	}, nil
}

// Upload uploads a file. Existing objects are not overwritten.
func (b *SupabaseBucket) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.baseURL, b.bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", b.apiKey)
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "false")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return responseError(resp.StatusCode, body)
}

// PublicURL returns the public URL for a file.
func (b *SupabaseBucket) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.baseURL, b.bucket, path)
}

// responseError returns an error if the response indicates failure.
func responseError(status int, body []byte) error {
	if status < 400 {
		return nil
	}
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Message != "" {
			return fmt.Errorf("storage error: %s", errResp.Message)
		}
		if errResp.Error != "" {
			return fmt.Errorf("storage error: %s", errResp.Error)
		}
	}
	return fmt.Errorf("storage error: status %d", status)
}
