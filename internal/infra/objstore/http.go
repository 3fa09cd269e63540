package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// HTTPStore uploads artifacts to an S3-compatible endpoint over plain
// HTTP PUT/GET. Uploads retry with capped backoff: the key is fixed per
// job, so a retried PUT overwrites the same object.
type HTTPStore struct {
	baseURL    string
	authToken  string
	maxRetries uint64
	httpClient *http.Client
}

// Config holds object storage settings.
type Config struct {
	URL        string        `yaml:"url"`
	AuthToken  string        `yaml:"auth_token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries uint64        `yaml:"max_retries"`
}

// NewHTTPStore creates a new HTTP-backed object store client.
func NewHTTPStore(cfg Config) *HTTPStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &HTTPStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		authToken:  cfg.AuthToken,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload persists data under key and returns its URL.
func (s *HTTPStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	url := s.baseURL + "/" + strings.TrimLeft(key, "/")

	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)
		if s.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+s.authToken)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("upload failed with status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("upload failed with status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return url, nil
}

// Fetch retrieves a previously stored object.
func (s *HTTPStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	url := ref
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		url = s.baseURL + "/" + strings.TrimLeft(ref, "/")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
