package compute

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to the generation API over HTTP. The result body is
// the raw artifact bytes; error bodies carry a structured code/message
// pair that flows to the classifier as *APIError.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// Config holds generation API settings.
type Config struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// NewHTTPClient creates a new HTTP generation client.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPClient{
		endpoint: cfg.URL,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type generateRequest struct {
	Prompt    string `json:"prompt"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	InputData string `json:"input_data,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate produces a new artifact from the prompt.
func (c *HTTPClient) Generate(ctx context.Context, params Params) ([]byte, error) {
	return c.call(ctx, "/v1/generate", params)
}

// Modify transforms the supplied input artifact.
func (c *HTTPClient) Modify(ctx context.Context, params Params) ([]byte, error) {
	return c.call(ctx, "/v1/modify", params)
}

func (c *HTTPClient) call(ctx context.Context, path string, params Params) ([]byte, error) {
	reqBody := generateRequest{
		Prompt: params.Prompt,
		Width:  params.Width,
		Height: params.Height,
	}
	if len(params.InputData) > 0 {
		reqBody.InputData = base64.StdEncoding.EncodeToString(params.InputData)
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("compute call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		var parsed errorResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
			apiErr.Code = parsed.Error.Code
			apiErr.Message = parsed.Error.Message
		}
		return nil, apiErr
	}

	return body, nil
}
