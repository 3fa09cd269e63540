package compute

import (
	"context"
	"fmt"
)

// Params describes one generation request.
type Params struct {
	Prompt string
	Width  int
	Height int
	// InputData carries the source artifact for modify calls.
	InputData []byte
}

// Client is the external generation API. Failures are arbitrary
// upstream shapes and must reach the classifier unmodified, so
// implementations surface them as *APIError where structure exists.
type Client interface {
	// Generate produces a new artifact from the prompt.
	Generate(ctx context.Context, params Params) ([]byte, error)

	// Modify transforms the supplied input artifact.
	Modify(ctx context.Context, params Params) ([]byte, error)
}

// APIError is a structured upstream failure: a provider error code
// and/or HTTP status plus the raw message.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("compute api error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("compute api error (status %d): %s", e.StatusCode, e.Message)
}
