package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/garnizeh/contest/internal/schemas"
)

// maxResponseBytes bounds how much of a grader reply is read.
const maxResponseBytes = 1 << 20

var jsonUnmarshal = json.Unmarshal

// WebhookGrader posts the request as JSON to an HTTP endpoint.
type WebhookGrader struct {
	url    string
	client *http.Client
	loader *schemas.Loader
}

func NewWebhookGrader(url string, timeout time.Duration, client *http.Client, loader *schemas.Loader) *WebhookGrader {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &WebhookGrader{url: url, client: client, loader: loader}
}

func (g *WebhookGrader) Grade(ctx context.Context, req Request) (*Result, error) {
	if req.AttachmentURLs == nil {
		req.AttachmentURLs = []string{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal grading request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build grading request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post grading request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read grading response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("grader returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrMalformedResult, resp.StatusCode)
	}

	return Parse(ctx, g.loader, data)
}
