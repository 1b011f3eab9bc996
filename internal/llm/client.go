// Package llm is the client for the categorization/chat LLM service.
// Requests are lists of content parts (text plus optional inline
// images), with an optional forced-JSON output mode.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// InvalidResponseError reports a service response missing the expected
// candidate/part structure. Fatal to the call; callers do not retry it.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return "llm: invalid response structure: " + e.Reason
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// Part is one element of a request's content. Either Text is set, or
// InlineMIME/InlineData carry an image payload.
type Part struct {
	Text       string
	InlineMIME string
	InlineData []byte
}

// TextPart builds a text-only part.
func TextPart(text string) Part { return Part{Text: text} }

// ImagePart builds an inline image part.
func ImagePart(mime string, data []byte) Part {
	return Part{InlineMIME: mime, InlineData: data}
}

// Client calls the LLM service's generateContent endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	// Stats tracks call latencies for the /api/stats/llm endpoint.
	Stats *Stats
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		Stats: NewStats(time.Hour),
	}
}

// NewClientWithBaseURL is used by tests to point at a local server.
func NewClientWithBaseURL(baseURL, apiKey, model string) *Client {
	c := NewClient(apiKey, model)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inline_data,omitempty"`
}

type wireInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}

type generateRequest struct {
	Contents         []wireContent     `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the content parts and returns the first candidate's
// first text part. When forceJSON is set the service is asked for
// direct JSON output; the response text is still passed through the
// repair ladder by callers, since models do not always honor the mode.
func (c *Client) Generate(ctx context.Context, parts []Part, forceJSON bool) (string, error) {
	wp := make([]wirePart, 0, len(parts))
	for _, p := range parts {
		if p.InlineData != nil {
			wp = append(wp, wirePart{InlineData: &wireInlineData{
				MIMEType: p.InlineMIME,
				Data:     base64.StdEncoding.EncodeToString(p.InlineData),
			}})
			continue
		}
		wp = append(wp, wirePart{Text: p.Text})
	}

	reqBody := generateRequest{Contents: []wireContent{{Parts: wp}}}
	if forceJSON {
		reqBody.GenerationConfig = &generationConfig{ResponseMIMEType: "application/json"}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm api: %w", err)
	}
	defer resp.Body.Close()
	if c.Stats != nil {
		c.Stats.Record(time.Since(start).Milliseconds())
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp generateResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("llm error: %s: %s", apiResp.Error.Status, apiResp.Error.Message)
	}
	if len(apiResp.Candidates) == 0 {
		return "", &InvalidResponseError{Reason: "no candidates"}
	}
	if len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", &InvalidResponseError{Reason: "candidate has no parts"}
	}

	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
