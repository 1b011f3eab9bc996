// Package compress sends page text to the external summarization
// service, with a bypass for short pages and fallback to the original
// text on any failure.
package compress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AuthError reports a 401/403 from the compression service. It is
// distinguishable from transport errors so callers can log the key
// problem while still falling back to the raw page text.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("compression auth failed (status %d)", e.StatusCode)
}

// InvalidKeySentinel is the fallback text surfaced for auth failures.
const InvalidKeySentinel = "Invalid Key"

// Client calls the external compression service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type compressRequest struct {
	Context string  `json:"context"`
	Prompt  string  `json:"prompt"`
	Model   string  `json:"model"`
	Rate    float64 `json:"rate"`
}

// compressResponse accepts compressed_prompt at the top level or
// nested under "response"; the service has shipped both shapes.
type compressResponse struct {
	CompressedPrompt string `json:"compressed_prompt"`
	Response         struct {
		CompressedPrompt string `json:"compressed_prompt"`
	} `json:"response"`
}

// Compress sends pageText with the given instruction and returns the
// compressed result.
func (c *Client) Compress(ctx context.Context, pageText, instruction, model string, rate float64) (string, error) {
	reqBody := compressRequest{
		Context: pageText,
		Prompt:  instruction,
		Model:   model,
		Rate:    rate,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compress", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("compression api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("compression api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp compressResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.CompressedPrompt != "" {
		return apiResp.CompressedPrompt, nil
	}
	return apiResp.Response.CompressedPrompt, nil
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
