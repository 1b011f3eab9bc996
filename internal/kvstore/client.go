// Package kvstore talks to the key-value store holding manuals,
// settings, and usage metrics.
package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dgallion1/manualqa/internal/manual"
)

// Client communicates with the kvstore HTTP API.
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
			Timeout: 30 * time.Second,
		},
	}
}

// nodeEnvelope wraps every stored value.
type nodeEnvelope struct {
	Value json.RawMessage `json:"value"`
}

func (c *Client) put(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	body, err := json.Marshal(nodeEnvelope{Value: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/kv/"+key, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("put %s: status %d: %s", key, resp.StatusCode, string(respBody))
	}
	return nil
}

// get unmarshals the stored value into out. Returns false without error
// when the key does not exist.
func (c *Client) get(ctx context.Context, key string, out any) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/kv/"+key, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, fmt.Errorf("get %s: status %d: %s", key, resp.StatusCode, string(respBody))
	}

	var env nodeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *Client) delete(ctx context.Context, key string, recursive bool) error {
	u := c.baseURL + "/kv/" + key
	if recursive {
		u += "?children=true"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("delete %s: status %d: %s", key, resp.StatusCode, string(respBody))
	}
	return nil
}

// PutManual stores a manual, pages and buckets included, as one opaque
// JSON value.
func (c *Client) PutManual(ctx context.Context, m *manual.Manual) error {
	return c.put(ctx, "manuals/"+m.ID, m)
}

// GetManual retrieves a manual by ID. Returns nil without error when
// the manual does not exist.
func (c *Client) GetManual(ctx context.Context, id string) (*manual.Manual, error) {
	var m manual.Manual
	ok, err := c.get(ctx, "manuals/"+id, &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// DeleteManual removes a manual and everything stored under it.
func (c *Client) DeleteManual(ctx context.Context, id string) error {
	return c.delete(ctx, "manuals/"+id, true)
}

// ManualSummary is one entry from a manual listing.
type ManualSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Filename    string `json:"filename"`
	PageCount   int    `json:"page_count"`
	ExtractedAt string `json:"extracted_at,omitempty"`
}

// ListManuals does a prefix scan over stored manuals.
func (c *Client) ListManuals(ctx context.Context, limit int) ([]ManualSummary, error) {
	u := c.baseURL + "/kv/manuals/*"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("list manuals: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("list manuals: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Nodes []struct {
			Value manual.Manual `json:"value"`
		} `json:"nodes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode manuals: %w", err)
	}

	summaries := make([]ManualSummary, 0, len(result.Nodes))
	for _, n := range result.Nodes {
		s := ManualSummary{
			ID:        n.Value.ID,
			Title:     n.Value.Title,
			Filename:  n.Value.Filename,
			PageCount: len(n.Value.Pages),
		}
		if n.Value.ExtractedAt != nil {
			s.ExtractedAt = n.Value.ExtractedAt.Format(time.RFC3339)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// BumpUsage increments the per-category retrieval counter. Counters
// are advisory; a lost increment under concurrent writers is accepted.
func (c *Client) BumpUsage(ctx context.Context, category manual.Category) error {
	key := "metrics/usage/" + string(category)
	var count int64
	if _, err := c.get(ctx, key, &count); err != nil {
		return err
	}
	return c.put(ctx, key, count+1)
}

// GetUsage reads all per-category counters, zero-filled.
func (c *Client) GetUsage(ctx context.Context) (map[manual.Category]int64, error) {
	usage := make(map[manual.Category]int64, len(manual.CategoryOrder))
	for _, cat := range manual.CategoryOrder {
		var count int64
		if _, err := c.get(ctx, "metrics/usage/"+string(cat), &count); err != nil {
			return nil, err
		}
		usage[cat] = count
	}
	return usage, nil
}

// PutSetting stores one named setting.
func (c *Client) PutSetting(ctx context.Context, name string, value any) error {
	return c.put(ctx, "settings/"+name, value)
}

// GetSetting loads one named setting into out; ok is false when unset.
func (c *Client) GetSetting(ctx context.Context, name string, out any) (bool, error) {
	return c.get(ctx, "settings/"+name, out)
}

// Close releases any resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
