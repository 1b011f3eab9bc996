package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// apiClient is a thin client over the manualqa HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: serverURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

type uploadResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PageCount int    `json:"page_count"`
}

func (c *apiClient) upload(path string) (*uploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/manuals", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res uploadResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type extractResult struct {
	JobID   string `json:"job_id"`
	PollURL string `json:"poll_url"`
}

func (c *apiClient) startExtract(manualID string) (*extractResult, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/manuals/"+manualID+"/extract", nil)
	if err != nil {
		return nil, err
	}
	var res extractResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type jobState struct {
	Status   string `json:"status"`
	Progress struct {
		TotalPages      int      `json:"total_pages"`
		PagesCompressed int      `json:"pages_compressed"`
		PagesDropped    int      `json:"pages_dropped"`
		Categories      int      `json:"categories"`
		Items           int      `json:"items"`
		Errors          []string `json:"errors"`
	} `json:"progress"`
}

func (c *apiClient) jobStatus(jobID string) (*jobState, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	var res jobState
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type askResult struct {
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

func (c *apiClient) ask(manualID, question string) (*askResult, error) {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/manuals/"+manualID+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res askResult
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
