package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient() *apiClient {
	return &apiClient{
		baseURL: serverURL,
		token:   adminToken,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// getJSON performs a GET request and decodes the response. Statuses listed in
// accept are decoded as well as 200, since some endpoints answer a body with
// error details the caller wants to render.
func (c *apiClient) getJSON(ctx context.Context, path string, v any, accept ...int) (int, error) {
	return c.do(ctx, http.MethodGet, path, nil, v, accept...)
}

// postJSON performs a POST request with a JSON body and decodes the response.
func (c *apiClient) postJSON(ctx context.Context, path string, body, v any, accept ...int) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal error: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), v, accept...)
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, v any, accept ...int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Admin-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if !acceptable(resp.StatusCode, accept) {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if v == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("decode error: %w", err)
	}
	return resp.StatusCode, nil
}

func acceptable(status int, accept []int) bool {
	if status >= 200 && status < 300 {
		return true
	}
	for _, s := range accept {
		if s == status {
			return true
		}
	}
	return false
}
