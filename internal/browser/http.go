package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type contentRequest struct {
	Type  string `json:"type"`
	TabID int    `json:"tabId"`
}

type contentResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
}

// HTTPClient talks to a capture adapter exposing
//
//	GET  /tabs/{id}  -> Tab
//	POST /messages   {"type":"request-page-content","tabId":n} -> {"success":bool,"content":string}
//
// Requests share a token bucket so a burst of navigations cannot flood the adapter.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewHTTPClient(baseURL string, timeout time.Duration, limit rate.Limit, burst int) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *HTTPClient) Tab(ctx context.Context, tabID int) (Tab, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Tab{}, fmt.Errorf("wait for adapter: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tabs/"+strconv.Itoa(tabID), nil)
	if err != nil {
		return Tab{}, fmt.Errorf("build tab request: %w", err)
	}
	response, err := c.http.Do(request)
	if err != nil {
		return Tab{}, fmt.Errorf("get tab %d: %w", tabID, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return Tab{}, fmt.Errorf("get tab %d: %w", tabID, ErrTabNotFound)
	}
	if response.StatusCode != http.StatusOK {
		return Tab{}, fmt.Errorf("get tab %d: unexpected status %d", tabID, response.StatusCode)
	}
	var tab Tab
	if err := json.NewDecoder(response.Body).Decode(&tab); err != nil {
		return Tab{}, fmt.Errorf("decode tab %d: %w", tabID, err)
	}
	tab.ID = tabID
	return tab, nil
}

func (c *HTTPClient) PageContent(ctx context.Context, tabID int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for adapter: %w", err)
	}
	body, err := json.Marshal(contentRequest{Type: "request-page-content", TabID: tabID})
	if err != nil {
		return "", fmt.Errorf("encode content request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build content request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := c.http.Do(request)
	if err != nil {
		return "", fmt.Errorf("request content of tab %d: %w", tabID, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request content of tab %d: unexpected status %d", tabID, response.StatusCode)
	}
	var reply contentResponse
	if err := json.NewDecoder(response.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode content of tab %d: %w", tabID, err)
	}
	if !reply.Success {
		return "", fmt.Errorf("request content of tab %d: %w", tabID, ErrNoContent)
	}
	return reply.Content, nil
}
