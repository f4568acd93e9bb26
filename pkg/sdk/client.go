package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Client wraps calls to the chat backend
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Ask sends a query for sessionID and returns the answer
func (c *Client) Ask(ctx context.Context, sessionID, query string) (*AskResponse, error) {
	var out AskResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/ask", &AskRequest{SessionID: sessionID, Query: query}, &out); err != nil {
		return nil, err
	}

	if !out.Success {
		return nil, goerr.New("ask failed", goerr.V("message", out.Message))
	}
	return &out, nil
}

// History returns the messages of sessionID in order
func (c *Client) History(ctx context.Context, sessionID string) ([]Message, error) {
	var out HistoryResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/chat/history/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}

	if !out.Success {
		return nil, goerr.New("history failed", goerr.V("error", out.Error))
	}
	return out.Messages, nil
}

// Clear deletes the history of sessionID
func (c *Client) Clear(ctx context.Context, sessionID string) error {
	var out StatusResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/history/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return err
	}

	if !out.Success {
		return goerr.New("clear failed", goerr.V("message", out.Message))
	}
	return nil
}

// Transcripts lists the durable transcript of sessionID. Requires an API key
func (c *Client) Transcripts(ctx context.Context, sessionID string) ([]Transcript, error) {
	var out ApiResponse[[]Transcript]
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/transcripts/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// IngestNews triggers a news ingestion run. Requires an API key
func (c *Client) IngestNews(ctx context.Context) (*IngestStats, error) {
	var out ApiResponse[IngestStats]
	if err := c.doJSON(ctx, http.MethodPost, "/api/admin/news/ingest", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// doJSON is a helper to perform JSON requests to the backend
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	// Create request body if input is provided
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return goerr.Wrap(err, "failed to encode request")
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return goerr.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "request failed", goerr.V("method", method), goerr.V("path", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// On error, read body and return error
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return goerr.New("backend returned an error",
			goerr.V("method", method),
			goerr.V("path", path),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", strings.TrimSpace(string(b))),
		)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode response", goerr.V("path", path))
	}
	return nil
}
