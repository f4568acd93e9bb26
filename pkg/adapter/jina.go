package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const defaultJinaURL = "https://api.jina.ai/v1/embeddings"

// JinaClient produces embeddings with the Jina embeddings API
type JinaClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// JinaOption configures a JinaClient
type JinaOption func(*JinaClient)

// WithJinaEndpoint overrides the embeddings endpoint
func WithJinaEndpoint(endpoint string) JinaOption {
	return func(j *JinaClient) {
		if endpoint != "" {
			j.endpoint = endpoint
		}
	}
}

// WithJinaModel overrides the embedding model
func WithJinaModel(model string) JinaOption {
	return func(j *JinaClient) {
		if model != "" {
			j.model = model
		}
	}
}

// NewJina creates a Jina embeddings client
func NewJina(apiKey string, opts ...JinaOption) (*JinaClient, error) {
	if apiKey == "" {
		return nil, goerr.New("jina api key is empty")
	}

	j := &JinaClient{
		apiKey:     apiKey,
		endpoint:   defaultJinaURL,
		model:      "jina-embeddings-v2-base-en",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(j)
	}

	return j, nil
}

type jinaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type jinaResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Detail string `json:"detail"`
}

// Embed returns the embedding vector for text
func (j *JinaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(jinaRequest{Model: j.model, Input: []string{text}})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode jina request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build jina request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "jina request failed")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, goerr.New("jina returned an error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", strings.TrimSpace(string(raw))),
		)
	}

	var out jinaResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode jina response")
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, goerr.New("empty embedding from jina", goerr.V("model", j.model))
	}

	return out.Data[0].Embedding, nil
}
