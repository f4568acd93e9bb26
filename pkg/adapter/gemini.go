package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// GeminiClient generates text and embeddings through the Gemini API
type GeminiClient struct {
	client            *genai.Client
	generativeModel   string
	embeddingModel    string
	dimension         int32
	systemInstruction string
}

// GeminiOption configures a GeminiClient
type GeminiOption func(*GeminiClient)

// WithGenerativeModel sets the model used by Generate
func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.generativeModel = model
		}
	}
}

// WithEmbeddingModel sets the model used by Embed
func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.embeddingModel = model
		}
	}
}

// WithEmbeddingDimension asks the embedding model for vectors of this size
func WithEmbeddingDimension(dim int) GeminiOption {
	return func(g *GeminiClient) {
		if dim > 0 {
			g.dimension = int32(dim)
		}
	}
}

// WithSystemInstruction prepends a system instruction to every generation
func WithSystemInstruction(instruction string) GeminiOption {
	return func(g *GeminiClient) {
		g.systemInstruction = strings.TrimSpace(instruction)
	}
}

// NewGemini creates a Gemini API client authenticated with apiKey
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, goerr.New("gemini api key is empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "text-embedding-004",
		dimension:       768,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Generate returns the model's text for prompt. An empty string means the model
// produced no usable text
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	var config *genai.GenerateContentConfig
	if g.systemInstruction != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(g.systemInstruction, genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, genai.Text(prompt), config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}

	return resp.Text(), nil
}

// Embed returns the embedding vector for text
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := g.dimension
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.embeddingModel))
	}

	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding from gemini", goerr.V("model", g.embeddingModel))
	}

	return resp.Embeddings[0].Values, nil
}
