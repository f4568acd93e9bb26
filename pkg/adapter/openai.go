package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient generates text and embeddings through the OpenAI API
type OpenAIClient struct {
	client            openai.Client
	chatModel         string
	embeddingModel    string
	dimension         int64
	systemInstruction string
}

// OpenAIOption configures an OpenAIClient
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	chatModel         string
	embeddingModel    string
	dimension         int64
	systemInstruction string
	requestOptions    []option.RequestOption
}

// WithOpenAIChatModel sets the model used by Generate
func WithOpenAIChatModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		if model != "" {
			c.chatModel = model
		}
	}
}

// WithOpenAIEmbeddingModel sets the model used by Embed
func WithOpenAIEmbeddingModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithOpenAIEmbeddingDimension asks for vectors of this size
func WithOpenAIEmbeddingDimension(dim int) OpenAIOption {
	return func(c *openAIConfig) {
		if dim > 0 {
			c.dimension = int64(dim)
		}
	}
}

// WithOpenAISystemInstruction sends a system message ahead of every prompt
func WithOpenAISystemInstruction(instruction string) OpenAIOption {
	return func(c *openAIConfig) {
		c.systemInstruction = strings.TrimSpace(instruction)
	}
}

// WithOpenAIBaseURL points the client at a different API host
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(c *openAIConfig) {
		if baseURL != "" {
			c.requestOptions = append(c.requestOptions, option.WithBaseURL(baseURL))
		}
	}
}

// NewOpenAI creates an OpenAI client authenticated with apiKey
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, goerr.New("openai api key is empty")
	}

	cfg := &openAIConfig{
		chatModel:      string(openai.ChatModelGPT4oMini),
		embeddingModel: string(openai.EmbeddingModelTextEmbedding3Small),
		dimension:      768,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	requestOptions := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, cfg.requestOptions...)

	return &OpenAIClient{
		client:            openai.NewClient(requestOptions...),
		chatModel:         cfg.chatModel,
		embeddingModel:    cfg.embeddingModel,
		dimension:         cfg.dimension,
		systemInstruction: cfg.systemInstruction,
	}, nil
}

// Generate returns the first choice's text for prompt
func (o *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if o.systemInstruction != "" {
		messages = append(messages, openai.SystemMessage(o.systemInstruction))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.chatModel),
		Messages: messages,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create chat completion", goerr.V("model", o.chatModel))
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for text
func (o *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(o.embeddingModel),
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Dimensions: openai.Int(o.dimension),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding", goerr.V("model", o.embeddingModel))
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, goerr.New("empty embedding from openai", goerr.V("model", o.embeddingModel))
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
