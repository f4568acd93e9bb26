package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/session"
	"github.com/ethanbaker/ragchat/pkg/vector"
)

// ProcessTurn runs one turn for sessionID. Side effects already performed when
// a later step fails are not rolled back. Persistence failures after the answer
// is generated are logged and the answer is still returned
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, query string) (*TurnResult, error) {
	turnID := session.NewTurnID()
	logger := o.log(ctx).With("session_id", sessionID, "turn_id", turnID)

	embedding, err := o.embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.T(ErrTagEmbedding), goerr.V("session_id", sessionID))
	}

	point := vector.Payload{
		"content":    query,
		"kind":       "query",
		"session_id": sessionID,
		"turn_id":    turnID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}

	if o.indexBeforeSearch {
		if err := o.upsert(ctx, embedding, point); err != nil {
			return nil, err
		}
	}

	results, err := o.search(ctx, embedding)
	if err != nil {
		return nil, err
	}

	if !o.indexBeforeSearch {
		if err := o.upsert(ctx, embedding, point); err != nil {
			return nil, err
		}
	}

	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Payload.Text())
	}
	retrieved := strings.Join(texts, "\n")

	finalQuery, retrieved := EnrichWithArticles(ctx, o.extractor, query, retrieved, o.timeout)

	answer, err := o.generate(ctx, BuildPrompt(retrieved, finalQuery))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate answer", goerr.T(ErrTagUpstream), goerr.V("session_id", sessionID))
	}
	if strings.TrimSpace(answer) == "" {
		logger.Warn("model returned no text, using fallback answer")
		answer = o.fallback
	}

	o.record(ctx, logger, sessionID, turnID, query, answer)

	return &TurnResult{TurnID: turnID, Answer: answer, Sources: results}, nil
}

// History returns the messages of sessionID in order
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]session.Message, error) {
	messages, err := o.sessions.GetAll(ctx, sessionID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load history", goerr.T(ErrTagStore), goerr.V("session_id", sessionID))
	}
	return messages, nil
}

// Clear removes every message of sessionID
func (o *Orchestrator) Clear(ctx context.Context, sessionID string) error {
	if err := o.sessions.Clear(ctx, sessionID); err != nil {
		return goerr.Wrap(err, "failed to clear session", goerr.T(ErrTagStore), goerr.V("session_id", sessionID))
	}
	return nil
}

func (o *Orchestrator) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := o.bound(ctx)
	defer cancel()

	vec, err := o.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, goerr.New("embedding is empty")
	}
	if o.dimension > 0 && len(vec) != o.dimension {
		return nil, goerr.New("embedding has wrong dimension", goerr.V("want", o.dimension), goerr.V("got", len(vec)))
	}
	return vec, nil
}

func (o *Orchestrator) upsert(ctx context.Context, vec []float32, payload vector.Payload) error {
	ctx, cancel := o.bound(ctx)
	defer cancel()

	if _, err := o.index.Upsert(ctx, [][]float32{vec}, []vector.Payload{payload}); err != nil {
		return goerr.Wrap(err, "failed to index query", goerr.T(ErrTagUpstream))
	}
	return nil
}

func (o *Orchestrator) search(ctx context.Context, vec []float32) ([]vector.Result, error) {
	ctx, cancel := o.bound(ctx)
	defer cancel()

	results, err := o.index.Search(ctx, vec, o.topK)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search index", goerr.T(ErrTagUpstream))
	}
	return results, nil
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := o.bound(ctx)
	defer cancel()

	return o.generator.Generate(ctx, prompt)
}

// record appends the user message then the assistant message, both tagged
// with the turn id so the store can pair them regardless of interleaving.
// Caller cancellation is ignored once an answer exists
func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, sessionID, turnID, query, answer string) {
	ctx, cancel := o.bound(context.WithoutCancel(ctx))
	defer cancel()

	if err := o.sessions.Append(ctx, sessionID, session.NewMessage(session.RoleUser, query, turnID)); err != nil {
		logger.Error("failed to store user message", "error", goerr.Wrap(err, "store failure", goerr.T(ErrTagStore)))
		return
	}
	if err := o.sessions.Append(ctx, sessionID, session.NewMessage(session.RoleAssistant, answer, turnID)); err != nil {
		logger.Error("failed to store assistant message", "error", goerr.Wrap(err, "store failure", goerr.T(ErrTagStore)))
	}
}

func (o *Orchestrator) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func (o *Orchestrator) log(ctx context.Context) *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return logging.From(ctx)
}
