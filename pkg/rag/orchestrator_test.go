package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/session"
	"github.com/ethanbaker/ragchat/pkg/transcript"
	"github.com/ethanbaker/ragchat/pkg/vector"
)

const testDim = 16

// hashEmbedder maps each word to a bucket so equal texts get equal vectors
type hashEmbedder struct {
	err   error
	empty bool
}

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if h.err != nil {
		return nil, h.err
	}
	if h.empty {
		return nil, nil
	}

	vec := make([]float32, testDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		f.Write([]byte(word))
		vec[f.Sum32()%testDim]++
	}
	return vec, nil
}

// echoGenerator answers with the question found in the prompt
type echoGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	err     error
}

func (g *echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.err != nil {
		return "", g.err
	}
	if g.answer != "" {
		return g.answer, nil
	}
	_, question, _ := strings.Cut(prompt, "\n\nQuestion: ")
	return "answer: " + question, nil
}

func (g *echoGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type stubExtractor map[string]string

func (s stubExtractor) Extract(_ context.Context, url string) (string, error) {
	text, ok := s[url]
	if !ok {
		return "", errors.New("dial tcp: connection refused")
	}
	return text, nil
}

type pairSink struct {
	mu    sync.Mutex
	pairs []session.Pair
}

func (p *pairSink) PersistPair(_ context.Context, pair session.Pair) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs = append(p.pairs, pair)
	return nil
}

func (p *pairSink) all() []session.Pair {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]session.Pair(nil), p.pairs...)
}

type failingIndex struct {
	vector.Index
	searchErr error
}

func (f *failingIndex) Search(context.Context, []float32, int) ([]vector.Result, error) {
	return nil, f.searchErr
}

type failingStore struct{ session.Store }

func (failingStore) Append(context.Context, string, session.Message) error {
	return errors.New("redis: connection refused")
}

type harness struct {
	index     *vector.MemoryIndex
	generator *echoGenerator
	sessions  *session.RedisStore
	sink      *pairSink
}

func newHarness(t *testing.T, recorder session.PairRecorder) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := &harness{
		index:     vector.NewMemoryIndex(testDim),
		generator: &echoGenerator{},
		sink:      &pairSink{},
	}
	if recorder == nil {
		recorder = h.sink
	}
	h.sessions = session.NewRedisStore(client, session.WithPairRecorder(recorder))
	return h
}

func (h *harness) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{WithDimension(testDim), WithLogger(logging.Discard())}, opts...)
	return New(&hashEmbedder{}, h.index, h.generator, h.sessions, opts...)
}

func TestProcessTurn_FirstQuery(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "transcripts.db")
	transcripts, err := transcript.NewStore(sqlite.Open(dsn))
	require.NoError(t, err)
	defer transcripts.Close()

	h := newHarness(t, transcripts)
	o := h.orchestrator()
	ctx := context.Background()

	result, err := o.ProcessTurn(ctx, "s1", "What is photosynthesis?")
	require.NoError(t, err)

	assert.Equal(t, "answer: What is photosynthesis?", result.Answer)
	assert.NotEmpty(t, result.TurnID)

	// The query is indexed and retrieves itself
	assert.Equal(t, 1, h.index.Len())
	require.Len(t, result.Sources, 1)
	assert.InDelta(t, 1.0, result.Sources[0].Score, 1e-6)
	assert.Equal(t, "What is photosynthesis?", result.Sources[0].Payload.Text())
	assert.Equal(t, "Context:\nWhat is photosynthesis?\n\nQuestion: What is photosynthesis?", h.generator.lastPrompt())

	messages, err := o.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, session.RoleUser, messages[0].Role)
	assert.Equal(t, "What is photosynthesis?", messages[0].Content)
	assert.Equal(t, session.RoleAssistant, messages[1].Role)
	assert.Equal(t, result.Answer, messages[1].Content)
	assert.Equal(t, result.TurnID, messages[0].TurnID)
	assert.Equal(t, result.TurnID, messages[1].TurnID)

	records, err := transcripts.ListBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "What is photosynthesis?", records[0].Query)
	assert.Equal(t, result.Answer, records[0].Response)
	assert.Equal(t, result.TurnID, records[0].TurnID)
}

func TestProcessTurn_ContextOrderedBySimilarity(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	embedder := &hashEmbedder{}
	for _, text := range []string{"solar panels convert light", "photosynthesis converts light into sugar"} {
		vec, _ := embedder.Embed(ctx, text)
		_, err := h.index.Upsert(ctx, [][]float32{vec}, []vector.Payload{{"content": text}})
		require.NoError(t, err)
	}

	o := h.orchestrator(WithTopK(2))
	result, err := o.ProcessTurn(ctx, "s1", "photosynthesis converts light into sugar")
	require.NoError(t, err)

	require.Len(t, result.Sources, 2)
	prompt := h.generator.lastPrompt()
	assert.True(t, strings.HasPrefix(prompt, "Context:\nphotosynthesis converts light into sugar\nphotosynthesis converts light into sugar\n\n"), prompt)
	assert.Equal(t, 3, h.index.Len())
}

func TestProcessTurn_IndexAfterSearch(t *testing.T) {
	h := newHarness(t, nil)
	o := h.orchestrator(WithIndexBeforeSearch(false))

	result, err := o.ProcessTurn(context.Background(), "s1", "What is photosynthesis?")
	require.NoError(t, err)

	assert.Empty(t, result.Sources)
	assert.Equal(t, 1, h.index.Len())
	assert.Equal(t, "Context:\n\n\nQuestion: What is photosynthesis?", h.generator.lastPrompt())
}

func TestProcessTurn_UnreachableArticle(t *testing.T) {
	h := newHarness(t, nil)
	o := h.orchestrator(WithArticleExtractor(stubExtractor{}))

	_, err := o.ProcessTurn(context.Background(), "s1", "Summarize https://example.com/article please")
	require.NoError(t, err)

	prompt := h.generator.lastPrompt()
	assert.Contains(t, prompt, "Question: Summarize https://example.com/article please (Note: Could not retrieve content from https://example.com/article)")
	assert.NotContains(t, prompt, "Article Content from")
}

func TestProcessTurn_FetchedArticle(t *testing.T) {
	h := newHarness(t, nil)
	o := h.orchestrator(WithArticleExtractor(stubExtractor{
		"https://example.com/a": "Alpha body",
	}))

	_, err := o.ProcessTurn(context.Background(), "s1", "Compare https://example.com/a and https://example.com/b")
	require.NoError(t, err)

	prompt := h.generator.lastPrompt()
	assert.True(t, strings.HasPrefix(prompt, "Context:\nArticle Content from https://example.com/a:\nAlpha body\n\n"), prompt)
	assert.True(t, strings.HasSuffix(prompt,
		"Question: Compare [article content] and https://example.com/b (Note: Could not retrieve content from https://example.com/b)"), prompt)
}

func TestProcessTurn_ConcurrentTurnsSameSession(t *testing.T) {
	h := newHarness(t, nil)
	gated := &gatedStore{Store: h.sessions}
	gated.users.Add(2)
	o := New(&hashEmbedder{}, h.index, h.generator, gated, WithDimension(testDim), WithLogger(logging.Discard()))

	queries := []string{"first question about tides", "second question about volcanoes"}
	answers := make([]string, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := o.ProcessTurn(context.Background(), "shared", q)
			if assert.NoError(t, err) {
				answers[i] = result.Answer
			}
		}()
	}
	wg.Wait()

	messages, err := h.sessions.GetAll(context.Background(), "shared")
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, session.RoleUser, messages[0].Role)
	assert.Equal(t, session.RoleUser, messages[1].Role)

	pairs := h.sink.all()
	require.Len(t, pairs, 2)
	for _, pair := range pairs {
		assert.Equal(t, "answer: "+pair.Query, pair.Response)
	}
	assert.ElementsMatch(t, queries, []string{pairs[0].Query, pairs[1].Query})
	assert.ElementsMatch(t, answers, []string{pairs[0].Response, pairs[1].Response})
}

// gatedStore holds every user append until both turns have written theirs,
// forcing the user, user, assistant, assistant interleaving
type gatedStore struct {
	session.Store
	users sync.WaitGroup
}

func (g *gatedStore) Append(ctx context.Context, sessionID string, msg session.Message) error {
	err := g.Store.Append(ctx, sessionID, msg)
	if msg.Role == session.RoleUser {
		g.users.Done()
		g.users.Wait()
	}
	return err
}

func TestProcessTurn_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding error", func(t *testing.T) {
		h := newHarness(t, nil)
		o := New(&hashEmbedder{err: errors.New("quota")}, h.index, h.generator, h.sessions, WithLogger(logging.Discard()))

		_, err := o.ProcessTurn(ctx, "s1", "q")
		require.Error(t, err)
		assert.True(t, goerr.HasTag(err, ErrTagEmbedding))
		assert.Equal(t, 0, h.index.Len())
		assert.Empty(t, h.generator.prompts)

		messages, err := h.sessions.GetAll(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, messages)
	})

	t.Run("empty embedding", func(t *testing.T) {
		h := newHarness(t, nil)
		o := New(&hashEmbedder{empty: true}, h.index, h.generator, h.sessions, WithLogger(logging.Discard()))

		_, err := o.ProcessTurn(ctx, "s1", "q")
		require.Error(t, err)
		assert.True(t, goerr.HasTag(err, ErrTagEmbedding))
	})

	t.Run("wrong dimension", func(t *testing.T) {
		h := newHarness(t, nil)
		o := New(&hashEmbedder{}, h.index, h.generator, h.sessions, WithDimension(768), WithLogger(logging.Discard()))

		_, err := o.ProcessTurn(ctx, "s1", "q")
		require.Error(t, err)
		assert.True(t, goerr.HasTag(err, ErrTagEmbedding))
		assert.Equal(t, 0, h.index.Len())
	})

	t.Run("search error keeps upsert", func(t *testing.T) {
		h := newHarness(t, nil)
		index := &failingIndex{Index: h.index, searchErr: errors.New("qdrant down")}
		o := New(&hashEmbedder{}, index, h.generator, h.sessions, WithDimension(testDim), WithLogger(logging.Discard()))

		_, err := o.ProcessTurn(ctx, "s1", "q")
		require.Error(t, err)
		assert.True(t, goerr.HasTag(err, ErrTagUpstream))
		assert.False(t, goerr.HasTag(err, ErrTagEmbedding))
		assert.Equal(t, 1, h.index.Len())
	})

	t.Run("generation error", func(t *testing.T) {
		h := newHarness(t, nil)
		h.generator.err = errors.New("503")
		o := h.orchestrator()

		_, err := o.ProcessTurn(ctx, "s1", "q")
		require.Error(t, err)
		assert.True(t, goerr.HasTag(err, ErrTagUpstream))
		assert.Equal(t, 1, h.index.Len())
		assert.Empty(t, h.sink.all())
	})

	t.Run("empty generation uses fallback", func(t *testing.T) {
		h := newHarness(t, nil)
		h.generator.answer = "   "
		o := h.orchestrator()

		result, err := o.ProcessTurn(ctx, "s1", "q")
		require.NoError(t, err)
		assert.Equal(t, DefaultFallbackAnswer, result.Answer)

		pairs := h.sink.all()
		require.Len(t, pairs, 1)
		assert.Equal(t, DefaultFallbackAnswer, pairs[0].Response)
	})

	t.Run("store failure still answers", func(t *testing.T) {
		h := newHarness(t, nil)
		o := New(&hashEmbedder{}, h.index, h.generator, failingStore{Store: h.sessions},
			WithDimension(testDim), WithLogger(logging.Discard()))

		result, err := o.ProcessTurn(ctx, "s1", "q")
		require.NoError(t, err)
		assert.Equal(t, "answer: q", result.Answer)
	})
}

// cancelingGenerator cancels the caller's context once it has an answer
type cancelingGenerator struct {
	cancel context.CancelFunc
}

func (g *cancelingGenerator) Generate(context.Context, string) (string, error) {
	g.cancel()
	return "generated answer", nil
}

func TestProcessTurn_RecordsAfterCallerCancels(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := New(&hashEmbedder{}, h.index, &cancelingGenerator{cancel: cancel}, h.sessions,
		WithDimension(testDim), WithLogger(logging.Discard()))

	result, err := o.ProcessTurn(ctx, "s1", "still recorded?")
	require.NoError(t, err)
	assert.Equal(t, "generated answer", result.Answer)
	require.Error(t, ctx.Err())

	messages, err := o.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "still recorded?", messages[0].Content)
	assert.Equal(t, "generated answer", messages[1].Content)

	pairs := h.sink.all()
	require.Len(t, pairs, 1)
	assert.Equal(t, result.TurnID, pairs[0].TurnID)
}

func TestHistoryAndClear(t *testing.T) {
	h := newHarness(t, nil)
	o := h.orchestrator()
	ctx := context.Background()

	_, err := o.ProcessTurn(ctx, "s1", "hello")
	require.NoError(t, err)

	require.NoError(t, o.Clear(ctx, "s1"))
	require.NoError(t, o.Clear(ctx, "s1"))

	messages, err := o.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, messages)
}
