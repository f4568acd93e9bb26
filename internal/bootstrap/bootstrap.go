// Package bootstrap builds the backend's services from configuration.
package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ethanbaker/ragchat/pkg/adapter"
	"github.com/ethanbaker/ragchat/pkg/article"
	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/news"
	"github.com/ethanbaker/ragchat/pkg/rag"
	"github.com/ethanbaker/ragchat/pkg/session"
	"github.com/ethanbaker/ragchat/pkg/transcript"
	"github.com/ethanbaker/ragchat/pkg/utils"
	"github.com/ethanbaker/ragchat/pkg/vector"
)

// MemoryIndexURL selects the in-process vector index instead of Qdrant
const MemoryIndexURL = "memory"

const defaultSystemPrompt = "You are a helpful news assistant. Answer the question using the provided context when it is relevant, and say so when the context does not contain the answer."

// Services holds every long-lived dependency of the server
type Services struct {
	Logger       *slog.Logger
	Redis        *redis.Client
	Sessions     *session.RedisStore
	Transcripts  *transcript.Store
	Index        vector.Index
	Orchestrator *rag.Orchestrator
	Ingester     *news.Ingester
	IngestJob    *news.Job
	Scheduler    *news.Scheduler
}

// Build connects to every backing service and assembles the orchestrator.
// Collections and tables are created when missing. Services log through the
// logger carried by ctx
func Build(ctx context.Context, cfg *utils.Config) (*Services, error) {
	logger := logging.From(ctx)

	s := &Services{Logger: logger}

	transcripts, err := NewTranscriptStore(cfg)
	if err != nil {
		return nil, err
	}
	s.Transcripts = transcripts

	client, err := session.Connect(ctx, cfg.GetWithDefault("REDIS_URL", "redis://localhost:6379/0"))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Redis = client
	s.Sessions = NewSessionStore(cfg, client, transcripts)

	s.Index = NewIndex(cfg)
	if err := s.Index.EnsureCollection(ctx); err != nil {
		s.Close()
		return nil, err
	}

	embedder, err := NewEmbedder(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	generator, err := NewGenerator(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Orchestrator = NewOrchestrator(cfg, embedder, s.Index, generator, s.Sessions, logger)
	s.Ingester = news.NewIngester(news.NewFetcher(nil), embedder, s.Index)

	var feeds []news.Feed
	if path := cfg.Get("NEWS_FEEDS_FILE"); path != "" {
		if feeds, err = news.LoadFeeds(path); err != nil {
			s.Close()
			return nil, err
		}
	}
	s.IngestJob = news.NewJob(s.Ingester, feeds)

	if schedule := cfg.Get("NEWS_INGEST_SCHEDULE"); schedule != "" && len(feeds) > 0 {
		if s.Scheduler, err = news.NewScheduler(s.IngestJob, schedule, logger); err != nil {
			s.Close()
			return nil, err
		}
		s.Scheduler.Start()
		logger.Info("news ingestion scheduled", "schedule", schedule, "feeds", len(feeds))
	}

	return s, nil
}

// Close releases every connection held by s
func (s *Services) Close() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.Redis != nil {
		s.Redis.Close()
	}
	if s.Transcripts != nil {
		s.Transcripts.Close()
	}
}

// NewTranscriptStore opens the configured SQL database. DATABASE_URL wins
// over the MYSQL_* keys
func NewTranscriptStore(cfg *utils.Config) (*transcript.Store, error) {
	driver := cfg.GetWithDefault("DB_DRIVER", "mysql")

	dsn := cfg.Get("DATABASE_URL")
	if dsn == "" && (driver == "mysql" || driver == "") {
		dsn = transcript.MySQLDSN(
			cfg.Get("MYSQL_USER"),
			cfg.Get("MYSQL_PASSWORD"),
			cfg.GetWithDefault("MYSQL_HOST", "localhost"),
			cfg.GetWithDefault("MYSQL_PORT", "3306"),
			cfg.Get("MYSQL_DATABASE"),
		)
	}

	dialector, err := transcript.OpenDialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	return transcript.NewStore(dialector)
}

// NewSessionStore creates the Redis session store that forwards completed
// pairs to recorder
func NewSessionStore(cfg *utils.Config, client redis.UniversalClient, recorder session.PairRecorder) *session.RedisStore {
	opts := []session.Option{
		session.WithTTL(cfg.GetDurationWithDefault("SESSION_TTL", session.DefaultTTL)),
		session.WithPairWindow(cfg.GetIntWithDefault("SESSION_PAIR_WINDOW", session.DefaultPairWindow)),
		session.WithPairRecorder(recorder),
	}
	if cfg.Has("SESSION_KEY_PREFIX") {
		opts = append(opts, session.WithKeyPrefix(cfg.Get("SESSION_KEY_PREFIX")))
	}
	return session.NewRedisStore(client, opts...)
}

// NewIndex returns the Qdrant index, or an in-memory one when QDRANT_URL is
// "memory"
func NewIndex(cfg *utils.Config) vector.Index {
	dim := cfg.GetIntWithDefault("EMBEDDING_DIMENSION", vector.DefaultDimension)

	baseURL := cfg.Get("QDRANT_URL")
	if strings.EqualFold(baseURL, MemoryIndexURL) {
		return vector.NewMemoryIndex(dim)
	}

	opts := []vector.QdrantOption{
		vector.WithCollection(cfg.GetWithDefault("QDRANT_COLLECTION", vector.DefaultCollection)),
		vector.WithDimension(dim),
		vector.WithAPIKey(cfg.Get("QDRANT_API_KEY")),
	}
	if name := cfg.Get("QDRANT_VECTOR_NAME"); name != "" {
		opts = append(opts, vector.WithVectorName(name))
	}
	return vector.NewQdrantIndex(baseURL, opts...)
}

// NewEmbedder selects the embedding provider named by EMBEDDING_PROVIDER
func NewEmbedder(ctx context.Context, cfg *utils.Config) (rag.Embedder, error) {
	dim := cfg.GetIntWithDefault("EMBEDDING_DIMENSION", vector.DefaultDimension)

	var (
		embedder rag.Embedder
		err      error
	)

	switch provider := strings.ToLower(cfg.GetWithDefault("EMBEDDING_PROVIDER", "gemini")); provider {
	case "gemini":
		embedder, err = adapter.NewGemini(ctx, cfg.Get("GEMINI_API_KEY"),
			adapter.WithEmbeddingModel(cfg.Get("GEMINI_EMBEDDING_MODEL")),
			adapter.WithEmbeddingDimension(dim),
		)
	case "openai":
		embedder, err = adapter.NewOpenAI(cfg.Get("OPENAI_API_KEY"),
			adapter.WithOpenAIEmbeddingModel(cfg.Get("OPENAI_EMBEDDING_MODEL")),
			adapter.WithOpenAIEmbeddingDimension(dim),
			adapter.WithOpenAIBaseURL(cfg.Get("OPENAI_BASE_URL")),
		)
	case "jina":
		embedder, err = adapter.NewJina(cfg.Get("JINA_API_KEY"), adapter.WithJinaModel(cfg.Get("JINA_MODEL")))
	default:
		return nil, goerr.New("unknown embedding provider", goerr.V("provider", provider))
	}

	if err != nil {
		return nil, err
	}
	return embedder, nil
}

// NewGenerator selects the generation provider named by GENERATION_PROVIDER
func NewGenerator(ctx context.Context, cfg *utils.Config) (rag.Generator, error) {
	instruction := utils.LoadPromptWithFallback(cfg.Get("SYSTEM_PROMPT_FILE"), defaultSystemPrompt)

	var (
		generator rag.Generator
		err       error
	)

	switch provider := strings.ToLower(cfg.GetWithDefault("GENERATION_PROVIDER", "gemini")); provider {
	case "gemini":
		generator, err = adapter.NewGemini(ctx, cfg.Get("GEMINI_API_KEY"),
			adapter.WithGenerativeModel(cfg.Get("GEMINI_MODEL")),
			adapter.WithSystemInstruction(instruction),
		)
	case "openai":
		generator, err = adapter.NewOpenAI(cfg.Get("OPENAI_API_KEY"),
			adapter.WithOpenAIChatModel(cfg.Get("OPENAI_MODEL")),
			adapter.WithOpenAISystemInstruction(instruction),
			adapter.WithOpenAIBaseURL(cfg.Get("OPENAI_BASE_URL")),
		)
	default:
		return nil, goerr.New("unknown generation provider", goerr.V("provider", provider))
	}

	if err != nil {
		return nil, err
	}
	return generator, nil
}

// NewOrchestrator applies the RAG_* settings
func NewOrchestrator(cfg *utils.Config, embedder rag.Embedder, index vector.Index, generator rag.Generator, sessions session.Store, logger *slog.Logger) *rag.Orchestrator {
	return rag.New(embedder, index, generator, sessions,
		rag.WithTopK(cfg.GetIntWithDefault("RAG_TOP_K", rag.DefaultTopK)),
		rag.WithIndexBeforeSearch(cfg.GetBoolWithDefault("RAG_INDEX_BEFORE_SEARCH", true)),
		rag.WithTimeout(cfg.GetDurationWithDefault("RAG_UPSTREAM_TIMEOUT", rag.DefaultTimeout)),
		rag.WithDimension(cfg.GetIntWithDefault("EMBEDDING_DIMENSION", vector.DefaultDimension)),
		rag.WithArticleExtractor(article.NewExtractor(article.WithTimeout(cfg.GetDurationWithDefault("ARTICLE_FETCH_TIMEOUT", 10*time.Second)))),
		rag.WithLogger(logger),
	)
}
