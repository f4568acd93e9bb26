package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	api_utils "github.com/ethanbaker/api/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/goerr/v2"

	"github.com/ethanbaker/ragchat/internal/bootstrap"
	"github.com/ethanbaker/ragchat/internal/realtime"
	"github.com/ethanbaker/ragchat/pkg/logging"
	"github.com/ethanbaker/ragchat/pkg/utils"

	admin_module "github.com/ethanbaker/ragchat/internal/api/modules/admin"
	chat_module "github.com/ethanbaker/ragchat/internal/api/modules/chat"
	health_module "github.com/ethanbaker/ragchat/internal/api/modules/health"
)

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	Logger       *slog.Logger
	Chat         chat_module.Service
	Transcripts  admin_module.TranscriptLister
	Ingest       admin_module.IngestRunner
	HealthChecks []health_module.Check
}

// NewEngine builds the gin engine with every route registered
func NewEngine(cfg *utils.Config, deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	engine.NoRoute(api_utils.NoRouteHandler)

	// Add trusted proxies
	engine.SetTrustedProxies(nil)

	origins := cfg.GetList("CLIENT_URL", "*")

	// Add CORS using gin-contrib/cors (https://github.com/gin-contrib/cors for documentation)
	corsConfig := cors.Config{
		AllowMethods:  []string{"OPTIONS", "GET", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-API-KEY"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	engine.Use(cors.New(corsConfig))

	// Request handlers log through the context logger
	engine.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(logging.With(c.Request.Context(), deps.Logger))
		c.Next()
	})

	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to AI Chatbot"})
	})

	// Base group '/api' for all API routes
	baseGroup := engine.Group("/api")

	health_module.RegisterRoutes(baseGroup, deps.HealthChecks...)
	chat_module.RegisterRoutes(baseGroup, deps.Chat)

	if apiKey := cfg.Get("API_KEY"); apiKey != "" {
		admin_module.RegisterRoutes(baseGroup, apiKey, deps.Transcripts, deps.Ingest)
	} else {
		deps.Logger.Warn("API_KEY not set, admin routes disabled")
	}

	realtime.NewHandler(deps.Chat, origins, deps.Logger).RegisterRoutes(engine)

	return engine
}

// Start builds every service from cfg and serves until ctx is done or the
// listener fails
func Start(ctx context.Context, cfg *utils.Config) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	services, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return goerr.Wrap(err, "failed to start services")
	}
	defer services.Close()
	logger := services.Logger

	engine := NewEngine(cfg, Dependencies{
		Logger:      logger,
		Chat:        services.Orchestrator,
		Transcripts: services.Transcripts,
		Ingest:      services.IngestJob,
		HealthChecks: []health_module.Check{
			{Name: "redis", Probe: func(ctx context.Context) error { return services.Redis.Ping(ctx).Err() }},
			{Name: "database", Probe: services.Transcripts.Ping},
			{Name: "vector", Probe: services.Index.Ping},
		},
	})

	port := cfg.GetWithDefault("API_PORT", cfg.GetWithDefault("PORT", "5001"))
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- goerr.Wrap(err, "server stopped", goerr.V("port", port))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

