package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tabula/internal/api"
	"tabula/internal/config"
	"tabula/internal/conflict"
	"tabula/internal/database/kafka"
	"tabula/internal/database/milvus"
	"tabula/internal/database/mysql"
	"tabula/internal/database/redis"
	"tabula/internal/embedding"
	"tabula/internal/factstore"
	"tabula/internal/llm"
	"tabula/internal/messagestore"
	"tabula/internal/orchestrator"
	"tabula/internal/reasoning"
	"tabula/internal/retrieval"
	"tabula/pkg/circuitbreaker"
	"tabula/pkg/httpmiddleware"
	"tabula/pkg/logger"
	"tabula/pkg/ratelimiter"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New(cfg.App.Name, "", "")
	appLogger.Info("Starting agent service...")

	ctx := context.Background()

	// Backing stores.
	milvusClient, err := milvus.NewClient(ctx, &cfg.Databases.Milvus)
	if err != nil {
		log.Fatalf("Failed to connect to Milvus: %v", err)
	}
	defer milvusClient.Close()

	if err := milvusClient.EnsureCollection(ctx, cfg.Embedding.Dimension); err != nil {
		log.Fatalf("Failed to prepare fact collection: %v", err)
	}

	db, err := mysql.NewDB(&cfg.Databases.MySQL)
	if err != nil {
		log.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer mysql.Close(db)

	redisClient, err := redis.NewClient(ctx, &cfg.Databases.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	var audit *kafka.AuditPublisher
	if cfg.Databases.Kafka.Enabled {
		audit = kafka.NewAuditPublisher(&cfg.Databases.Kafka)
		defer audit.Close()
	}

	// Model providers, behind a shared circuit breaker when enabled.
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to create LLM provider: %v", err)
	}

	// Per-call deadlines go innermost so the breaker sees timeouts as failures.
	embedTimeout, err := time.ParseDuration(cfg.Embedding.Timeout)
	if err != nil {
		log.Fatalf("Invalid embedding timeout: %v", err)
	}
	embedder = embedding.WithTimeout(embedder, embedTimeout)

	llmTimeout, err := time.ParseDuration(cfg.LLM.Timeout)
	if err != nil {
		log.Fatalf("Invalid LLM timeout: %v", err)
	}
	llmClient = llm.WithTimeout(llmClient, llmTimeout)

	if cfg.Middleware.CircuitBreaker.Enabled {
		cb := cfg.Middleware.CircuitBreaker
		timeout, err := time.ParseDuration(cb.Timeout)
		if err != nil {
			log.Fatalf("Invalid circuit breaker timeout: %v", err)
		}
		embedder = embedding.WithBreaker(embedder, circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, timeout))
		llmClient = llm.WithBreaker(llmClient, circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, timeout))
	}

	// Domain components.
	milvusTimeout, err := time.ParseDuration(cfg.Databases.Milvus.Timeout)
	if err != nil {
		log.Fatalf("Invalid milvus timeout: %v", err)
	}
	facts, err := factstore.NewMilvusStore(milvusClient, cfg.Embedding.Dimension, milvusTimeout, logger.New("factstore", "", ""))
	if err != nil {
		log.Fatalf("Failed to create fact store: %v", err)
	}

	messages, err := messagestore.NewStore(db)
	if err != nil {
		log.Fatalf("Failed to create message store: %v", err)
	}

	pendingTTL, err := time.ParseDuration(cfg.Conflict.PendingTTL)
	if err != nil {
		log.Fatalf("Invalid pending TTL: %v", err)
	}
	pendingStore := conflict.NewPendingStore(redisClient, pendingTTL)

	var reranker retrieval.Reranker
	if cfg.Retrieval.Rerank.Enabled {
		reranker = retrieval.NewHTTPReranker(cfg.Retrieval.Rerank)
	}

	analyzer := retrieval.NewAnalyzer(llmClient, logger.New("analyzer", "", ""))
	retriever := retrieval.NewEngine(embedder, facts, reranker, cfg.Retrieval, logger.New("retrieval", "", ""))
	detector := conflict.NewDetector(embedder, facts, llmClient, cfg.Conflict, logger.New("conflict", "", ""))
	resolver := conflict.NewResolver(facts, pendingStore, audit, logger.New("conflict", "", ""))

	tools := reasoning.NewRegistry(reasoning.NewSearchTool(embedder, facts), logger.New("reasoning", "", ""))
	loop := reasoning.NewLoop(llmClient, tools, cfg.Reasoning.MaxIterations, logger.New("reasoning", "", ""))

	indexer := orchestrator.NewIndexer(llmClient, embedder, facts, logger.New("indexer", "", ""))
	orch := orchestrator.New(llmClient, analyzer, retriever, detector, resolver, loop, indexer, messages, cfg.Conflict, appLogger)

	// HTTP server.
	checks := []api.HealthCheck{
		{Name: "milvus", Check: milvusClient.HealthCheck},
		{Name: "mysql", Check: func(ctx context.Context) error { return mysql.HealthCheck(ctx, db) }},
		{Name: "redis", Check: func(ctx context.Context) error { return redis.HealthCheck(ctx, redisClient) }},
	}
	handlers := api.NewAPI(orch, checks, logger.New("api", "", ""))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmiddleware.RequestLogger(cfg.App.Name))

	var middleware []gin.HandlerFunc
	if cfg.Middleware.RateLimiter.Enabled {
		limiter, err := buildRateLimiter(cfg.Middleware.RateLimiter)
		if err != nil {
			log.Fatalf("Invalid rate limiter config: %v", err)
		}
		middleware = append(middleware, httpmiddleware.RateLimit(limiter))
	}
	api.RegisterRoutes(router, handlers, middleware...)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		appLogger.Info("HTTP server listening at " + cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down...")

	shutdownTimeout, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Forced shutdown: " + err.Error())
	}
	appLogger.Info("Server stopped")
}

func buildRateLimiter(cfg config.RateLimiterConfig) (ratelimiter.RateLimiter, error) {
	switch cfg.Algorithm {
	case "tokenBucket":
		return ratelimiter.NewTokenBucket(cfg.Rate, cfg.Capacity), nil
	case "fixedWindow", "":
		window, err := time.ParseDuration(cfg.Window)
		if err != nil {
			return nil, err
		}
		return ratelimiter.NewFixedWindowCounter(cfg.Limit, window), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %s", cfg.Algorithm)
	}
}
