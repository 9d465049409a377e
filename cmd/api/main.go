package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/actions"
	"github.com/medaccred/backend/internal/aggregate"
	"github.com/medaccred/backend/internal/api/handlers"
	"github.com/medaccred/backend/internal/assessment"
	"github.com/medaccred/backend/internal/cache/redis"
	"github.com/medaccred/backend/internal/hierarchy"
	"github.com/medaccred/backend/internal/ingestion"
	"github.com/medaccred/backend/internal/judge"
	"github.com/medaccred/backend/internal/kg/neo4j"
	"github.com/medaccred/backend/internal/llm"
	"github.com/medaccred/backend/internal/metrics"
	"github.com/medaccred/backend/internal/middleware/ratelimit"
	"github.com/medaccred/backend/internal/middleware/security"
	"github.com/medaccred/backend/internal/middleware/validation"
	"github.com/medaccred/backend/internal/scoring"
	"github.com/medaccred/backend/internal/selfassess"
	"github.com/medaccred/backend/internal/storage/sqlite"
	"github.com/medaccred/backend/internal/vector/milvus"
	"github.com/medaccred/backend/pkg/config"
	appLogger "github.com/medaccred/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting accreditation compliance API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	var graphClient *neo4j.Client
	if cfg.Neo4j.Enabled {
		graphClient, err = neo4j.NewClient(
			cfg.Neo4j.URI,
			cfg.Neo4j.Username,
			cfg.Neo4j.Password,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
		}
		defer graphClient.Close(context.Background())
	}

	var (
		vectorClient *milvus.Client
		retriever    judge.EvidenceRetriever
		indexer      ingestion.Indexer
	)
	if cfg.Vector.Enabled {
		vectorClient, err = milvus.NewClient(
			cfg.Vector.Endpoint,
			cfg.Vector.APIKey,
			cfg.Vector.CollectionName,
			cfg.Vector.VectorDim,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
		}
		defer vectorClient.Close()

		err = vectorClient.CreateCollection(context.Background())
		if err != nil {
			appLogger.Fatal("Failed to create collection", zap.Error(err))
		}

		retriever = milvus.NewRetriever(vectorClient, llmClient)
		indexer = vectorClient
	}

	var (
		judgmentCache judge.JudgmentCache
		invalidator   ingestion.CacheInvalidator
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLHours)*time.Hour,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		judgmentCache = redisClient
		invalidator = redisClient
	}

	var mirror hierarchy.GraphMirror
	if graphClient != nil {
		mirror = graphClient
	}
	seeder := hierarchy.NewSeeder(sqliteClient, mirror)
	if err := seeder.Seed(context.Background(), cfg.Assessment.HierarchyPath); err != nil {
		appLogger.Warn("Failed to seed hierarchy", zap.Error(err))
	}

	adapter := judge.NewAdapter(llmClient, judgmentCache, retriever, cfg.Assessment.MaxEvidencePerME)
	scorer := scoring.NewScorer(sqliteClient)
	aggregator := aggregate.NewAggregator(sqliteClient)
	generator := actions.NewGenerator(sqliteClient)
	hub := assessment.NewProgressHub()
	runner := assessment.NewRunner(sqliteClient, adapter, scorer, aggregator, generator, hub, cfg.Assessment.ActionDueDays)
	if graphClient != nil {
		runner.SetLinker(graphClient)
	}
	selfService := selfassess.NewService(sqliteClient, runner)
	processor := ingestion.NewProcessor(sqliteClient, llmClient, llmClient, indexer)
	if invalidator != nil {
		processor.SetCacheInvalidator(invalidator)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Surveyor-ID",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	app.Use(validation.Middleware(validation.Config{
		MaxEvidenceSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 30,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	assessmentHandler := handlers.NewAssessmentHandler(sqliteClient, runner,
		time.Duration(cfg.Assessment.RunTimeoutMinutes)*time.Minute)
	scoreHandler := handlers.NewScoreHandler(scorer)
	projectHandler := handlers.NewProjectHandler(sqliteClient)
	actionHandler := handlers.NewActionHandler(sqliteClient)
	evidenceHandler := handlers.NewEvidenceHandler(sqliteClient, processor)
	responseHandler := handlers.NewResponseHandler(sqliteClient, selfService)
	elementHandler := handlers.NewElementHandler(sqliteClient, graphClient)
	wsHandler := handlers.NewWebSocketHandler(hub)

	api := app.Group("/api/v1")

	api.Post("/assessments", limiter.Middleware(), assessmentHandler.Start)
	api.Get("/assessments/:id", assessmentHandler.Get)
	api.Get("/assessments/:id/scores", assessmentHandler.Scores)

	api.Post("/scores/:id/override", scoreHandler.Override)

	api.Post("/projects", projectHandler.Create)
	api.Get("/projects/:id", projectHandler.Get)
	api.Get("/projects/:id/chapter-scores", projectHandler.ChapterScores)
	api.Get("/projects/:id/activity", projectHandler.Activity)
	api.Get("/projects/:id/actions", actionHandler.ListByProject)
	api.Post("/projects/:id/responses", responseHandler.Record)
	api.Post("/projects/:id/self-assessment", limiter.Middleware(), responseHandler.SelfAssess)

	api.Patch("/actions/:id", actionHandler.Update)

	api.Post("/evidence", evidenceHandler.Register)
	api.Get("/evidence", evidenceHandler.List)

	api.Get("/elements/:id", elementHandler.Get)
	api.Get("/elements/:id/related", elementHandler.Related)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/assessments/:id", websocket.New(wsHandler.HandleProgress))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
