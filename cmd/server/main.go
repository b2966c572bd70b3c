package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowpilot/internal/api/handler"
	"flowpilot/internal/collab"
	"flowpilot/internal/config"
	"flowpilot/internal/core/memory"
	"flowpilot/internal/core/ports"
	"flowpilot/internal/core/postgres/repository"
	"flowpilot/internal/executor"
	"flowpilot/internal/infrastructure/filestore"
	infraredis "flowpilot/internal/infrastructure/redis"
	"flowpilot/internal/logging"
	"flowpilot/internal/notify"
	"flowpilot/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const notifyConcurrency = 4

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)
	logger := logging.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories: postgres in production, in-process in memory mode.
	var (
		workflows   ports.WorkflowRepository
		instances   ports.InstanceRepository
		executions  ports.ExecutionRepository
		validations ports.ValidationRepository
	)
	if cfg.MemoryMode {
		repos := memory.NewRepositories()
		workflows = repos.Workflows
		instances = repos.Instances
		executions = repos.Executions
		validations = repos.Validations
		logger.Info("running with in-memory repositories")
	} else {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := repository.AutoMigrate(db); err != nil {
			logger.Error("failed to migrate schema", "error", err)
			os.Exit(1)
		}
		workflows = repository.NewWorkflowRepository(db)
		instances = repository.NewInstanceRepository(db)
		executions = repository.NewExecutionRepository(db)
		validations = repository.NewValidationRepository(db)
	}

	// Redis backs the activity bus and the notification queue. In memory mode
	// both are skipped and the service degrades to its core behavior.
	var (
		bus   ports.EventBus
		queue ports.NotificationQueue
		hub   *collab.Hub
	)
	if !cfg.MemoryMode {
		redisClient, err := infraredis.NewClient(cfg.RedisAddr)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		eventBus := infraredis.NewEventBus(redisClient)
		bus = eventBus
		queue = infraredis.NewNotificationQueue(redisClient)

		hub = collab.NewHub(eventBus)
		go hub.Start(ctx)

		worker := notify.NewWorker(queue, notify.InitRegistry())
		worker.StartPool(ctx, notifyConcurrency)
	}

	ai := executor.NewOpenAIExecutor(executor.Config{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		Pricing: executor.Pricing{
			PromptTokenPrice:     cfg.OpenAI.PromptTokenPrice,
			CompletionTokenPrice: cfg.OpenAI.CompletionTokenPrice,
		},
	})

	files, err := filestore.NewDiskStore(cfg.UploadDir)
	if err != nil {
		logger.Error("failed to initialize file store", "error", err)
		os.Exit(1)
	}

	workflowSvc := service.NewWorkflowService(workflows)
	instanceSvc := service.NewInstanceService(
		workflows, instances, executions, validations,
		ai, ports.SystemClock{}, bus, queue,
		cfg.PublicBaseURL, cfg.ValidationTTL,
	)

	h := handler.New(workflowSvc, instanceSvc, hub, files)

	router := gin.Default()
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(router.Group("/api/v1"))

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		logger.Info("server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
