// Package main 章节分析 worker 入口
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"novelforge-api/internal/application/generation"
	"novelforge-api/internal/application/memory"
	"novelforge-api/internal/config"
	"novelforge-api/internal/infrastructure/embedding"
	"novelforge-api/internal/infrastructure/llm"
	"novelforge-api/internal/infrastructure/messaging"
	"novelforge-api/internal/infrastructure/persistence/milvus"
	"novelforge-api/internal/infrastructure/persistence/postgres"
	"novelforge-api/internal/infrastructure/persistence/redis"
	einoobs "novelforge-api/internal/observability/eino"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/tracer"
)

// recoverSweepInterval 卡死任务巡检间隔
const recoverSweepInterval = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "analysis-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	einoobs.Init()

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus unavailable, memory indexing degraded", "error", err.Error())
		milvusClient = nil
	} else {
		defer func() { _ = milvusClient.Close() }()
	}

	chapterRepo := postgres.NewChapterRepository(pgClient)
	analysisRepo := postgres.NewChapterAnalysisRepository(pgClient)
	taskRepo := postgres.NewAnalysisTaskRepository(pgClient)
	fragmentRepo := postgres.NewMemoryFragmentRepository(pgClient)
	relTypeRepo := postgres.NewRelationshipTypeRepository(pgClient)
	styleRepo := postgres.NewWritingStyleRepository(pgClient)

	txMgr := postgres.NewTxManager(pgClient)
	tenantCtx := postgres.NewTenantContext(pgClient)
	seeder := postgres.NewTenantSeeder(txMgr, tenantCtx, relTypeRepo, styleRepo)
	registry := postgres.NewRegistry(pgClient, seeder)
	defer registry.CloseAll()
	scope := postgres.NewScopeManager(registry, txMgr, tenantCtx)

	var embedder memory.Embedder
	if e, err := embedding.NewEmbedder(ctx, &cfg.Embedding); err != nil {
		logger.Warn(ctx, "embedder unavailable, memory indexing disabled", "error", err.Error())
	} else {
		embedder = e
	}
	var vectorStore memory.VectorStore
	if milvusClient != nil {
		vectorStore = milvus.NewMemoryVectorStore(milvus.NewRepository(milvusClient))
	}
	memorySvc := memory.NewService(fragmentRepo, chapterRepo, embedder, vectorStore, &cfg.Memory)

	// worker 不做工具调用，适配器不挂插件注册表
	llmAdapter := generation.NewLLMAdapter(llm.NewEinoFactory(cfg), nil)

	analyzer := generation.NewAnalyzer(&generation.Deps{
		Scope:        scope,
		Chapters:     chapterRepo,
		Analyses:     analysisRepo,
		Tasks:        taskRepo,
		MemoryWriter: memorySvc,
		LLM:          llmAdapter,
		Config:       cfg,
	})

	stream := messaging.StreamChapterAnalysis
	if cfg.Analysis.Stream != "" {
		stream = messaging.Stream(cfg.Analysis.Stream)
	}
	group := messaging.ConsumerGroupAnalysisWorker
	if cfg.Analysis.ConsumerGroup != "" {
		group = messaging.ConsumerGroup(cfg.Analysis.ConsumerGroup)
	}

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        stream,
		Group:         group,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})

	consumer.RegisterHandler(messaging.MessageTypeChapterAnalysis, func(ctx context.Context, msg *messaging.Message) error {
		var payload messaging.AnalysisTaskMessage
		if err := msg.UnmarshalPayload(&payload); err != nil {
			return err
		}
		if rid := msg.GetMetadata("request_id"); rid != "" {
			ctx = logger.WithContext(ctx, logger.RequestIDKey, rid)
		}
		return analyzer.Run(ctx, payload.TenantID, payload.TaskID)
	})

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	// 卡死任务巡检
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(recoverSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := analyzer.RecoverStuck(sweepCtx, 50); err != nil {
					logger.Warn(sweepCtx, "stuck task sweep failed", "error", err.Error())
				}
			}
		}
	}()

	log := logger.FromContext(ctx)
	log.Info("analysis-worker started",
		"stream", string(stream),
		"group", string(group),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("analysis-worker shutting down")
	cancelSweep()
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
