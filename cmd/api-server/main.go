// Package main API 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"novelforge-api/internal/application/generation"
	"novelforge-api/internal/application/memory"
	apptool "novelforge-api/internal/application/tool"
	"novelforge-api/internal/config"
	"novelforge-api/internal/infrastructure/embedding"
	"novelforge-api/internal/infrastructure/llm"
	"novelforge-api/internal/infrastructure/messaging"
	"novelforge-api/internal/infrastructure/persistence/milvus"
	"novelforge-api/internal/infrastructure/persistence/postgres"
	"novelforge-api/internal/infrastructure/persistence/redis"
	infratool "novelforge-api/internal/infrastructure/tool"
	"novelforge-api/internal/interfaces/http/handler"
	"novelforge-api/internal/interfaces/http/router"
	einoobs "novelforge-api/internal/observability/eino"
	"novelforge-api/pkg/logger"
	"novelforge-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-server",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 初始化 Eino 全局 callbacks（模型/工具节点追踪）
	einoobs.Init()

	// 初始化应用
	app, cleanup, err := buildApp(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize app", err)
	}
	defer cleanup()

	// 创建 HTTP 服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	// 启动服务器
	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}

// buildApp 组装全部依赖并返回路由器。
// Milvus 与 Embedding 为可选依赖：初始化失败时记忆检索降级为时间线召回，服务照常启动。
func buildApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// PostgreSQL
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init postgres: %w", err)
	}
	cleanups = append(cleanups, func() { _ = pgClient.Close() })

	// Redis
	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to init redis: %w", err)
	}
	cleanups = append(cleanups, func() { _ = redisClient.Close() })

	// Milvus（可选）
	milvusClient, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus unavailable, vector search degraded", "error", err.Error())
		milvusClient = nil
	} else {
		cleanups = append(cleanups, func() { _ = milvusClient.Close() })
	}

	// 仓储
	projectRepo := postgres.NewProjectRepository(pgClient)
	chapterRepo := postgres.NewChapterRepository(pgClient)
	outlineRepo := postgres.NewOutlineRepository(pgClient)
	characterRepo := postgres.NewCharacterRepository(pgClient)
	relationshipRepo := postgres.NewCharacterRelationshipRepository(pgClient)
	relTypeRepo := postgres.NewRelationshipTypeRepository(pgClient)
	orgRepo := postgres.NewOrganizationRepository(pgClient)
	orgMemberRepo := postgres.NewOrganizationMemberRepository(pgClient)
	styleRepo := postgres.NewWritingStyleRepository(pgClient)
	defaultStyleRepo := postgres.NewProjectDefaultStyleRepository(pgClient)
	historyRepo := postgres.NewGenerationHistoryRepository(pgClient)
	analysisRepo := postgres.NewChapterAnalysisRepository(pgClient)
	taskRepo := postgres.NewAnalysisTaskRepository(pgClient)
	fragmentRepo := postgres.NewMemoryFragmentRepository(pgClient)
	pluginRepo := postgres.NewToolPluginRepository(pgClient)

	// 租户存储注册表与作用域
	txMgr := postgres.NewTxManager(pgClient)
	tenantCtx := postgres.NewTenantContext(pgClient)
	seeder := postgres.NewTenantSeeder(txMgr, tenantCtx, relTypeRepo, styleRepo)
	registry := postgres.NewRegistry(pgClient, seeder)
	cleanups = append(cleanups, registry.CloseAll)
	scope := postgres.NewScopeManager(registry, txMgr, tenantCtx)

	// 记忆子系统（Embedding 与向量库可选）
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

	// 工具插件注册表
	toolFactory := infratool.NewFactory(cfg.Tool.CallTimeout)
	metricsStore := redis.NewToolMetricsStore(redis.NewCache(redisClient))
	toolRegistry := apptool.NewRegistry(scope, pluginRepo, toolFactory, metricsStore, &cfg.Tool)
	toolRegistry.Start()
	cleanups = append(cleanups, toolRegistry.Stop)

	// LLM 与分析任务队列
	einoFactory := llm.NewEinoFactory(cfg)
	llmAdapter := generation.NewLLMAdapter(einoFactory, toolRegistry)
	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
	analysisQueue := messaging.NewAnalysisQueue(producer, cfg.Analysis.Stream)

	// 生成编排器
	deps := &generation.Deps{
		Scope:         scope,
		Projects:      projectRepo,
		Chapters:      chapterRepo,
		Outlines:      outlineRepo,
		Characters:    characterRepo,
		Relationships: relationshipRepo,
		RelationTypes: relTypeRepo,
		Organizations: orgRepo,
		OrgMembers:    orgMemberRepo,
		Styles:        styleRepo,
		DefaultStyles: defaultStyleRepo,
		Histories:     historyRepo,
		Analyses:      analysisRepo,
		Tasks:         taskRepo,
		Memory:        memorySvc,
		MemoryWriter:  memorySvc,
		LLM:           llmAdapter,
		Tools:         toolRegistry,
		Queue:         analysisQueue,
		Config:        cfg,
	}
	analyzer := generation.NewAnalyzer(deps)
	chapterGen := generation.NewChapterGenerator(deps, analyzer)
	outlineGen := generation.NewOutlineContinuer(deps)
	wizard := generation.NewWizard(deps)

	// HTTP 处理器
	handlers := &router.Handlers{
		Health: handler.NewHealthHandler(pgClient, redisClient, milvusClient),
		Project: handler.NewProjectHandler(
			scope, projectRepo, chapterRepo, outlineRepo, characterRepo,
			relationshipRepo, orgRepo, orgMemberRepo, styleRepo, defaultStyleRepo,
			historyRepo, memorySvc,
		),
		Chapter: handler.NewChapterHandler(
			scope, projectRepo, chapterRepo, analysisRepo, taskRepo,
			memorySvc, analyzer, analysisQueue,
		),
		Outline: handler.NewOutlineHandler(scope, projectRepo, outlineRepo, chapterRepo),
		Character: handler.NewCharacterHandler(
			scope, projectRepo, characterRepo, relationshipRepo,
			relTypeRepo, orgRepo, orgMemberRepo,
		),
		Style:   handler.NewStyleHandler(scope, projectRepo, styleRepo, defaultStyleRepo),
		Plugin:  handler.NewPluginHandler(scope, pluginRepo, toolRegistry),
		Memory:  handler.NewMemoryHandler(scope, projectRepo, chapterRepo, fragmentRepo, memorySvc),
		History: handler.NewHistoryHandler(scope, projectRepo, historyRepo),
		Stream:  handler.NewStreamHandler(chapterGen, outlineGen),
		Wizard:  handler.NewWizardHandler(wizard),
	}

	limiter := redis.NewRateLimiter(redisClient)
	return router.New(cfg, handlers, limiter), cleanup, nil
}
