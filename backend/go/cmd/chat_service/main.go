package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/api"
	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/service"
	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/database/mongo"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/bootstrap"
	"github.com/Farx1/esilvchatbot/backend/go/internal/llm"
	pkghttp "github.com/Farx1/esilvchatbot/backend/go/pkg/http"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

const defaultConfigPath = "backend/go/internal/config/config.yaml"

func main() {
	// Load configuration
	path := os.Getenv("ESILV_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	serviceLogger := logger.New("ChatService", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kb, err := bootstrap.Open(ctx, cfg, serviceLogger)
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to open knowledge base")
	}
	if rep, err := kb.Seed(ctx); err != nil {
		serviceLogger.WithError(err).Error("Failed to import seed file")
	} else if rep.Inserted > 0 {
		serviceLogger.WithPayload(map[string]interface{}{"inserted": rep.Inserted}).Info("Seed facts imported")
	}

	// 答案生成器，未配置时退回到抽取式回答
	model, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		serviceLogger.WithError(err).Warn("LLM unavailable, answers will be extractive")
		model = nil
	}
	if closer, ok := model.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	composer := llm.NewComposer(model, serviceLogger)

	// 对话记录：优先 MongoDB，否则进程内 LRU
	var convs store.ConversationStore
	mongoClient, err := mongo.Open(ctx, cfg.Databases.MongoDB)
	switch {
	case err != nil:
		serviceLogger.WithError(err).Warn("MongoDB unavailable, conversations kept in memory")
	case mongoClient != nil:
		convs = store.NewMongoConversationStore(mongoClient.Database(cfg.Databases.MongoDB.Database), cfg.Databases.MongoDB.Collection)
		serviceLogger.Info("Successfully connected to MongoDB")
	}
	if convs == nil {
		mem, err := store.NewMemoryConversationStore(1024, 24*time.Hour)
		if err != nil {
			serviceLogger.WithError(err).Fatal("Failed to create conversation store")
		}
		convs = mem
	}

	// 表单与知识库共用数据库，内存模式下保存在进程内
	var forms store.FormStore = store.NewMemoryFormStore()
	if kb.DB != nil {
		gforms := store.NewGormFormStore(kb.DB)
		if err := gforms.Migrate(ctx); err != nil {
			serviceLogger.WithError(err).Fatal("Failed to migrate form_submissions")
		}
		forms = gforms
	}

	chatService := service.NewChatService(kb.Orchestrator, composer, convs, serviceLogger)
	formService := service.NewFormService(forms, serviceLogger)
	knowledgeService := service.NewKnowledgeService(kb.Store, kb.Audit, kb.Extractor, kb.Detector, serviceLogger)
	healthService := service.NewHealthService(cfg.LLM.Provider, composer.Available(),
		service.Probe{Name: "database", Required: true, Ping: kb.Ping},
		service.Probe{Name: "redis", Ping: kb.PingRedis()},
	)

	if kb.Sweeper.Enabled() {
		go kb.Sweeper.Run(ctx)
	}

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	apiHandler := api.NewAPI(chatService, knowledgeService, formService, kb.Orchestrator, kb.Audit, healthService, kb.Metrics, serviceLogger)
	srv, err := pkghttp.NewServer(cfg, pkghttp.WithAddress(cfg.App.Address), pkghttp.WithLogger(serviceLogger))
	if err != nil {
		serviceLogger.WithError(err).Fatal("Failed to create HTTP server")
	}
	srv.Handle("/", api.NewRouter(apiHandler))

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			serviceLogger.WithError(err).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(err).Error("Server forced to shutdown")
	}
	cancel()
	// 等待后台核实任务结束后再关闭连接
	if err := kb.Close(shutdownCtx); err != nil {
		serviceLogger.WithError(err).Error("Error closing knowledge base")
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			serviceLogger.WithError(err).Error("Error disconnecting from MongoDB")
		}
	}

	serviceLogger.Info("Server gracefully stopped")
}
