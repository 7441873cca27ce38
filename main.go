package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SaiNageswarS/go-api-boot/config"
	"github.com/SaiNageswarS/go-api-boot/dotenv"
	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/go-api-boot/odm"
	"github.com/ollama/ollama/api"
	"github.com/piakoller/theranosticsChatbot/appconfig"
	"github.com/piakoller/theranosticsChatbot/chatbot"
	"github.com/piakoller/theranosticsChatbot/db"
	"github.com/piakoller/theranosticsChatbot/llm"
	"github.com/piakoller/theranosticsChatbot/memory"
	"github.com/piakoller/theranosticsChatbot/rag"
	"github.com/piakoller/theranosticsChatbot/services"
	"github.com/piakoller/theranosticsChatbot/session"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

func main() {
	dotenv.LoadEnv()

	// load config file
	ccfgg := &appconfig.AppConfig{}
	err := config.LoadConfig("config.ini", ccfgg)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	ccfgg.ApplyEnv()
	ccfgg.ApplyDefaults()

	ctx := getCancellableContext()

	mongoClient := connectMongo(ctx, ccfgg)
	conversations, forms := provideStores(mongoClient, ccfgg)

	registry := llm.NewModelRegistry(ccfgg.PrimaryModel, ccfgg.BackupModelList(), llm.GenerationParams{
		Temperature:      ccfgg.Temperature,
		MaxTokens:        ccfgg.MaxTokens,
		TopP:             ccfgg.TopP,
		FrequencyPenalty: ccfgg.FrequencyPenalty,
		PresencePenalty:  ccfgg.PresencePenalty,
	})

	var chatClient llm.ChatClient
	if c := llm.NewOpenRouterClient(ccfgg.OpenRouterAPIKey,
		llm.WithURL(ccfgg.OpenRouterURL),
		llm.WithAttribution(ccfgg.AppReferer, ccfgg.AppTitle),
		llm.WithDefaultParams(registry.Params())); c != nil {
		chatClient = c
	} else {
		logger.Error("OPENROUTER_API_KEY not set, serving canned responses")
	}

	opts := []chatbot.Option{
		chatbot.WithShortQuestionExpansion(ccfgg.ExpandShortQuestions),
		chatbot.WithDefaultLanguage(ccfgg.DefaultLanguage),
		chatbot.WithWindowSize(ccfgg.HistoryWindow),
	}
	if expert := provideExpertBot(ctx, mongoClient, ccfgg); expert != nil {
		opts = append(opts, chatbot.WithExpert(expert))
	}

	generator := chatbot.NewResponseGenerator(chatClient, registry, conversations, opts...)
	var stats services.StatsCollector
	if mongoClient != nil {
		database := mongoClient.Database(ccfgg.Database)
		stats = db.NewStatsReader(
			database.Collection(db.ConversationsCollection),
			database.Collection(db.FormsCollection),
			session.KnownSections)
	}
	study := services.ProvideStudyService(generator, conversations, forms, stats, registry)

	httpServer := &http.Server{
		Addr:    ccfgg.HTTPPort,
		Handler: services.NewRouter(study),
	}

	grpcServer := grpc.NewServer(getServerOptions()...)
	healthpb.RegisterHealthServer(grpcServer, services.NewHealthServer(generator.CannedMode()))

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", ccfgg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", ccfgg.GRPCPort)
		if err != nil {
			logger.Fatal("Failed to listen for gRPC", zap.Error(err))
		}
		logger.Info("Starting gRPC health server", zap.String("addr", ccfgg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			logger.Error("Mongo disconnect failed", zap.Error(err))
		}
	}
}

// connectMongo returns nil when persistence is disabled or unreachable; the
// study keeps running without logging in that case.
func connectMongo(ctx context.Context, ccfgg *appconfig.AppConfig) *mongo.Client {
	if !ccfgg.EnableMongoDB || ccfgg.MongoURI == "" {
		logger.Info("MongoDB logging disabled")
		return nil
	}

	mongoClient, err := mongo.Connect(options.Client().ApplyURI(ccfgg.MongoURI))
	if err != nil {
		logger.Error("Failed to connect to MongoDB", zap.Error(err))
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, readpref.Primary()); err != nil {
		logger.Error("MongoDB not reachable, logging disabled", zap.Error(err))
		_ = mongoClient.Disconnect(context.Background())
		return nil
	}

	if err := db.InitStudyDB(ctx, mongoClient.Database(ccfgg.Database)); err != nil {
		logger.Error("Failed to prepare indexes", zap.Error(err))
	}

	return mongoClient
}

func provideStores(mongoClient *mongo.Client, ccfgg *appconfig.AppConfig) (*memory.ConversationStore, *session.FormStore) {
	if mongoClient == nil {
		return memory.NewConversationStore(nil, nil), session.NewFormStore(nil, nil)
	}

	database := mongoClient.Database(ccfgg.Database)
	conversations := memory.NewConversationStore(
		database.Collection(db.ConversationsCollection),
		odm.CollectionOf[memory.ConversationRecord](mongoClient, ccfgg.Database))
	forms := session.NewFormStore(
		database.Collection(db.FormsCollection),
		odm.CollectionOf[session.FormRecord](mongoClient, ccfgg.Database))

	return conversations, forms
}

func provideExpertBot(ctx context.Context, mongoClient *mongo.Client, ccfgg *appconfig.AppConfig) *rag.ExpertBot {
	if !ccfgg.EnableExpertChat || mongoClient == nil {
		return nil
	}

	base, err := url.Parse(ccfgg.OllamaBaseURL)
	if err != nil {
		logger.Error("Invalid Ollama base URL", zap.String("url", ccfgg.OllamaBaseURL), zap.Error(err))
		return nil
	}
	ollamaClient := api.NewClient(base, &http.Client{Timeout: llm.DefaultTimeout})

	corpus, err := rag.LoadCorpus(ctx, mongoClient, ccfgg.Database)
	if err != nil || len(corpus) == 0 {
		logger.Error("Expert chatbot unavailable", zap.Int("chunks", len(corpus)), zap.Error(err))
		return nil
	}

	cfg := rag.DefaultExpertConfig()
	cfg.Model = ccfgg.OllamaModel
	cfg.Temperature = ccfgg.OllamaTemperature
	cfg.MaxTokens = ccfgg.OllamaMaxTokens
	cfg.TopK = ccfgg.RetrievalTopK
	cfg.MaxMemoryLength = ccfgg.MaxMemoryLength
	cfg.Language = ccfgg.DefaultLanguage

	retriever := rag.NewEmbeddingRetriever(ollamaClient, ccfgg.OllamaEmbedModel, corpus)
	expert := rag.NewExpertBot(ollamaClient, retriever, cfg)

	logger.Info("Expert chatbot ready", zap.Int("chunks", retriever.Size()), zap.String("model", expert.Model()))
	return expert
}

func getCancellableContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		cancel()
	}()

	return ctx
}

func getServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 30 * time.Second,
			Time:              30 * time.Second,
			Timeout:           5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	}
}
