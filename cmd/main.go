package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RishiKendai/winnow/internal/api"
	"github.com/RishiKendai/winnow/internal/config"
	"github.com/RishiKendai/winnow/internal/configs/env"
	"github.com/RishiKendai/winnow/internal/infra/mongo"
	redisInfra "github.com/RishiKendai/winnow/internal/infra/redis"
	"github.com/RishiKendai/winnow/internal/logger"
	"github.com/RishiKendai/winnow/internal/metrics"
	"github.com/RishiKendai/winnow/internal/plagiarism"
	"github.com/RishiKendai/winnow/internal/preprocess"
	"github.com/RishiKendai/winnow/internal/repository"
	"github.com/RishiKendai/winnow/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Int("kgramLength", cfg.KgramLength).
		Int("kgramsInWindow", cfg.KgramsInWindow).
		Msg("Starting winnow server")

	metrics.InitPrometheus()
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.MetricsHandler())
	metricsServer := api.StartServer("metrics", metricsMux, cfg.MetricsPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MongoDB client")
	}
	defer mongoClient.Close(context.Background())

	redisClient, err := redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis client")
	}
	defer redisClient.Close()

	mongoRepo := repository.NewMongoRepository(mongoClient)
	artifactsRepo := repository.NewArtifactsRepository(mongoRepo)
	resultsRepo := repository.NewResultsRepository(mongoRepo)

	tokenizer := preprocess.NewTokenizerClient(cfg.TokenizerBaseURL, cfg.TokenizerAPIKey)
	preprocessSvc := preprocess.NewService(tokenizer, artifactsRepo)

	retryHandler := stream.NewRetryHandler(redisClient.Client, cfg.RedisDeadLetterKey, 3)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
	consumer := stream.NewConsumer(
		redisClient.Client,
		cfg.RedisStreamKey,
		cfg.RedisConsumerGroup,
		consumerName,
		preprocessSvc,
		retryHandler,
		cfg.StreamRetentionDuration,
	)

	workerPool := plagiarism.NewWorkerPool(ctx, 0)
	defer workerPool.Close()

	plagiarismSvc := plagiarism.NewService(artifactsRepo, resultsRepo, redisClient, workerPool, plagiarism.Options{
		Winnow:        cfg.WinnowOptions(),
		IgnoredHashes: cfg.IgnoredHashes,
		FlagThreshold: cfg.FlagThreshold,
		MinSimilarity: cfg.MinSimilarity,
	})

	handler := api.NewHandler(artifactsRepo, resultsRepo, plagiarismSvc, redisClient, cfg.MaxConcurrentCompute, cfg.ComputationTimeout)
	router := api.SetupRoutes(cfg, handler)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Redis consumer error")
		}
	}()

	srv := api.StartServer("api", router, cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down API server")
	}

	cancel()
	<-consumerDone

	if err := api.ShutdownServer(metricsServer, 5*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	log.Info().Msg("Shutdown complete")
}
