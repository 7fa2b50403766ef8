package main

import (
	"context"
	"strings"

	"herald/internal/adapter"
	"herald/internal/dispatch"
	"herald/internal/handlers"
	"herald/internal/networks"
	"herald/internal/store"
	"herald/internal/worker"
	"herald/pkg/config"
	"herald/pkg/database"
	"herald/pkg/kafka"
	"herald/pkg/llm"
	"herald/pkg/logging"
	"herald/pkg/monitoring"
	"herald/pkg/server"
	"herald/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("herald")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Herald (Publication Coordinator)")

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.GetEnv("DATABASE_URL", "")
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Kafka work queue
	brokers := strings.Split(config.GetEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	jobsTopic := config.GetEnv("KAFKA_JOBS_TOPIC", "publish-jobs")
	dlqTopic := config.GetEnv("KAFKA_DLQ_TOPIC", "publish-jobs-dlq")

	producer, err := kafka.NewProducer(brokers, "herald-producer", logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka producer")
	}
	defer producer.Close()

	consumer, err := kafka.NewConsumer(brokers, config.GetEnv("KAFKA_GROUP_ID", "herald-workers"), "herald-worker", logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Close()

	// LLM provider for content adaptation
	provider, err := llm.NewProvider(llm.LoadConfig())
	if err != nil {
		logger.WithError(err).Fatal("Failed to create LLM provider")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("herald", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("herald", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("kafka", monitoring.KafkaHealthCheck(producer.GetClient()))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":  config.GetEnv("DATABASE_URL", ""),
		"KAFKA_BROKERS": config.GetEnv("KAFKA_BROKERS", ""),
	}))

	publishAttempts, publishRetries, publishDuration := metricsCollector.CreatePublicationMetrics()
	adaptationsTotal, adaptationDuration := metricsCollector.CreateAdaptationMetrics()

	// Domain wiring
	contentStore := store.New(db, logger)

	contentAdapter := adapter.New(contentStore, provider, logger)
	contentAdapter.SetMetrics(adaptationsTotal, adaptationDuration)

	registry := networks.NewRegistry(
		networks.NewFacebookPublisher(),
		networks.NewInstagramPublisher(),
		networks.NewLinkedInPublisher(),
		networks.NewTikTokPublisher(),
		networks.NewWhatsAppPublisher(),
	)

	coordinator := dispatch.NewCoordinator(contentStore, producer, jobsTopic, logger)

	workerCfg := worker.Config{
		MaxRetries:   config.GetEnvInt("PUBLISH_MAX_RETRIES", 3),
		RetryDelay:   config.GetEnvDuration("PUBLISH_RETRY_DELAY", worker.DefaultConfig().RetryDelay),
		DLQTopic:     dlqTopic,
		ConsumerName: "herald-worker",
	}
	publishWorker := worker.New(contentStore, registry, producer, workerCfg, logger)
	publishWorker.SetMetrics(publishAttempts, publishRetries, publishDuration)

	// Start consuming publish jobs
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()

	consumer.AddHandler(jobsTopic, publishWorker.HandleJob)
	go func() {
		if err := consumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
			logger.WithError(err).Fatal("Kafka consumer stopped")
		}
	}()

	// Initialize handlers and routes
	handlers.Init(contentStore, contentAdapter, coordinator, logger)

	router := server.SetupServiceRouter(logger, "herald", healthChecker, metricsCollector)
	handlers.RegisterRoutes(router)

	serverConfig := server.DefaultConfig("herald", "18020")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}
