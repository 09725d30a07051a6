package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendance-backend/cmd"
	"attendance-backend/internal/config"
	"attendance-backend/internal/core"
	"attendance-backend/internal/database"
	"attendance-backend/internal/facesearch"
	"attendance-backend/internal/messaging"
	"attendance-backend/internal/metrics"
	"attendance-backend/internal/roster"
	"attendance-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
)

type WorkerConfig struct {
	cmd.AWSConfig

	DatabaseURL       string        `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string        `env:"RABBITMQ_URL,notEmpty,required"`
	RedisURL          string        `env:"REDIS_URL"`
	ProgressTTL       time.Duration `env:"PROGRESS_TTL" envDefault:"24h"`
	MetricsPort       string        `env:"METRICS_PORT" envDefault:"9091"`
	IndexConcurrency  int           `env:"INDEX_CONCURRENCY" envDefault:"4"`
	MaxTimeoutRetries int           `env:"MAX_TIMEOUT_RETRIES" envDefault:"1"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"2"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	pipelineCfg, err := config.LoadPipelineConfig()
	if err != nil {
		log.Fatalf("Failed to load pipeline configuration: %v", err)
	}

	ctx := context.Background()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := storage.NewS3ObjectStore(pipelineCfg.MediaBucket, cfg.ClientConfig())
	if err != nil {
		log.Fatalf("Worker: Failed to create S3 client: %v", err)
	}

	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.ClientConfig())
	if err != nil {
		log.Fatalf("Worker: Failed to load AWS config: %v", err)
	}
	faces := facesearch.NewRekognitionProvider(awsCfg)

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL, cfg.WorkerConcurrency)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	pipeline := cmd.NewPipeline(pipelineCfg, core.PipelineDeps{
		Provider: faces,
		Store:    store,
		Records:  database.NewRecordTable(db),
		Classes:  cmd.CreateClassCatalog(pipelineCfg.ClassCatalogPath),
		Tracker:  cmd.CreateTracker(ctx, cfg.RedisURL, cfg.ProgressTTL),
		Metrics:  metrics.NewPrometheusSink(prometheus.DefaultRegisterer),
	})

	indexer := facesearch.NewPhotoIndexer(faces, &roster.Loader{
		Store:       store,
		Bucket:      pipelineCfg.MediaBucket,
		PhotoPrefix: pipelineCfg.PhotoPrefix,
		EmailDomain: pipelineCfg.EmailDomain,
	}, cfg.IndexConcurrency)

	worker := core.NewTaskProcessor(db, pipeline, indexer, publisher, receiver, core.TaskProcessorOptions{
		CollectionId:      pipelineCfg.CollectionId,
		MaxTimeoutRetries: cfg.MaxTimeoutRetries,
		Concurrency:       cfg.WorkerConcurrency,
	})

	metricsServer := cmd.ServeMetrics(cfg.MetricsPort)

	go worker.Start()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping worker...")

	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error stopping metrics server: %v", err)
	}

	log.Println("Worker process stopped.")
}
