package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendance-backend/cmd"
	"attendance-backend/internal/api"
	"attendance-backend/internal/database"
	"attendance-backend/internal/messaging"
	"attendance-backend/internal/query"
	"attendance-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type APIConfig struct {
	cmd.AWSConfig
	cmd.AssistantConfig

	DatabaseURL string        `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string        `env:"RABBITMQ_URL,notEmpty,required"`
	RedisURL    string        `env:"REDIS_URL"`
	ProgressTTL time.Duration `env:"PROGRESS_TTL" envDefault:"24h"`
	MediaBucket string        `env:"MEDIA_BUCKET" envDefault:"classroom-media"`
	APIPort     string        `env:"API_PORT" envDefault:"8001"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store, err := storage.NewS3ObjectStore(cfg.MediaBucket, cfg.ClientConfig())
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	tracker := cmd.CreateTracker(context.Background(), cfg.RedisURL, cfg.ProgressTTL)

	queries := query.NewService(database.NewRecordTable(db))
	assistant := cmd.CreateAssistant(db, queries, cfg.AssistantConfig)

	r := chi.NewRouter()
	cmd.AddMiddleware(r)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		api.NewBackendService(db, store, publisher, tracker, queries).AddRoutes(r)
		api.NewChatService(db, assistant).AddRoutes(r)
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
