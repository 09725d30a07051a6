package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"attendance-backend/internal/chat"
	"attendance-backend/internal/config"
	"attendance-backend/internal/core"
	"attendance-backend/internal/database"
	"attendance-backend/internal/messaging"
	"attendance-backend/internal/progress"
	"attendance-backend/internal/query"
	"attendance-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// AWSConfig is shared by every binary that talks to S3 or the face search
// provider.
type AWSConfig struct {
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func (c AWSConfig) ClientConfig() storage.S3ClientConfig {
	return storage.S3ClientConfig{
		Endpoint:        c.S3EndpointURL,
		Region:          c.S3Region,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
	}
}

type AssistantConfig struct {
	OpenAIKey   string `env:"OPENAI_API_KEY"`
	OpenAIModel string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	CacheSize   int    `env:"CHAT_SESSION_CACHE_SIZE" envDefault:"100"`
}

// CreateTracker connects to redis when a url is given. Without one progress
// is not recorded.
func CreateTracker(ctx context.Context, redisURL string, ttl time.Duration) progress.Tracker {
	if redisURL == "" {
		slog.Warn("REDIS_URL not set, job progress will not be recorded")
		return progress.NoopTracker{}
	}

	client, err := progress.NewRedisClient(ctx, redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	return progress.NewRedisTracker(client, ttl)
}

func CreateClassCatalog(path string) *config.ClassCatalog {
	if path == "" {
		return config.DefaultClassCatalog()
	}
	classes, err := config.LoadClassCatalog(path)
	if err != nil {
		log.Fatalf("Failed to load class catalog: %v", err)
	}
	return classes
}

// CreateAssistant builds the assistant. When no OpenAI key is configured the
// assistant can still manage conversations but refuses to chat.
func CreateAssistant(db *gorm.DB, queries *query.Service, cfg AssistantConfig) *chat.Assistant {
	if cfg.OpenAIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, assistant chat is disabled")
		return chat.NewAssistant(db, nil, queries, cfg.CacheSize)
	}

	model, err := chat.NewOpenAIModel(cfg.OpenAIKey, cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("Failed to create assistant model: %v", err)
	}
	return chat.NewAssistant(db, model, queries, cfg.CacheSize)
}

// RepublishQueuedJobs puts jobs that were queued but never picked up back on
// the queue. Used on startup by the local binary where the queue is in memory.
func RepublishQueuedJobs(ctx context.Context, db *gorm.DB, publisher messaging.Publisher) error {
	jobs, err := database.ListQueuedJobs(ctx, db)
	if err != nil {
		return fmt.Errorf("error listing queued jobs: %w", err)
	}

	for _, job := range jobs {
		if err := publisher.PublishProcessVideoTask(ctx, messaging.ProcessVideoPayload{JobId: job.Id, VideoKey: job.VideoKey}); err != nil {
			return fmt.Errorf("error republishing job %s: %w", job.Id, err)
		}
	}
	if len(jobs) > 0 {
		slog.Info("republished queued jobs", "count", len(jobs))
	}
	return nil
}

func NewPipeline(cfg config.PipelineConfig, deps core.PipelineDeps) *core.Pipeline {
	return core.NewPipeline(core.NewPipelineConfig(cfg), deps)
}

func AddMiddleware(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout
}

// ServeMetrics exposes the default prometheus registry on its own port.
func ServeMetrics(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		slog.Info("metrics server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	return server
}
