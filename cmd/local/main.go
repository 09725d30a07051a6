package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"attendance-backend/cmd"
	"attendance-backend/internal/api"
	"attendance-backend/internal/chat"
	"attendance-backend/internal/config"
	"attendance-backend/internal/core"
	"attendance-backend/internal/database"
	"attendance-backend/internal/facesearch"
	"attendance-backend/internal/messaging"
	"attendance-backend/internal/metrics"
	"attendance-backend/internal/progress"
	"attendance-backend/internal/query"
	"attendance-backend/internal/roster"
	"attendance-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Config struct {
	cmd.AssistantConfig

	Root           string `env:"ROOT" envDefault:"./attendance"`
	Port           int    `env:"PORT" envDefault:"3001"`
	ReplayPageSize int    `env:"REPLAY_PAGE_SIZE" envDefault:"1000"`
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "attendance.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

func createServer(db *gorm.DB, store storage.ObjectStore, queue messaging.Publisher, tracker progress.Tracker, queries *query.Service, assistant *chat.Assistant, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300, // Cache preflight response for 5 minutes
	}))
	cmd.AddMiddleware(r)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		api.NewBackendService(db, store, queue, tracker, queries).AddRoutes(r)
		api.NewChatService(db, assistant).AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	pipelineCfg, err := config.LoadPipelineConfig()
	if err != nil {
		log.Fatalf("Failed to load pipeline configuration: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating directory for log file: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting backend", "root", cfg.Root, "port", cfg.Port, "bucket", pipelineCfg.MediaBucket)

	db := createDatabase(cfg.Root)

	store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}

	queue := messaging.NewInMemoryQueue()
	if err := cmd.RepublishQueuedJobs(context.Background(), db, queue); err != nil {
		log.Fatalf("Failed to republish queued jobs: %v", err)
	}

	tracker := progress.NewInMemoryTracker()
	faces := facesearch.NewReplayProvider(store, cfg.ReplayPageSize)

	pipeline := cmd.NewPipeline(pipelineCfg, core.PipelineDeps{
		Provider: faces,
		Store:    store,
		Records:  database.NewRecordTable(db),
		Classes:  cmd.CreateClassCatalog(pipelineCfg.ClassCatalogPath),
		Tracker:  tracker,
		Metrics:  metrics.NewPrometheusSink(prometheus.DefaultRegisterer),
	})

	indexer := facesearch.NewPhotoIndexer(faces, &roster.Loader{
		Store:       store,
		Bucket:      pipelineCfg.MediaBucket,
		PhotoPrefix: pipelineCfg.PhotoPrefix,
		EmailDomain: pipelineCfg.EmailDomain,
	}, 1)

	worker := core.NewTaskProcessor(db, pipeline, indexer, queue, queue, core.TaskProcessorOptions{
		CollectionId: pipelineCfg.CollectionId,
	})

	queries := query.NewService(database.NewRecordTable(db))
	server := createServer(db, store, queue, tracker, queries, cmd.CreateAssistant(db, queries, cfg.AssistantConfig), cfg.Port)

	slog.Info("starting worker")
	go worker.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		slog.Info("shutting down worker")
		worker.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
