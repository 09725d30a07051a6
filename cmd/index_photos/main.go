package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"attendance-backend/cmd"
	"attendance-backend/internal/config"
	"attendance-backend/internal/facesearch"
	"attendance-backend/internal/roster"
	"attendance-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/schollz/progressbar/v3"
)

type IndexConfig struct {
	cmd.AWSConfig

	IndexConcurrency int `env:"INDEX_CONCURRENCY" envDefault:"4"`
}

// Indexes roster photos into the face collection. Photo keys may be passed as
// arguments; with none the whole roster under PHOTO_PREFIX is indexed.
func main() {
	collection := flag.String("collection", "", "face collection to index into, defaults to FACE_COLLECTION_ID")

	cmd.LoadEnvFile()

	var cfg IndexConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	pipelineCfg, err := config.LoadPipelineConfig()
	if err != nil {
		log.Fatalf("Failed to load pipeline configuration: %v", err)
	}
	if *collection == "" {
		*collection = pipelineCfg.CollectionId
	}

	ctx := context.Background()

	store, err := storage.NewS3ObjectStore(pipelineCfg.MediaBucket, cfg.ClientConfig())
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	awsCfg, err := storage.LoadAWSConfig(ctx, cfg.ClientConfig())
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	indexer := facesearch.NewPhotoIndexer(facesearch.NewRekognitionProvider(awsCfg), &roster.Loader{
		Store:       store,
		Bucket:      pipelineCfg.MediaBucket,
		PhotoPrefix: pipelineCfg.PhotoPrefix,
		EmailDomain: pipelineCfg.EmailDomain,
	}, cfg.IndexConcurrency)

	keys, _, err := indexer.Photos(ctx, flag.Args())
	if err != nil {
		log.Fatalf("Failed to list roster photos: %v", err)
	}

	bar := progressbar.NewOptions(len(keys),
		progressbar.OptionSetDescription("indexing photos"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	indexer.OnIndexed = func(string, error) {
		_ = bar.Add(1)
	}

	report, err := indexer.IndexRoster(ctx, *collection, flag.Args())
	if err != nil {
		log.Fatalf("Failed to index roster: %v", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("error serializing report: %v", err)
	}
	fmt.Println(string(out))

	if report.Failed > 0 {
		os.Exit(1)
	}
}
