package facesearch

import (
	"context"
	"fmt"
	"log/slog"

	"attendance-backend/internal/core"
	"attendance-backend/internal/core/utils"
	"attendance-backend/internal/roster"
)

// FaceIndexer adds a single photo to a face collection.
type FaceIndexer interface {
	EnsureCollection(ctx context.Context, collectionId string) error

	IndexFace(ctx context.Context, collectionId, bucket, photoKey string, studentId int64) (IndexedFace, error)
}

var _ FaceIndexer = (*RekognitionProvider)(nil)
var _ core.RosterIndexer = (*PhotoIndexer)(nil)

type PhotoIndexer struct {
	faces       FaceIndexer
	roster      *roster.Loader
	concurrency int

	// OnIndexed, if set, is called after each photo regardless of outcome.
	OnIndexed func(key string, err error)
}

func NewPhotoIndexer(faces FaceIndexer, loader *roster.Loader, concurrency int) *PhotoIndexer {
	return &PhotoIndexer{faces: faces, roster: loader, concurrency: concurrency}
}

type photo struct {
	key       string
	studentId int64
}

// Photos resolves the photos to index. Keys that do not follow the roster
// naming scheme are returned as skipped.
func (ix *PhotoIndexer) Photos(ctx context.Context, photoKeys []string) ([]string, []string, error) {
	if len(photoKeys) > 0 {
		var valid, skipped []string
		for _, key := range photoKeys {
			if _, err := roster.ParsePhotoKey(key); err != nil {
				skipped = append(skipped, key)
				continue
			}
			valid = append(valid, key)
		}
		return valid, skipped, nil
	}

	members, err := ix.roster.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, len(members.Members))
	for _, m := range members.Members {
		keys = append(keys, m.PhotoKey)
	}
	return keys, members.Skipped, nil
}

func (ix *PhotoIndexer) IndexRoster(ctx context.Context, collectionId string, photoKeys []string) (core.IndexReport, error) {
	report := core.IndexReport{CollectionId: collectionId}

	keys, skipped, err := ix.Photos(ctx, photoKeys)
	if err != nil {
		return report, fmt.Errorf("error listing roster photos: %w", err)
	}
	report.Skipped = skipped

	if err := ix.faces.EnsureCollection(ctx, collectionId); err != nil {
		return report, err
	}

	queue := make(chan photo, len(keys))
	for _, key := range keys {
		id, _ := roster.ParsePhotoKey(key)
		queue <- photo{key: key, studentId: id}
	}
	close(queue)

	completed := make(chan utils.CompletedTask[photo, IndexedFace], len(keys))
	worker := func(p photo) (IndexedFace, error) {
		return ix.faces.IndexFace(ctx, collectionId, ix.roster.Bucket, p.key, p.studentId)
	}
	utils.RunInPool(worker, queue, completed, ix.concurrency)

	for task := range completed {
		if ix.OnIndexed != nil {
			ix.OnIndexed(task.Input.key, task.Error)
		}
		if task.Error != nil {
			report.Failed++
			slog.Error("error indexing roster photo", "photo_key", task.Input.key, "student_id", task.Input.studentId, "error", task.Error)
			continue
		}
		report.Indexed++
		slog.Info("indexed roster photo", "photo_key", task.Input.key, "student_id", task.Input.studentId, "face_id", task.Result.FaceId)
	}

	slog.Info("roster indexing finished", "collection_id", collectionId, "indexed", report.Indexed, "failed", report.Failed, "skipped", len(report.Skipped))
	return report, nil
}
