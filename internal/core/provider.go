package core

import (
	"context"

	"attendance-backend/internal/core/types"
)

// VideoRef locates a recorded session video in object storage.
type VideoRef struct {
	Bucket string
	Key    string
}

type ProviderState string

const (
	ProviderInProgress ProviderState = "IN_PROGRESS"
	ProviderSucceeded  ProviderState = "SUCCEEDED"
	ProviderFailed     ProviderState = "FAILED"
)

type ProviderStatus struct {
	State   ProviderState
	Message string
}

// DetectionPage is one page of face search results. An empty NextToken
// means there are no further pages.
type DetectionPage struct {
	Detections []types.DetectionEvent
	NextToken  string
}

// FaceSearchProvider is the external video analysis service that matches
// faces in a video against an indexed roster collection.
type FaceSearchProvider interface {
	StartFaceSearch(ctx context.Context, video VideoRef, collectionId string, threshold float64) (string, error)

	GetStatus(ctx context.Context, jobId string) (ProviderStatus, error)

	GetPage(ctx context.Context, jobId string, nextToken string) (DetectionPage, error)
}

// IndexReport summarizes one pass of adding roster photos to the face
// collection.
type IndexReport struct {
	CollectionId string   `json:"collection_id"`
	Indexed      int      `json:"indexed"`
	Failed       int      `json:"failed"`
	Skipped      []string `json:"skipped,omitempty"`
}

// RosterIndexer indexes roster photos into the collection searched by the
// FaceSearchProvider. An empty photoKeys indexes the whole roster.
type RosterIndexer interface {
	IndexRoster(ctx context.Context, collectionId string, photoKeys []string) (IndexReport, error)
}
