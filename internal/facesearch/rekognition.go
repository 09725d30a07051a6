package facesearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"attendance-backend/internal/core"
	"attendance-backend/internal/core/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rktypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/google/uuid"
)

const maxResultsPerPage = 1000

// RekognitionAPI is the subset of the rekognition client used here.
type RekognitionAPI interface {
	StartFaceSearch(ctx context.Context, params *rekognition.StartFaceSearchInput, optFns ...func(*rekognition.Options)) (*rekognition.StartFaceSearchOutput, error)
	GetFaceSearch(ctx context.Context, params *rekognition.GetFaceSearchInput, optFns ...func(*rekognition.Options)) (*rekognition.GetFaceSearchOutput, error)
	IndexFaces(ctx context.Context, params *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	CreateCollection(ctx context.Context, params *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error)
}

type RekognitionProvider struct {
	client RekognitionAPI
}

var _ core.FaceSearchProvider = (*RekognitionProvider)(nil)

func NewRekognitionProvider(cfg aws.Config) *RekognitionProvider {
	return &RekognitionProvider{client: rekognition.NewFromConfig(cfg)}
}

func NewRekognitionProviderWithClient(client RekognitionAPI) *RekognitionProvider {
	return &RekognitionProvider{client: client}
}

func (p *RekognitionProvider) StartFaceSearch(ctx context.Context, video core.VideoRef, collectionId string, threshold float64) (string, error) {
	out, err := p.client.StartFaceSearch(ctx, &rekognition.StartFaceSearchInput{
		CollectionId: aws.String(collectionId),
		Video: &rktypes.Video{
			S3Object: &rktypes.S3Object{
				Bucket: aws.String(video.Bucket),
				Name:   aws.String(video.Key),
			},
		},
		FaceMatchThreshold: aws.Float32(float32(threshold)),
		ClientRequestToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return "", fmt.Errorf("error starting face search for s3://%s/%s: %w", video.Bucket, video.Key, err)
	}

	return aws.ToString(out.JobId), nil
}

func (p *RekognitionProvider) GetStatus(ctx context.Context, jobId string) (core.ProviderStatus, error) {
	out, err := p.client.GetFaceSearch(ctx, &rekognition.GetFaceSearchInput{
		JobId:      aws.String(jobId),
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		return core.ProviderStatus{}, fmt.Errorf("error getting face search status for job %s: %w", jobId, err)
	}

	return core.ProviderStatus{
		State:   providerState(out.JobStatus),
		Message: aws.ToString(out.StatusMessage),
	}, nil
}

func (p *RekognitionProvider) GetPage(ctx context.Context, jobId string, nextToken string) (core.DetectionPage, error) {
	input := &rekognition.GetFaceSearchInput{
		JobId:      aws.String(jobId),
		MaxResults: aws.Int32(maxResultsPerPage),
		SortBy:     rktypes.FaceSearchSortByTimestamp,
	}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}

	out, err := p.client.GetFaceSearch(ctx, input)
	if err != nil {
		return core.DetectionPage{}, fmt.Errorf("error getting face search results for job %s: %w", jobId, err)
	}

	page := core.DetectionPage{
		Detections: make([]types.DetectionEvent, 0, len(out.Persons)),
		NextToken:  aws.ToString(out.NextToken),
	}
	for _, person := range out.Persons {
		page.Detections = append(page.Detections, personMatchToEvent(person))
	}

	return page, nil
}

// EnsureCollection creates the face collection if it does not exist yet.
func (p *RekognitionProvider) EnsureCollection(ctx context.Context, collectionId string) error {
	_, err := p.client.CreateCollection(ctx, &rekognition.CreateCollectionInput{
		CollectionId: aws.String(collectionId),
	})
	if err != nil {
		var exists *rktypes.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			slog.Info("face collection already exists", "collection_id", collectionId)
			return nil
		}
		return fmt.Errorf("error creating face collection %s: %w", collectionId, err)
	}

	slog.Info("face collection created", "collection_id", collectionId)
	return nil
}

type IndexedFace struct {
	FaceId     string
	Confidence float64
	Unindexed  int
}

// IndexFace adds the single most prominent face in a roster photo to the
// collection, tagged with the student id so matches can be attributed.
func (p *RekognitionProvider) IndexFace(ctx context.Context, collectionId, bucket, photoKey string, studentId int64) (IndexedFace, error) {
	out, err := p.client.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId: aws.String(collectionId),
		Image: &rktypes.Image{
			S3Object: &rktypes.S3Object{
				Bucket: aws.String(bucket),
				Name:   aws.String(photoKey),
			},
		},
		ExternalImageId:     aws.String(strconv.FormatInt(studentId, 10)),
		MaxFaces:            aws.Int32(1),
		QualityFilter:       rktypes.QualityFilterAuto,
		DetectionAttributes: []rktypes.Attribute{rktypes.AttributeAll},
	})
	if err != nil {
		return IndexedFace{}, fmt.Errorf("error indexing face for student %d from %s: %w", studentId, photoKey, err)
	}

	if len(out.FaceRecords) == 0 {
		return IndexedFace{Unindexed: len(out.UnindexedFaces)}, fmt.Errorf("no usable face found in %s", photoKey)
	}

	face := out.FaceRecords[0].Face
	return IndexedFace{
		FaceId:     aws.ToString(face.FaceId),
		Confidence: float64(aws.ToFloat32(face.Confidence)),
		Unindexed:  len(out.UnindexedFaces),
	}, nil
}

func providerState(status rktypes.VideoJobStatus) core.ProviderState {
	switch status {
	case rktypes.VideoJobStatusSucceeded:
		return core.ProviderSucceeded
	case rktypes.VideoJobStatusFailed:
		return core.ProviderFailed
	default:
		return core.ProviderInProgress
	}
}

// personMatchToEvent flattens a provider person match. The best face match
// supplies the identity and similarity; the detected face supplies the
// confidence, pose, quality and bounding box.
func personMatchToEvent(person rktypes.PersonMatch) types.DetectionEvent {
	event := types.DetectionEvent{TimestampMs: person.Timestamp}

	if len(person.FaceMatches) > 0 {
		best := person.FaceMatches[0]
		event.Similarity = float64(aws.ToFloat32(best.Similarity))
		if best.Face != nil {
			if id, ok := parseExternalId(aws.ToString(best.Face.ExternalImageId)); ok {
				event.IdentityId = &id
			}
		}
	}

	if person.Person == nil || person.Person.Face == nil {
		return event
	}

	face := person.Person.Face
	event.Confidence = float64(aws.ToFloat32(face.Confidence))
	if face.Pose != nil {
		event.Pose = types.Pose{
			Yaw:   float64(aws.ToFloat32(face.Pose.Yaw)),
			Pitch: float64(aws.ToFloat32(face.Pose.Pitch)),
			Roll:  float64(aws.ToFloat32(face.Pose.Roll)),
		}
	}
	if face.Quality != nil {
		event.Quality = types.Quality{
			Brightness: float64(aws.ToFloat32(face.Quality.Brightness)),
			Sharpness:  float64(aws.ToFloat32(face.Quality.Sharpness)),
		}
	}
	if face.BoundingBox != nil {
		event.BoundingBox = types.BoundingBox{
			Width:  float64(aws.ToFloat32(face.BoundingBox.Width)),
			Height: float64(aws.ToFloat32(face.BoundingBox.Height)),
		}
	}

	return event
}

func parseExternalId(external string) (int64, bool) {
	if external == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(external, 10, 64)
	if err != nil {
		slog.Warn("ignoring face match with non numeric external image id", "external_image_id", external)
		return 0, false
	}
	return id, true
}
