package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ProcessVideoQueue = "process_video_queue"
	IndexRosterQueue  = "index_roster_queue"
	RetryDelay        = 5 * time.Second
	MaxConnectRetry   = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type ProcessVideoPayload struct {
	JobId    uuid.UUID
	VideoKey string

	// Attempt counts prior runs that ended in a provider timeout.
	Attempt int
}

type IndexRosterPayload struct {
	CollectionId string
	// PhotoKeys limits indexing to the listed photos. Empty means the whole roster.
	PhotoKeys []string
}

type Publisher interface {
	PublishProcessVideoTask(ctx context.Context, payload ProcessVideoPayload) error

	PublishIndexRosterTask(ctx context.Context, payload IndexRosterPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
