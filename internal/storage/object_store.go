package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Name string
	Size int64
}

// ObjectStore is a single bucket of media: session videos, roster photos
// and intermediate result artifacts.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader, contentType string) error

	GetObject(ctx context.Context, key string) ([]byte, error)

	ListObjects(ctx context.Context, prefix string) ([]Object, error)
}
