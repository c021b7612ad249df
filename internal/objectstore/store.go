// Package objectstore provides the NATS JetStream blob store used by the job
// worker to exchange request text, reference samples and produced audio.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Store implements core.ObjectStore using a NATS JetStream object bucket.
type Store struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket if it does not exist yet and binds to it otherwise.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*Store, error) {
	store, createErr := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Audio and text blobs for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if createErr != nil {
		if !errors.Is(createErr, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf(
				"failed to create object store bucket '%s': %w",
				bucketName, createErr,
			)
		}

		var bindErr error

		store, bindErr = jetstreamContext.ObjectStore(bucketName)
		if bindErr != nil {
			return nil, fmt.Errorf(
				"failed to bind to existing object store bucket '%s': %w",
				bucketName, bindErr,
			)
		}
	}

	return &Store{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves a blob by key.
func (s *Store) Download(_ context.Context, key string) ([]byte, error) {
	object, getErr := s.store.Get(key)
	if getErr != nil {
		return nil, fmt.Errorf(
			"failed to get object '%s' from bucket '%s': %w",
			key, s.bucket, getErr,
		)
	}

	data, readErr := io.ReadAll(object)
	closeErr := object.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload stores a blob under the given key.
func (s *Store) Upload(_ context.Context, key string, data []byte) error {
	_, putErr := s.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data))
	if putErr != nil {
		return fmt.Errorf(
			"failed to put object '%s' to bucket '%s': %w",
			key, s.bucket, putErr,
		)
	}

	return nil
}
