package repository

import (
	"bytes"
	"context"
	"io"
	"path"

	storage "github.com/tigerroll/powercast/internal/adapter/storage"
	"github.com/tigerroll/powercast/internal/support/exception"
)

// ArtifactStore reads and writes serialized model artifacts in blob storage.
type ArtifactStore struct {
	exec   storage.StorageExecutor
	bucket string
	prefix string
}

func NewArtifactStore(exec storage.StorageExecutor, bucket, prefix string) *ArtifactStore {
	return &ArtifactStore{exec: exec, bucket: bucket, prefix: prefix}
}

// Key returns the object name for a region's model artifact.
func (s *ArtifactStore) Key(region, modelID string) string {
	return path.Join(s.prefix, region, modelID+".json")
}

// Put uploads one artifact and returns its object key.
func (s *ArtifactStore) Put(ctx context.Context, region, modelID string, data []byte) (string, error) {
	key := s.Key(region, modelID)
	if err := s.exec.Upload(ctx, s.bucket, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", exception.NewPipelineErrorf("repository", "failed to upload model artifact %s", key, err)
	}
	return key, nil
}

// PutObject uploads arbitrary pipeline output under an explicit key,
// bypassing the artifact prefix.
func (s *ArtifactStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.exec.Upload(ctx, s.bucket, key, bytes.NewReader(data), contentType); err != nil {
		return exception.NewPipelineErrorf("repository", "failed to upload object %s", key, err)
	}
	return nil
}

// Get downloads one artifact by its stored key.
func (s *ArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.exec.Download(ctx, s.bucket, key)
	if err != nil {
		return nil, exception.NewPipelineErrorf("repository", "failed to download model artifact %s", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, exception.NewPipelineErrorf("repository", "failed to read model artifact %s", key, err)
	}
	return data, nil
}
